package simulation

import "fmt"

// ErrorKind classifies a fatal simulation error per the four families that
// terminate a train agent (topology, protocol, physics divergence, sequencing).
type ErrorKind string

const (
	// TopologyError covers malformed track construction and unreachable
	// pathfinding requests.
	TopologyError ErrorKind = "TOPOLOGY"
	// ProtocolError covers malformed inbound messages and reservation
	// ownership/ordering violations.
	ProtocolError ErrorKind = "PROTOCOL"
	// PhysicsDivergenceError covers forceStop/normalizeToClosestNode guard
	// breaches: the physics state no longer matches what the schedule expects.
	PhysicsDivergenceError ErrorKind = "PHYSICS_DIVERGENCE"
	// SequencingError covers navigation events executed out of their legal
	// state (Start while moving, SetDirection while moving, SetSwitch(curve)
	// on a non-branching node).
	SequencingError ErrorKind = "SEQUENCING"
)

// SimError is a fatal error tagged with the family that produced it. A
// failing agent publishes it as the Object of an ExceptionEvent and passes it
// to Dispatch.StopTheWorld, which pauses the world; there is no automatic
// retry or recovery for any SimError.
type SimError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SimError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SimError) Unwrap() error { return e.Err }

func newTopologyError(op string, err error) *SimError {
	return &SimError{Kind: TopologyError, Op: op, Err: err}
}

func newProtocolError(op string, err error) *SimError {
	return &SimError{Kind: ProtocolError, Op: op, Err: err}
}

func newPhysicsError(op string, err error) *SimError {
	return &SimError{Kind: PhysicsDivergenceError, Op: op, Err: err}
}

func newSequencingError(op string, err error) *SimError {
	return &SimError{Kind: SequencingError, Op: op, Err: err}
}

// Sentinel causes for the sequencing errors an agent's executor can raise;
// each is always wrapped by newSequencingError before it leaves the package.
var (
	errNotStopped     = fmt.Errorf("train is not stopped")
	errNoBranchAtNode = fmt.Errorf("node has no curve branch to select")
	errAlreadyMoving  = fmt.Errorf("train is already moving")
)
