package simulation

import (
	"context"
	"fmt"
	"time"
)

const (
	tickInterval        = 10 * time.Millisecond
	tickIntervalSeconds = 0.01
)

// NavigateToMsg is the one externally-driven inbound message a TrainAgent
// accepts: compile and execute a program from the agent's current position to
// Destination (§4.6). Any other inbound message type is a protocol error.
type NavigateToMsg struct {
	Destination   *TrackNode
	AllowBackward bool
}

// AgentSnapshot is the read-only projection of a TrainAgent published on
// every PositionUpdatedEvent and exposed to external observers (§6).
type AgentSnapshot struct {
	Name               string
	Node               string
	CurrentEdge        *TrackEdge
	Offset             float64
	Speed              float64
	Velocity           float64
	Direction          TrainDirection
	Stopped            bool
	CurrentDestination string
}

// TrainAgent is one train's execution context: position, physics, and a
// single-threaded event loop fed by an inbox and a 10ms position-ticking
// clock. All navigation-program execution, tick integration, and inbound
// message handling are serialized onto the same goroutine — the "single
// execution context per agent" model of §5.
type TrainAgent struct {
	Name string

	track    *Track
	dispatch *Dispatch

	physics  *TrainPhysics
	position *TrainPosition

	destination *TrackNode
	tickCount   uint64

	inbox  chan interface{}
	ticker *time.Ticker
}

// NewTrainAgent constructs a stopped train at start facing dir and registers
// it with dispatch under name. Name collisions are a protocol error.
func NewTrainAgent(name string, track *Track, dispatch *Dispatch, start *TrackNode, dir TrainDirection) (*TrainAgent, error) {
	a := &TrainAgent{
		Name:     name,
		track:    track,
		dispatch: dispatch,
		physics:  NewTrainPhysics(dir),
		position: NewTrainPosition(start, dir),
		inbox:    make(chan interface{}, 16),
	}
	if err := dispatch.registerAgent(a); err != nil {
		return nil, err
	}
	return a, nil
}

// NavigateTo enqueues a NavigateToMsg for the agent's own goroutine to pick
// up; it is safe to call from any goroutine.
func (a *TrainAgent) NavigateTo(dest *TrackNode, allowBackward bool) {
	a.inbox <- NavigateToMsg{Destination: dest, AllowBackward: allowBackward}
}

// Snapshot returns the agent's current read-only state.
func (a *TrainAgent) Snapshot() AgentSnapshot {
	node := ""
	if a.position.Node != nil {
		node = a.position.Node.Name
	}
	destination := ""
	if a.destination != nil {
		destination = a.destination.Name
	}
	return AgentSnapshot{
		Name:               a.Name,
		Node:               node,
		CurrentEdge:        a.position.Edge,
		Offset:             a.position.Offset,
		Speed:              a.physics.Speed,
		Velocity:           a.physics.Velocity(),
		Direction:          a.physics.Direction,
		Stopped:            a.physics.Speed == 0,
		CurrentDestination: destination,
	}
}

// Run is the agent's main loop. It returns when ctx is cancelled.
func (a *TrainAgent) Run(ctx context.Context) {
	a.ticker = time.NewTicker(tickInterval)
	defer a.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ticker.C:
			a.dispatch.WaitIfPaused()
			a.onTick(tickIntervalSeconds)
		case msg := <-a.inbox:
			a.handleMessage(msg)
		}
	}
}

func (a *TrainAgent) handleMessage(msg interface{}) {
	switch m := msg.(type) {
	case NavigateToMsg:
		a.navigateTo(m)
	default:
		a.fail(newProtocolError("handleMessage", fmt.Errorf("unexpected message type %T", msg)))
	}
}

func (a *TrainAgent) navigateTo(m NavigateToMsg) {
	path, err := a.track.FindPath(a.position.Node, m.Destination, m.AllowBackward)
	if err != nil {
		a.fail(err)
		return
	}
	events, reserved, err := CompileProgram(a.track, a.physics.Direction, path)
	if err != nil {
		a.fail(err)
		return
	}
	if err := validateProgram(events); err != nil {
		a.fail(newSequencingError("navigateTo", err))
		return
	}
	_ = reserved // available for callers that want to assert the ordering invariant

	a.destination = m.Destination
	a.executeProgram(events)
}

// executeProgram runs events to completion, aborting and failing the agent
// on the first error (§7: every SimError is fatal to the originating agent).
func (a *TrainAgent) executeProgram(events []NavigationEvent) {
	for _, ev := range events {
		if err := a.executeEvent(ev); err != nil {
			a.fail(err)
			return
		}
	}
	a.destination = nil
	a.publish(Event{Name: NavigationCompleteEvent, Object: a})
}

func (a *TrainAgent) executeEvent(ev NavigationEvent) error {
	switch t := ev.(type) {
	case SetDirectionEvent:
		return applySetDirection(a, t)
	case SetSwitchEvent:
		return applySetSwitch(a, t)
	case StartEvent:
		return applyStart(a, t)
	case ReserveNodeEvent:
		return nil // modeled, never serviced (§9)
	case ReserveEvent:
		return a.executeReserve(t)
	case StopEvent:
		return a.executeStop(t)
	default:
		return newProtocolError("executeEvent", fmt.Errorf("unhandled event type %T", ev))
	}
}

// executeReserve blocks until the edge is granted. If the train is already
// moving, it concurrently arms a cancellable guard-brake timed to the
// distance remaining on the train's current edge, so an unexpectedly slow
// grant never lets the train run past the node it is reserving for. If the
// guard fires before the grant arrives the train is allowed to coast to a
// complete stop; once the grant then arrives the train simply restarts
// (chosen over trying to resume mid-brake, which would need to undo an
// in-flight deceleration profile).
func (a *TrainAgent) executeReserve(ev ReserveEvent) error {
	confirm := a.dispatch.MakeReservation(ev.Edge, a)

	var timerC <-chan time.Time
	var timer *time.Timer
	guardArmed := false
	guardTriggered := false

	if a.physics.Speed > 0 {
		remaining := remainingOnCurrentEdge(a.position)
		triggerAt, _ := stopTimings(remaining)
		timer = time.NewTimer(secondsToDuration(triggerAt))
		timerC = timer.C
		guardArmed = true
	}

	for {
		select {
		case <-a.ticker.C:
			a.dispatch.WaitIfPaused()
			a.onTick(tickIntervalSeconds)
		case <-timerC:
			a.physics.RequestDecelerate()
			guardTriggered = true
			timerC = nil
		case <-confirm:
			if guardArmed && !guardTriggered {
				timer.Stop()
			}
			if guardTriggered {
				a.physics.RequestStart()
			}
			return nil
		case msg := <-a.inbox:
			if err := a.rejectDuringExecution(msg); err != nil {
				return err
			}
		}
	}
}

// executeStop arms the trigger/complete timer pair derived from stopTimings
// and, once the complete timer fires, force-stops the physics and snaps the
// position onto the nearer endpoint (§4.2, §4.3).
func (a *TrainAgent) executeStop(ev StopEvent) error {
	triggerAt, duration := stopTimings(ev.Distance)
	triggerTimer := time.NewTimer(secondsToDuration(triggerAt))
	completeTimer := time.NewTimer(secondsToDuration(duration))
	defer triggerTimer.Stop()
	defer completeTimer.Stop()

	for {
		select {
		case <-a.ticker.C:
			a.dispatch.WaitIfPaused()
			a.onTick(tickIntervalSeconds)
		case <-triggerTimer.C:
			a.physics.RequestDecelerate()
		case <-completeTimer.C:
			if err := a.physics.ForceStop(); err != nil {
				return err
			}
			if err := a.position.NormalizeToClosestNode(a.physics.Direction); err != nil {
				return err
			}
			a.publish(Event{Name: TrainStoppedEvent, Object: a})
			return nil
		case msg := <-a.inbox:
			if err := a.rejectDuringExecution(msg); err != nil {
				return err
			}
		}
	}
}

// rejectDuringExecution handles an inbox message that arrives while a
// program is already executing. A TrainAgent only ever has one program in
// flight, so any such message is a protocol violation by the caller.
func (a *TrainAgent) rejectDuringExecution(msg interface{}) error {
	return newProtocolError("rejectDuringExecution", fmt.Errorf("message %T arrived mid-program", msg))
}

// positionSampleTicks is how many 10ms physics ticks separate published
// PositionUpdatedEvents, so the externally visible telemetry cadence is
// decimated from the internal integration rate rather than published every
// tick.
const positionSampleTicks = 100

// onTick integrates physics for dt seconds, advances the position, releases
// any reservation the train has now fully crossed, and publishes a position
// update every positionSampleTicks ticks rather than on every internal tick.
func (a *TrainAgent) onTick(dt float64) {
	delta := a.physics.Update(dt)
	if delta != 0 {
		a.position.Advance(delta, a.physics.Direction)
	}
	a.releaseCleared()
	a.tickCount++
	if a.tickCount%positionSampleTicks == 0 {
		a.publish(Event{Name: PositionUpdatedEvent, Object: a.Snapshot()})
	}
}

// releaseCleared releases the oldest held reservation once the train's
// current node has reached that edge's far endpoint, i.e. the train no
// longer needs exclusive access to it.
func (a *TrainAgent) releaseCleared() {
	held := a.dispatch.HeldReservations(a)
	if len(held) == 0 {
		return
	}
	front := held[0]
	if a.position.Node == front.Destination && a.position.Edge != front {
		if err := a.dispatch.ReleaseReservation(front, a); err != nil {
			a.fail(err)
		}
	}
}

func (a *TrainAgent) fail(err error) {
	logger.Error("train agent failed", "train", a.Name, "error", err)
	a.publish(Event{Name: ExceptionEvent, Object: err})
	a.dispatch.StopTheWorld(err)
}

func (a *TrainAgent) publish(ev Event) {
	a.dispatch.events.Publish(ev)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
