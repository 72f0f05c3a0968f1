package simulation

import "fmt"

// Branch selects which of a node's two same-direction edges is active.
type Branch int

const (
	Straight Branch = iota
	Curve
)

func (b Branch) String() string {
	if b == Curve {
		return "curve"
	}
	return "straight"
}

// TrainDirection is the direction a train is travelling in, with a signed
// coefficient used to compute velocity from scalar speed.
type TrainDirection int

const (
	Forward TrainDirection = iota
	Backward
)

// Coefficient returns +1 for Forward, -1 for Backward.
func (d TrainDirection) Coefficient() float64 {
	if d == Backward {
		return -1
	}
	return 1
}

// Inverted returns the opposite direction.
func (d TrainDirection) Inverted() TrainDirection {
	if d == Forward {
		return Backward
	}
	return Forward
}

func (d TrainDirection) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// TrackEdge is a directed, length-weighted connection between two TrackNodes,
// paired with its reverse. Edges are owned by the Track; nodes hold
// non-owning references to the edges incident to them.
type TrackEdge struct {
	Source, Destination *TrackNode
	Length               int
	reverse              *TrackEdge
}

// Reverse returns the paired opposite-direction edge.
func (e *TrackEdge) Reverse() *TrackEdge { return e.reverse }

func (e *TrackEdge) String() string {
	if e == nil {
		return "<nil edge>"
	}
	return fmt.Sprintf("%s->%s", e.Source.Name, e.Destination.Name)
}

// TrackNode is a junction or terminal, identified by a unique name. It holds
// up to two forward outgoing edges (straight, curve) and up to two reverse
// outgoing edges (reverseStraight, reverseCurve).
type TrackNode struct {
	Name string

	straight *TrackEdge
	curve    *TrackEdge

	reverseStraight *TrackEdge
	reverseCurve    *TrackEdge

	// SwitchState selects the active branch when the node has two outgoing
	// edges in the train's direction of travel.
	SwitchState Branch
}

// EdgeCount returns |forward| + |reverse|.
func (n *TrackNode) EdgeCount() int {
	c := 0
	if n.straight != nil {
		c++
	}
	if n.curve != nil {
		c++
	}
	if n.reverseStraight != nil {
		c++
	}
	if n.reverseCurve != nil {
		c++
	}
	return c
}

// ForwardEdge returns the node's forward edge for the given branch, or nil.
func (n *TrackNode) ForwardEdge(b Branch) *TrackEdge {
	if b == Curve {
		return n.curve
	}
	return n.straight
}

// ReverseEdge returns the node's reverse edge for the given branch, or nil.
func (n *TrackNode) ReverseEdge(b Branch) *TrackEdge {
	if b == Curve {
		return n.reverseCurve
	}
	return n.reverseStraight
}

// edgesInDirection returns the (straight, curve) candidate pair of edges
// leaving n when travelling in direction d. Either may be nil.
func (n *TrackNode) edgesInDirection(d TrainDirection) (straight, curve *TrackEdge) {
	if d == Forward {
		return n.straight, n.curve
	}
	return n.reverseStraight, n.reverseCurve
}

// neighbours lists, in insertion order, the edges a pathfinder may traverse
// from n: its forward edges, then (if allowBackward) its reverse edges.
func (n *TrackNode) neighbours(allowBackward bool) []*TrackEdge {
	out := make([]*TrackEdge, 0, 4)
	if n.straight != nil {
		out = append(out, n.straight)
	}
	if n.curve != nil {
		out = append(out, n.curve)
	}
	if allowBackward {
		if n.reverseStraight != nil {
			out = append(out, n.reverseStraight)
		}
		if n.reverseCurve != nil {
			out = append(out, n.reverseCurve)
		}
	}
	return out
}

// Track is an immutable-after-construction set of nodes and their wired
// edges; only each node's SwitchState mutates at runtime.
type Track struct {
	nodes map[string]*TrackNode
	edges []*TrackEdge
}

// NewTrack creates an empty Track. Nodes and edges are added via AddNode and
// AddEdge before the track is handed to a
// Simulation; after that point only SwitchState is expected to mutate.
func NewTrack() *Track {
	return &Track{nodes: make(map[string]*TrackNode)}
}

// AddNode registers a new, edge-less node under the given name. Name
// collisions are a topology error.
func (t *Track) AddNode(name string) (*TrackNode, error) {
	if _, exists := t.nodes[name]; exists {
		return nil, newTopologyError("AddNode", fmt.Errorf("node %q already exists", name))
	}
	n := &TrackNode{Name: name}
	t.nodes[name] = n
	return n, nil
}

// Node looks up a node by name.
func (t *Track) Node(name string) (*TrackNode, bool) {
	n, ok := t.nodes[name]
	return n, ok
}

// Nodes returns all nodes in the track.
func (t *Track) Nodes() []*TrackNode {
	out := make([]*TrackNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns all edges registered in the track (forward direction only;
// each edge's Reverse() recovers its pair).
func (t *Track) Edges() []*TrackEdge {
	return t.edges
}

// AddEdge wires a single forward edge from -> to of the given length on
// branch b, implicitly appending the reverse edge to -> from. Edge
// construction is one-shot per (node, branch): re-initializing the same
// forward slot fails, as does overflowing to's reverse slots (more than two
// reverse edges).
//
// A node declares either a single forward edge (straight only) or a
// branching pair (straight, then curve); Curve may only be added once
// Straight already exists on from.
func (t *Track) AddEdge(from, to *TrackNode, length int, b Branch) (*TrackEdge, error) {
	if length <= 0 {
		return nil, newTopologyError("AddEdge", fmt.Errorf("length must be > 0, got %d", length))
	}
	if b == Curve && from.straight == nil {
		return nil, newTopologyError("AddEdge", fmt.Errorf("node %q: curve edge requires a straight edge first", from.Name))
	}
	if b == Straight && from.straight != nil {
		return nil, newTopologyError("AddEdge", fmt.Errorf("node %q: straight edge already set", from.Name))
	}
	if b == Curve && from.curve != nil {
		return nil, newTopologyError("AddEdge", fmt.Errorf("node %q: curve edge already set", from.Name))
	}

	fwd := &TrackEdge{Source: from, Destination: to, Length: length}
	rev := &TrackEdge{Source: to, Destination: from, Length: length}
	fwd.reverse = rev
	rev.reverse = fwd

	if to.reverseStraight != nil && to.reverseCurve != nil {
		return nil, newTopologyError("AddEdge", fmt.Errorf("node %q: would accumulate more than two reverse edges", to.Name))
	}

	if b == Straight {
		from.straight = fwd
	} else {
		from.curve = fwd
	}
	if to.reverseStraight == nil {
		to.reverseStraight = rev
	} else {
		to.reverseCurve = rev
	}

	t.edges = append(t.edges, fwd)
	return fwd, nil
}
