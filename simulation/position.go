package simulation

import "fmt"

// TrainPosition projects a kinematic offset onto the track graph: a current
// node, an optional current directed edge (nil means the train sits at a
// dead-end with no valid next edge in its direction of travel), and an
// offset into that edge.
type TrainPosition struct {
	Node   *TrackNode
	Edge   *TrackEdge
	Offset float64
}

// NewTrainPosition places a train at node, travelling in direction d. The
// current edge is resolved immediately via the next-edge rule.
func NewTrainPosition(node *TrackNode, d TrainDirection) *TrainPosition {
	return &TrainPosition{Node: node, Edge: nextEdge(node, d)}
}

// nextEdge implements the branch-selection rule at node n for direction d:
// candidates are the two same-direction edges; if only one exists it is
// taken, otherwise n.SwitchState selects between them.
func nextEdge(n *TrackNode, d TrainDirection) *TrackEdge {
	straight, curve := n.edgesInDirection(d)
	switch {
	case straight != nil && curve != nil:
		if n.SwitchState == Curve {
			return curve
		}
		return straight
	case straight != nil:
		return straight
	default:
		return curve
	}
}

// Advance moves the train forward by delta along its current edge,
// implicitly using direction d to resolve the edge at every node rollover.
// The edge leaving a node is resolved only on arrival there, so a switch
// change at a node the train is approaching is picked up at the moment of
// rollover. Advance does not re-resolve Edge mid-edge; a switch change at the
// node the train is standing on is applied by applySetSwitch.
func (p *TrainPosition) Advance(delta float64, d TrainDirection) {
	for p.Edge != nil && p.Offset+delta >= float64(p.Edge.Length) {
		delta -= float64(p.Edge.Length) - p.Offset
		p.Node = p.Edge.Destination
		p.Offset = 0
		p.Edge = nextEdge(p.Node, d)
	}
	if p.Edge != nil {
		p.Offset += delta
	}
}

// NormalizeToClosestNode is called the moment a scheduled stop completes. If
// the train has rolled within 1 unit of the edge's destination it snaps
// forward onto that node; if it is already within 1 unit of its source node
// it is left as-is. Any larger offset means the physics diverged from the
// navigation schedule, which is a fatal physics-divergence error.
func (p *TrainPosition) NormalizeToClosestNode(d TrainDirection) error {
	if p.Edge == nil {
		p.Offset = 0
		return nil
	}
	length := float64(p.Edge.Length)
	if length-p.Offset < 1 {
		p.Node = p.Edge.Destination
		p.Edge = nextEdge(p.Node, d)
		p.Offset = 0
		return nil
	}
	if p.Offset < 1 {
		return nil
	}
	return newPhysicsError("NormalizeToClosestNode", fmt.Errorf(
		"offset %.4f on edge %s (length %d) is not within 1 unit of either endpoint", p.Offset, p.Edge, p.Edge.Length))
}
