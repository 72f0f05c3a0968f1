package simulation

import (
	"container/heap"
	"fmt"
)

// FindPath computes a minimum-length node sequence from start to finish using
// Dijkstra over non-negative integer edge lengths. Neighbours of a node are
// its forward edges and, when allowBackward is true, its reverse edges, in
// insertion order — this fixes the tie-break between equal-length paths.
//
// If start == finish the result is the single-element path [start]. If
// finish is unreachable, FindPath returns a TopologyError rather than
// dereferencing a missing predecessor.
func (t *Track) FindPath(start, finish *TrackNode, allowBackward bool) ([]*TrackNode, error) {
	if start == finish {
		return []*TrackNode{start}, nil
	}

	dist := map[*TrackNode]int{start: 0}
	prev := map[*TrackNode]*TrackEdge{}
	visited := map[*TrackNode]bool{}

	pq := &nodeHeap{}
	heap.Init(pq)
	heap.Push(pq, &nodeHeapItem{node: start, dist: 0, seq: 0})
	seq := 1

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*nodeHeapItem)
		if visited[cur.node] {
			continue
		}
		if cur.dist > dist[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == finish {
			break
		}

		for _, e := range cur.node.neighbours(allowBackward) {
			next := e.Destination
			if visited[next] {
				continue
			}
			nd := cur.dist + e.Length
			existing, known := dist[next]
			if !known || nd < existing {
				dist[next] = nd
				prev[next] = e
				heap.Push(pq, &nodeHeapItem{node: next, dist: nd, seq: seq})
				seq++
			}
		}
	}

	if !visited[finish] {
		return nil, newTopologyError("FindPath", fmt.Errorf("no path from %q to %q", start.Name, finish.Name))
	}

	// Walk predecessors back to start.
	path := []*TrackNode{finish}
	cursor := finish
	for cursor != start {
		e, ok := prev[cursor]
		if !ok {
			return nil, newTopologyError("FindPath", fmt.Errorf("broken predecessor chain at %q", cursor.Name))
		}
		cursor = e.Source
		path = append(path, cursor)
	}
	// Reverse in place.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// EdgeBetween returns the edge connecting consecutive path nodes a->b
// (forward or reverse) and its branch relative to a, or an error if no such
// edge exists.
func (t *Track) EdgeBetween(a, b *TrackNode) (*TrackEdge, Branch, error) {
	if a.straight != nil && a.straight.Destination == b {
		return a.straight, Straight, nil
	}
	if a.curve != nil && a.curve.Destination == b {
		return a.curve, Curve, nil
	}
	if a.reverseStraight != nil && a.reverseStraight.Destination == b {
		return a.reverseStraight, Straight, nil
	}
	if a.reverseCurve != nil && a.reverseCurve.Destination == b {
		return a.reverseCurve, Curve, nil
	}
	return nil, Straight, newTopologyError("EdgeBetween", fmt.Errorf("no edge from %q to %q", a.Name, b.Name))
}

// DirectionOf returns the direction required to traverse a->b: Forward if
// the connecting edge is in a's forward set, Backward otherwise.
func (t *Track) DirectionOf(a, b *TrackNode) (TrainDirection, error) {
	if a.straight != nil && a.straight.Destination == b {
		return Forward, nil
	}
	if a.curve != nil && a.curve.Destination == b {
		return Forward, nil
	}
	if a.reverseStraight != nil && a.reverseStraight.Destination == b {
		return Backward, nil
	}
	if a.reverseCurve != nil && a.reverseCurve.Destination == b {
		return Backward, nil
	}
	return Forward, newTopologyError("DirectionOf", fmt.Errorf("no edge from %q to %q", a.Name, b.Name))
}

type nodeHeapItem struct {
	node *TrackNode
	dist int
	seq  int
}

// nodeHeap is a min-heap ordered by (dist, seq): the seq field breaks ties
// between equal-distance entries in push order, which combined with
// strict-improvement relaxation in FindPath fixes the insertion-order
// tie-break the spec requires.
type nodeHeap []*nodeHeapItem

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) {
	*h = append(*h, x.(*nodeHeapItem))
}
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
