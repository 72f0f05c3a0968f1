package simulation

import "fmt"

// CompileProgram turns a node path into an ordered list of NavigationEvents
// plus, as a side product, the edges reserved in order (which must equal
// the path's traversal order — the reservation-ordering invariant of §4.4).
//
// A path of length <= 1 yields an empty program (nothing to navigate).
func CompileProgram(track *Track, initialDirection TrainDirection, path []*TrackNode) ([]NavigationEvent, []*TrackEdge, error) {
	n := len(path)
	if n <= 1 {
		return nil, nil, nil
	}

	var events []NavigationEvent
	var reservedEdges []*TrackEdge

	edge0, branch0, dir0, err := hop(track, path[0], path[1])
	if err != nil {
		return nil, nil, err
	}

	dCur := initialDirection
	if dir0 != dCur {
		events = append(events, SetDirectionEvent{Target: dir0})
		dCur = dir0
	}

	events = append(events,
		ReserveNodeEvent{Node: path[0]},
		ReserveEvent{Edge: edge0},
		ReserveNodeEvent{Node: path[1]},
		StartEvent{},
	)
	reservedEdges = append(reservedEdges, edge0)

	origin := path[0]
	segmentLen := 0.0
	_ = branch0 // the loop's first iteration emits the first hop's SetSwitch; its edge was already reserved above.

	for i := 0; i < n-1; i++ {
		edge, branch, dir, herr := hop(track, path[i], path[i+1])
		if herr != nil {
			return nil, nil, herr
		}

		switch {
		case dir != dCur:
			events = append(events, StopEvent{Origin: origin, Destination: path[i], Distance: segmentLen})
			events = append(events, SetDirectionEvent{Target: dir})
			events = append(events,
				ReserveEvent{Edge: edge},
				ReserveNodeEvent{Node: path[i+1]},
				SetSwitchEvent{Node: path[i], Branch: branch},
				StartEvent{},
			)
			reservedEdges = append(reservedEdges, edge)
			origin = path[i]
			dCur = dir
			segmentLen = 0

		case i == 0:
			events = append(events, SetSwitchEvent{Node: path[i], Branch: branch})

		default:
			events = append(events,
				ReserveEvent{Edge: edge},
				ReserveNodeEvent{Node: path[i+1]},
				SetSwitchEvent{Node: path[i], Branch: branch},
			)
			reservedEdges = append(reservedEdges, edge)
		}

		segmentLen += float64(edge.Length)
	}

	events = append(events, StopEvent{Origin: origin, Destination: path[n-1], Distance: segmentLen})

	return events, reservedEdges, nil
}

// hop resolves the connecting edge, its branch, and the direction required
// to traverse from a to b.
func hop(track *Track, a, b *TrackNode) (*TrackEdge, Branch, TrainDirection, error) {
	edge, branch, err := track.EdgeBetween(a, b)
	if err != nil {
		return nil, Straight, Forward, err
	}
	dir, err := track.DirectionOf(a, b)
	if err != nil {
		return nil, Straight, Forward, err
	}
	return edge, branch, dir, nil
}

// ReservationSequence extracts, in order, the edges a compiled program
// reserves — used to check the reservation-ordering invariant against the
// path's own traversal order.
func ReservationSequence(events []NavigationEvent) []*TrackEdge {
	var out []*TrackEdge
	for _, e := range events {
		if r, ok := e.(ReserveEvent); ok {
			out = append(out, r.Edge)
		}
	}
	return out
}

// validateProgram is a lightweight internal sanity check used by tests and by
// TrainAgent.navigateTo: every Stop must be preceded by a Start with no other
// Stop in between, and every SetDirection must be preceded by either the
// start of the program or a Stop.
func validateProgram(events []NavigationEvent) error {
	started := false
	justStopped := true // the start of the program counts as a valid predecessor
	for i, e := range events {
		switch e.(type) {
		case StartEvent:
			started = true
			justStopped = false
		case StopEvent:
			if !started {
				return fmt.Errorf("event %d: Stop with no preceding Start", i)
			}
			justStopped = true
			started = false
		case SetDirectionEvent:
			if !justStopped {
				return fmt.Errorf("event %d: SetDirection not preceded by program start or Stop", i)
			}
		default:
			justStopped = false
		}
	}
	return nil
}
