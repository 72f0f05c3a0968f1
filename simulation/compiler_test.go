package simulation

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCompileProgram(t *testing.T) {
	Convey("Given a straight-line path with no direction or switch changes", t, func() {
		track, nodes := buildSquare(t)
		path, err := track.FindPath(nodes["A"], nodes["C"], false)
		So(err, ShouldBeNil)

		events, reserved, err := CompileProgram(track, Forward, path)
		So(err, ShouldBeNil)

		Convey("the reservation-ordering invariant holds: reserved edges equal the path's own traversal order", func() {
			want, err := pathEdges(track, path)
			So(err, ShouldBeNil)
			So(reserved, ShouldResemble, want)
		})

		Convey("the program starts with Reserve/Start and ends with a Stop at the final destination", func() {
			_, ok := events[0].(ReserveNodeEvent)
			So(ok, ShouldBeTrue)
			last := events[len(events)-1]
			stop, ok := last.(StopEvent)
			So(ok, ShouldBeTrue)
			So(stop.Destination, ShouldEqual, nodes["C"])
		})

		Convey("validateProgram accepts a well-formed compiled program", func() {
			So(validateProgram(events), ShouldBeNil)
		})
	})

	Convey("Given a trivial same-node path", t, func() {
		track, nodes := buildSquare(t)
		events, reserved, err := CompileProgram(track, Forward, []*TrackNode{nodes["A"]})
		So(err, ShouldBeNil)
		So(events, ShouldBeNil)
		So(reserved, ShouldBeNil)
	})

	Convey("Given a path through a branching node", t, func() {
		track, nodes := buildBranch(t)
		path := []*TrackNode{nodes["X"], nodes["Y"]}
		events, reserved, err := CompileProgram(track, Forward, path)
		So(err, ShouldBeNil)
		So(len(reserved), ShouldEqual, 1)
		So(reserved[0].Destination, ShouldEqual, nodes["Y"])

		Convey("the compiled single-hop program out of the branching node is well-formed", func() {
			So(validateProgram(events), ShouldBeNil)
		})
	})

	Convey("Given a path requiring a mid-route reversal", t, func() {
		track, nodes := buildSquare(t)
		// A -> B -> A: forces a direction change, Stop, SetDirection, Start.
		path := []*TrackNode{nodes["A"], nodes["B"], nodes["A"]}
		events, reserved, err := CompileProgram(track, Forward, path)
		So(err, ShouldBeNil)
		So(len(reserved), ShouldEqual, 2)

		foundStop, foundSetDirection := false, false
		for _, e := range events {
			switch e.(type) {
			case StopEvent:
				foundStop = true
			case SetDirectionEvent:
				foundSetDirection = true
			}
		}
		So(foundStop, ShouldBeTrue)
		So(foundSetDirection, ShouldBeTrue)
		So(validateProgram(events), ShouldBeNil)
	})

	Convey("Given a path found with reverse movement allowed", t, func() {
		track, nodes := buildSquare(t)
		path, err := track.FindPath(nodes["A"], nodes["D"], true)
		So(err, ShouldBeNil)
		So(path, ShouldResemble, []*TrackNode{nodes["A"], nodes["D"]})

		events, reserved, err := CompileProgram(track, Forward, path)
		So(err, ShouldBeNil)
		So(len(reserved), ShouldEqual, 1)

		Convey("the program flips direction to Backward to traverse the reverse edge", func() {
			setDir, ok := events[0].(SetDirectionEvent)
			So(ok, ShouldBeTrue)
			So(setDir.Target, ShouldEqual, Backward)
			So(validateProgram(events), ShouldBeNil)
		})
	})
}

// pathEdges resolves the edge traversed between each consecutive pair of
// nodes in path, independent of CompileProgram, for the invariant check.
func pathEdges(track *Track, path []*TrackNode) ([]*TrackEdge, error) {
	edges := make([]*TrackEdge, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		e, _, err := track.EdgeBetween(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}
