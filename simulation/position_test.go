package simulation

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTrainPositionAdvance(t *testing.T) {
	Convey("Given a train positioned at the start of a square loop", t, func() {
		track, nodes := buildSquare(t)
		pos := NewTrainPosition(nodes["A"], Forward)
		So(pos.Node, ShouldEqual, nodes["A"])
		So(pos.Edge.Destination, ShouldEqual, nodes["B"])

		Convey("Advance within the current edge only changes Offset", func() {
			pos.Advance(4, Forward)
			So(pos.Node, ShouldEqual, nodes["A"])
			So(pos.Offset, ShouldEqual, 4)
			So(pos.Edge.Destination, ShouldEqual, nodes["B"])
		})

		Convey("Advance past an edge boundary rolls over to the next node and re-resolves Edge", func() {
			pos.Advance(10, Forward)
			So(pos.Node, ShouldEqual, nodes["B"])
			So(pos.Offset, ShouldEqual, 0)
			So(pos.Edge.Destination, ShouldEqual, nodes["C"])
		})

		Convey("Advance spanning multiple edges rolls over each in turn", func() {
			pos.Advance(25, Forward)
			So(pos.Node, ShouldEqual, nodes["C"])
			So(pos.Offset, ShouldEqual, 5)
		})

		_ = track
	})

	Convey("Given a train approaching a branch with SwitchState set mid-travel", t, func() {
		_, nodes := buildBranch(t)
		pos := NewTrainPosition(nodes["X"], Forward)
		So(pos.Edge, ShouldEqual, nodes["X"].ForwardEdge(Straight))

		Convey("changing the departed node's SwitchState mid-edge leaves the resolved Edge unchanged", func() {
			nodes["X"].SwitchState = Curve
			pos.Advance(1, Forward)
			// still mid-edge on the pre-resolved Straight edge: Advance only
			// re-resolves Edge on rollover, matching the "nothing cached
			// ahead of time" contract.
			So(pos.Edge, ShouldEqual, nodes["X"].ForwardEdge(Straight))
		})
	})

	Convey("NormalizeToClosestNode", t, func() {
		track, nodes := buildSquare(t)
		_ = track

		Convey("snaps forward when within 1 unit of the destination", func() {
			pos := NewTrainPosition(nodes["A"], Forward)
			pos.Offset = 9.5
			err := pos.NormalizeToClosestNode(Forward)
			So(err, ShouldBeNil)
			So(pos.Node, ShouldEqual, nodes["B"])
			So(pos.Offset, ShouldEqual, 0)
		})

		Convey("leaves position as-is when within 1 unit of the source", func() {
			pos := NewTrainPosition(nodes["A"], Forward)
			pos.Offset = 0.5
			err := pos.NormalizeToClosestNode(Forward)
			So(err, ShouldBeNil)
			So(pos.Node, ShouldEqual, nodes["A"])
			So(pos.Offset, ShouldEqual, 0.5)
		})

		Convey("a mid-edge offset is a physics divergence", func() {
			pos := NewTrainPosition(nodes["A"], Forward)
			pos.Offset = 5
			err := pos.NormalizeToClosestNode(Forward)
			So(err, ShouldNotBeNil)
			So(err.(*SimError).Kind, ShouldEqual, PhysicsDivergenceError)
		})
	})
}
