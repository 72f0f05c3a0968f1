package simulation

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSuggestionEngineDeadlockRisk(t *testing.T) {
	Convey("Given a dispatch with a live holds-waits-for cycle", t, func() {
		track, nodes := buildSquare(t)
		dispatch := NewDispatch(track)
		edgeAB := nodes["A"].ForwardEdge(Straight)
		edgeBC := nodes["B"].ForwardEdge(Straight)

		t1, _ := NewTrainAgent("t1", track, dispatch, nodes["A"], Forward)
		t2, _ := NewTrainAgent("t2", track, dispatch, nodes["B"], Forward)
		dispatch.MakeReservation(edgeAB, t1)
		dispatch.MakeReservation(edgeBC, t2)
		dispatch.MakeReservation(edgeAB, t2)
		dispatch.MakeReservation(edgeBC, t1)

		engine := NewSuggestionEngine(dispatch, time.Hour)

		Convey("Recompute surfaces a DEADLOCK_RISK suggestion ranked first", func() {
			engine.Recompute()
			last := engine.Last()
			So(len(last.Items), ShouldBeGreaterThan, 0)
			So(last.Items[0].Kind, ShouldEqual, SuggestionDeadlockRisk)
		})

		Convey("Accept on a DEADLOCK_RISK suggestion pauses the world", func() {
			engine.Recompute()
			last := engine.Last()
			So(engine.Accept(last.Items[0].ID), ShouldBeNil)
			So(dispatch.IsPaused(), ShouldBeTrue)
		})

		Convey("Reject suppresses the suggestion until the rejection expires", func() {
			engine.Recompute()
			id := engine.Last().Items[0].ID
			engine.Reject(id, time.Hour)
			engine.Recompute()
			for _, it := range engine.Last().Items {
				So(it.ID, ShouldNotEqual, id)
			}
		})
	})

	Convey("Given an uncontended dispatch", t, func() {
		track, _ := buildSquare(t)
		dispatch := NewDispatch(track)
		engine := NewSuggestionEngine(dispatch, time.Hour)

		Convey("Recompute yields no suggestions", func() {
			engine.Recompute()
			So(engine.Last().Items, ShouldBeEmpty)
		})
	})

	Convey("Accept on an unknown suggestion ID is an error", t, func() {
		track, _ := buildSquare(t)
		dispatch := NewDispatch(track)
		engine := NewSuggestionEngine(dispatch, time.Hour)
		So(engine.Accept("no-such-id"), ShouldNotBeNil)
	})

	Convey("Given an agent holding a look-ahead reservation nobody is waiting on", t, func() {
		track, nodes := buildSquare(t)
		dispatch := NewDispatch(track)
		edgeAB := nodes["A"].ForwardEdge(Straight)
		edgeBC := nodes["B"].ForwardEdge(Straight)

		t1, _ := NewTrainAgent("t1", track, dispatch, nodes["A"], Forward)
		dispatch.MakeReservation(edgeAB, t1)
		dispatch.MakeReservation(edgeBC, t1)

		engine := NewSuggestionEngine(dispatch, time.Hour)

		Convey("Recompute surfaces a RESERVATION_RELEASE suggestion for the look-ahead edge", func() {
			engine.Recompute()
			last := engine.Last()
			found := false
			for _, it := range last.Items {
				if it.Kind == SuggestionReleaseIdle {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})

		Convey("the currently-occupied edge never generates a release suggestion for itself", func() {
			engine.Recompute()
			unwanted := string(SuggestionReleaseIdle) + ":t1:" + edgeAB.String()
			for _, it := range engine.Last().Items {
				So(it.ID, ShouldNotEqual, unwanted)
			}
		})
	})
}
