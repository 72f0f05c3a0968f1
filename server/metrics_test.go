package server

import (
	"testing"
	"time"

	"github.com/ts2/trainyard/simulation"
	. "github.com/smartystreets/goconvey/convey"
)

// withFreshMetrics swaps the package-level metrics state for a clean one for
// the duration of fn, restoring the previous state afterwards — the metrics
// ticker and handlers all read/write the package global, so tests need
// exclusive access to it.
func withFreshMetrics(fn func()) {
	prev := metrics
	metrics = &metricsState{deadlockFirstSeen: make(map[string]time.Time)}
	defer func() { metrics = prev }()
	fn()
}

func TestUpdateMetricsThroughput(t *testing.T) {
	Convey("Given a fresh metrics state", t, func() {
		withFreshMetrics(func() {
			Convey("NavigationCompleteEvent increments completions", func() {
				updateMetrics(simulation.Event{Name: simulation.NavigationCompleteEvent})
				updateMetrics(simulation.Event{Name: simulation.NavigationCompleteEvent})
				So(len(metrics.completions), ShouldEqual, 2)
			})

			Convey("a SuggestionsUpdatedEvent carrying a deadlock risk opens it", func() {
				sug := simulation.Suggestions{Items: []simulation.Suggestion{
					{ID: "d1", Kind: simulation.SuggestionDeadlockRisk},
				}}
				updateMetrics(simulation.Event{Name: simulation.SuggestionsUpdatedEvent, Object: sug})
				So(metrics.openDeadlocks, ShouldEqual, 1)
				So(metrics.deadlockFirstSeen, ShouldContainKey, "d1")

				Convey("and the next snapshot without it resolves and records MTTR", func() {
					updateMetrics(simulation.Event{Name: simulation.SuggestionsUpdatedEvent, Object: simulation.Suggestions{}})
					So(metrics.openDeadlocks, ShouldEqual, 0)
					So(len(metrics.resolutionDurations), ShouldEqual, 1)
				})
			})

			Convey("a long RESERVATION_WAIT suggestion records a wait point", func() {
				sug := simulation.Suggestions{Items: []simulation.Suggestion{
					{ID: "w1", Kind: simulation.SuggestionLongReservationWait, Score: 17},
				}}
				updateMetrics(simulation.Event{Name: simulation.SuggestionsUpdatedEvent, Object: sug})
				So(len(metrics.waits), ShouldEqual, 1)
				So(metrics.waits[0].seconds, ShouldEqual, 7)
			})
		})
	})
}

func TestTakeSnapshot(t *testing.T) {
	Convey("Given a dispatch over a simple track with no contention", t, func() {
		track := simulation.NewTrack()
		a, _ := track.AddNode("a")
		b, _ := track.AddNode("b")
		_, _ = track.AddEdge(a, b, 5, simulation.Straight)
		dispatch := simulation.NewDispatch(track)

		withFreshMetrics(func() {
			Convey("takeSnapshot records zero utilization and appends one snapshot", func() {
				takeSnapshot(dispatch)
				So(len(metrics.snapshots), ShouldEqual, 1)
				So(metrics.snapshots[0].utilization, ShouldEqual, 0)
			})
		})
	})
}

func TestRecordSuggestionDecision(t *testing.T) {
	Convey("Given a fresh metrics state", t, func() {
		withFreshMetrics(func() {
			recordSuggestionDecision(true)
			recordSuggestionDecision(false)
			recordSuggestionDecision(true)

			Convey("accepted and rejected counts are tracked separately", func() {
				So(len(metrics.accepted), ShouldEqual, 2)
				So(len(metrics.rejected), ShouldEqual, 1)
			})
		})
	})
}

func TestMaxInt(t *testing.T) {
	Convey("maxInt returns the larger operand", t, func() {
		So(maxInt(3, 5), ShouldEqual, 5)
		So(maxInt(5, 3), ShouldEqual, 5)
		So(maxInt(4, 4), ShouldEqual, 4)
	})
}
