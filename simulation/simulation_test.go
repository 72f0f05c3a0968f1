package simulation

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// buildLine wires a short two-node straight line A->B of the given length,
// kept short so end-to-end tests complete in close to real time.
func buildLine(t *testing.T, length int) (*Track, map[string]*TrackNode) {
	t.Helper()
	track := NewTrack()
	a, err := track.AddNode("A")
	if err != nil {
		t.Fatal(err)
	}
	b, err := track.AddNode("B")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := track.AddEdge(a, b, length, Straight); err != nil {
		t.Fatal(err)
	}
	return track, map[string]*TrackNode{"A": a, "B": b}
}

func TestSimulationEndToEndStraightLine(t *testing.T) {
	Convey("Given a simulation with one train on a short straight line", t, func() {
		track, nodes := buildLine(t, 4)
		sim := NewSimulation(Options{Track: track})
		agent, err := sim.SpawnTrain("t1", nodes["A"], Forward)
		So(err, ShouldBeNil)

		events := sim.Events().Subscribe()
		defer sim.Events().Unsubscribe(events)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		go sim.Run(ctx)

		agent.NavigateTo(nodes["B"], false)

		Convey("the train completes navigation and ends up stopped at B", func() {
			completed := false
			deadline := time.After(4 * time.Second)
		loop:
			for {
				select {
				case ev := <-events:
					if ev.Name == NavigationCompleteEvent {
						completed = true
						break loop
					}
					if ev.Name == ExceptionEvent {
						t.Fatalf("unexpected exception: %v", ev.Object)
					}
				case <-deadline:
					break loop
				}
			}
			So(completed, ShouldBeTrue)

			snap := agent.Snapshot()
			So(snap.Node, ShouldEqual, "B")
			So(snap.Stopped, ShouldBeTrue)
		})
	})
}

func TestSimulationPauseResume(t *testing.T) {
	Convey("Given a running simulation", t, func() {
		track, nodes := buildLine(t, 4)
		sim := NewSimulation(Options{Track: track})
		_, err := sim.SpawnTrain("t1", nodes["A"], Forward)
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go sim.Run(ctx)

		Convey("Pause sets IsPaused and Resume clears it", func() {
			sim.Pause()
			time.Sleep(20 * time.Millisecond)
			So(sim.Dispatch.IsPaused(), ShouldBeTrue)

			sim.Resume()
			time.Sleep(20 * time.Millisecond)
			So(sim.Dispatch.IsPaused(), ShouldBeFalse)
		})
	})
}

func TestSimulationSnapshot(t *testing.T) {
	Convey("Given a freshly spawned, unstarted simulation", t, func() {
		track, nodes := buildLine(t, 4)
		sim := NewSimulation(Options{Track: track})
		_, err := sim.SpawnTrain("t1", nodes["A"], Forward)
		So(err, ShouldBeNil)

		snap := sim.Snapshot()
		So(snap.Paused, ShouldBeFalse)
		So(len(snap.Nodes), ShouldEqual, 2)
		So(len(snap.Trains), ShouldEqual, 1)
		So(snap.Trains[0].Name, ShouldEqual, "t1")
		So(snap.Trains[0].Node, ShouldEqual, "A")
	})
}
