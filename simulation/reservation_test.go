package simulation

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestReservationFIFO(t *testing.T) {
	Convey("Given a Dispatch over a square track and three agents", t, func() {
		track, nodes := buildSquare(t)
		dispatch := NewDispatch(track)
		edge := nodes["A"].ForwardEdge(Straight)

		t1, err := NewTrainAgent("t1", track, dispatch, nodes["A"], Forward)
		So(err, ShouldBeNil)
		t2, err := NewTrainAgent("t2", track, dispatch, nodes["A"], Forward)
		So(err, ShouldBeNil)
		t3, err := NewTrainAgent("t3", track, dispatch, nodes["A"], Forward)
		So(err, ShouldBeNil)

		Convey("the first request is granted immediately", func() {
			ch := dispatch.MakeReservation(edge, t1)
			select {
			case <-ch:
			default:
				t.Fatal("expected an immediately-closed channel")
			}
			So(dispatch.HeldBy(edge), ShouldEqual, t1)
		})

		Convey("later requests queue and are granted strictly in arrival order", func() {
			dispatch.MakeReservation(edge, t1)
			ch2 := dispatch.MakeReservation(edge, t2)
			ch3 := dispatch.MakeReservation(edge, t3)

			select {
			case <-ch2:
				t.Fatal("t2 should not be granted while t1 holds the edge")
			default:
			}

			So(dispatch.ReleaseReservation(edge, t1), ShouldBeNil)
			select {
			case <-ch2:
			case <-time.After(time.Second):
				t.Fatal("t2 was not granted after t1 released")
			}
			So(dispatch.HeldBy(edge), ShouldEqual, t2)

			select {
			case <-ch3:
				t.Fatal("t3 should not be granted while t2 holds the edge")
			default:
			}

			So(dispatch.ReleaseReservation(edge, t2), ShouldBeNil)
			select {
			case <-ch3:
			case <-time.After(time.Second):
				t.Fatal("t3 was not granted after t2 released")
			}
			So(dispatch.HeldBy(edge), ShouldEqual, t3)
		})

		Convey("releasing out of FIFO order is a protocol error", func() {
			other := nodes["B"].ForwardEdge(Straight)
			dispatch.MakeReservation(edge, t1)
			dispatch.MakeReservation(other, t1)

			err := dispatch.ReleaseReservation(other, t1)
			So(err, ShouldNotBeNil)
			So(err.(*SimError).Kind, ShouldEqual, ProtocolError)
		})

		Convey("releasing an edge you don't hold is a protocol error", func() {
			dispatch.MakeReservation(edge, t1)
			err := dispatch.ReleaseReservation(edge, t2)
			So(err, ShouldNotBeNil)
		})

		Convey("a directed edge and its reverse are reserved independently", func() {
			reverse := edge.Reverse()
			ch1 := dispatch.MakeReservation(edge, t1)
			ch2 := dispatch.MakeReservation(reverse, t2)
			select {
			case <-ch1:
			default:
				t.Fatal("t1 should be granted the forward edge immediately")
			}
			select {
			case <-ch2:
			default:
				t.Fatal("t2 should be granted the reverse edge immediately, independent of the forward holder")
			}
			So(dispatch.HeldBy(edge), ShouldEqual, t1)
			So(dispatch.HeldBy(reverse), ShouldEqual, t2)
		})
	})

	Convey("Spawning two agents under the same name is a protocol error", t, func() {
		track, nodes := buildSquare(t)
		dispatch := NewDispatch(track)
		_, err := NewTrainAgent("dup", track, dispatch, nodes["A"], Forward)
		So(err, ShouldBeNil)
		_, err = NewTrainAgent("dup", track, dispatch, nodes["B"], Forward)
		So(err, ShouldNotBeNil)
		So(err.(*SimError).Kind, ShouldEqual, ProtocolError)
	})
}

func TestDetectHoldAndWaitCycles(t *testing.T) {
	Convey("Given two agents each holding an edge the other waits for", t, func() {
		track, nodes := buildSquare(t)
		dispatch := NewDispatch(track)
		edgeAB := nodes["A"].ForwardEdge(Straight)
		edgeBC := nodes["B"].ForwardEdge(Straight)

		t1, _ := NewTrainAgent("t1", track, dispatch, nodes["A"], Forward)
		t2, _ := NewTrainAgent("t2", track, dispatch, nodes["B"], Forward)

		dispatch.MakeReservation(edgeAB, t1)
		dispatch.MakeReservation(edgeBC, t2)
		// t2 waits for edgeAB (held by t1); t1 waits for edgeBC (held by t2).
		dispatch.MakeReservation(edgeAB, t2)
		dispatch.MakeReservation(edgeBC, t1)

		Convey("DetectHoldAndWaitCycles reports the cycle", func() {
			cycles := dispatch.DetectHoldAndWaitCycles()
			So(len(cycles), ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given no contention", t, func() {
		track, _ := buildSquare(t)
		dispatch := NewDispatch(track)
		Convey("DetectHoldAndWaitCycles reports nothing", func() {
			So(dispatch.DetectHoldAndWaitCycles(), ShouldBeEmpty)
		})
	})
}

func TestStopTheWorld(t *testing.T) {
	Convey("Given a paused Dispatch", t, func() {
		track, _ := buildSquare(t)
		dispatch := NewDispatch(track)
		dispatch.StopTheWorld(nil)
		So(dispatch.IsPaused(), ShouldBeTrue)

		Convey("WaitIfPaused blocks until Resume", func() {
			done := make(chan struct{})
			go func() {
				dispatch.WaitIfPaused()
				close(done)
			}()

			select {
			case <-done:
				t.Fatal("WaitIfPaused returned before Resume")
			case <-time.After(50 * time.Millisecond):
			}

			dispatch.Resume()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("WaitIfPaused did not unblock after Resume")
			}
			So(dispatch.IsPaused(), ShouldBeFalse)
		})
	})
}
