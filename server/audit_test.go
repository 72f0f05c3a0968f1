package server

import (
	"testing"

	"github.com/ts2/trainyard/simulation"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAuditRingBuffer(t *testing.T) {
	Convey("Given an audit log with capacity 3", t, func() {
		a := newAuditState(3)

		Convey("appended entries are assigned increasing IDs", func() {
			a.append(AuditEntry{Event: "one"})
			a.append(AuditEntry{Event: "two"})
			entries := a.getSince(0, 10)
			So(len(entries), ShouldEqual, 2)
			So(entries[0].ID, ShouldEqual, "1")
			So(entries[1].ID, ShouldEqual, "2")
		})

		Convey("appending past capacity evicts the oldest entry", func() {
			a.append(AuditEntry{Event: "one"})
			a.append(AuditEntry{Event: "two"})
			a.append(AuditEntry{Event: "three"})
			a.append(AuditEntry{Event: "four"})

			entries := a.getSince(0, 10)
			So(len(entries), ShouldEqual, 3)
			So(entries[0].Event, ShouldEqual, "two")
			So(entries[2].Event, ShouldEqual, "four")
		})

		Convey("getSince only returns entries with a strictly greater ID", func() {
			a.append(AuditEntry{Event: "one"})
			a.append(AuditEntry{Event: "two"})
			a.append(AuditEntry{Event: "three"})

			entries := a.getSince(1, 10)
			So(len(entries), ShouldEqual, 2)
			So(entries[0].Event, ShouldEqual, "two")
		})
	})

	Convey("Given a subscriber to an audit log", t, func() {
		a := newAuditState(10)
		ch := a.subscribe()

		Convey("append fans the entry out to the subscriber", func() {
			a.append(AuditEntry{Event: "hello"})
			got := <-ch
			So(got.Event, ShouldEqual, "hello")
		})

		Convey("unsubscribe closes the channel", func() {
			a.unsubscribe(ch)
			_, ok := <-ch
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRecordAuditFromEvent(t *testing.T) {
	Convey("Given a fresh audit log installed as the package global", t, func() {
		prev := audits
		audits = newAuditState(10)
		defer func() { audits = prev }()

		Convey("a PositionUpdatedEvent is filtered out as too chatty", func() {
			recordAuditFromEvent(simulation.Event{Name: simulation.PositionUpdatedEvent})
			So(audits.getSince(0, 10), ShouldBeEmpty)
		})

		Convey("an ExceptionEvent is recorded at ERROR severity", func() {
			recordAuditFromEvent(simulation.Event{Name: simulation.ExceptionEvent, Object: errBoom{}})
			entries := audits.getSince(0, 10)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Severity, ShouldEqual, "ERROR")
			So(entries[0].Category, ShouldEqual, "system")
		})

		Convey("a SuggestionsUpdatedEvent with a deadlock risk is WARN", func() {
			sug := simulation.Suggestions{Items: []simulation.Suggestion{
				{Kind: simulation.SuggestionDeadlockRisk},
			}}
			recordAuditFromEvent(simulation.Event{Name: simulation.SuggestionsUpdatedEvent, Object: sug})
			entries := audits.getSince(0, 10)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Severity, ShouldEqual, "WARN")
		})
	})
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
