package simulation

import "sync"

// NavigationEvent is one atomic instruction in a compiled navigation
// program: direction, switch, reservation, start, or stop. The variant set
// is closed — navSealed is unexported so no package outside simulation can
// add a sixth kind — and the executor interprets it with an exhaustive type
// switch rather than virtual dispatch.
type NavigationEvent interface {
	navSealed()
}

// SetDirectionEvent is legal only while the train is stopped.
type SetDirectionEvent struct {
	Target TrainDirection
}

// ReserveEvent requests exclusive access to a track edge from Dispatch.
// Node reservations (§9 open question) are modeled via ReserveNodeEvent but
// never serviced by the arbiter; they are no-ops by design.
type ReserveEvent struct {
	Edge *TrackEdge
}

// ReserveNodeEvent is the enriched, unserviced node-reservation variant
// noted in spec §9: the compiler emits it but Dispatch treats it as a no-op.
type ReserveNodeEvent struct {
	Node *TrackNode
}

// SetSwitchEvent only matters at a 3-edge node; it is a no-op for Straight
// on a non-branching node and a sequencing error for Curve there.
type SetSwitchEvent struct {
	Node   *TrackNode
	Branch Branch
}

// StartEvent is legal only while stopped.
type StartEvent struct{}

// StopEvent schedules a decelerate-to-stop after travelling Distance from
// Origin, arriving at Destination.
type StopEvent struct {
	Origin, Destination *TrackNode
	Distance            float64
}

func (SetDirectionEvent) navSealed() {}
func (ReserveEvent) navSealed()      {}
func (ReserveNodeEvent) navSealed()  {}
func (SetSwitchEvent) navSealed()    {}
func (StartEvent) navSealed()        {}
func (StopEvent) navSealed()         {}

// EventName tags an externally observable simulation Event, the way the
// teacher's server/simulation packages tag domain events for the audit log,
// metrics ticker, and websocket hub.
type EventName string

const (
	ReservationGrantedEvent  EventName = "reservationGranted"
	ReservationQueuedEvent   EventName = "reservationQueued"
	ReservationReleasedEvent EventName = "reservationReleased"
	SwitchChangedEvent       EventName = "switchChanged"
	TrainStartedEvent        EventName = "trainStarted"
	TrainStoppedEvent        EventName = "trainStopped"
	PositionUpdatedEvent     EventName = "positionUpdated"
	NavigationCompleteEvent  EventName = "navigationComplete"
	ExceptionEvent           EventName = "exception"
	SuggestionsUpdatedEvent  EventName = "suggestionsUpdated"
	DeadlockDetectedEvent    EventName = "deadlockDetected"
	WorldPausedEvent         EventName = "worldPaused"
	WorldResumedEvent        EventName = "worldResumed"
)

// Event is a single observable occurrence, broadcast to every subscriber of
// a Simulation. Object carries the event-specific payload (a *TrainAgent, a
// *TrackEdge, the error of an ExceptionEvent, a Suggestions snapshot, ...).
type Event struct {
	Name   EventName
	Object interface{}
}

// Broadcaster is a minimal fan-out Observable<Event>: every subscriber gets
// its own buffered channel and is never blocked by a slow reader (sends are
// dropped, not queued without bound), matching the teacher's audit
// subscribe/unsubscribe/broadcast-non-blocking shape.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]bool
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan Event]bool)}
}

// Subscribe registers a new listener and returns its channel.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 256)
	b.mu.Lock()
	b.subscribers[ch] = true
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener's channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish broadcasts ev to every current subscriber, non-blockingly.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
