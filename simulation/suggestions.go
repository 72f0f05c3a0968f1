package simulation

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SuggestionKind categorizes one advisory emitted by the SuggestionEngine.
type SuggestionKind string

const (
	// SuggestionDeadlockRisk fires when DetectHoldAndWaitCycles finds a
	// holds-waits-for cycle: the safety-critical advisory (§5/§9).
	SuggestionDeadlockRisk SuggestionKind = "DEADLOCK_RISK"
	// SuggestionLongReservationWait fires when an agent has been queued for
	// an edge longer than the engine's wait threshold.
	SuggestionLongReservationWait SuggestionKind = "RESERVATION_WAIT"
	// SuggestionReleaseIdle fires when an agent holds a look-ahead
	// reservation (an edge beyond the one it currently occupies) that no
	// other agent is waiting on, and so serves no purpose yet.
	SuggestionReleaseIdle SuggestionKind = "RESERVATION_RELEASE"
)

// SuggestionAction is an actionable command a client may accept; it maps to
// an existing Dispatch/Simulation operation (mirroring the teacher's
// object/action/params shape so the server layer's accept-handler can stay
// generic).
type SuggestionAction struct {
	Object string                 `json:"object"`
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params"`
}

// Suggestion is one scored, explained, actionable advisory.
type Suggestion struct {
	ID      string             `json:"id"`
	Kind    SuggestionKind     `json:"kind"`
	Title   string             `json:"title"`
	Reason  string             `json:"reason"`
	Score   float64            `json:"score"`
	Actions []SuggestionAction `json:"actions"`
}

// Suggestions wraps one computed batch for serialization onto the event bus.
type Suggestions struct {
	Items       []Suggestion `json:"items"`
	GeneratedAt Time         `json:"generatedAt"`
}

// SuggestionEngine periodically scans Dispatch state for reservation and
// deadlock hazards and emits scored, ranked, filterable Suggestions — the
// advisory layer re-grounded from the teacher's route/signal suggestion
// engine (same score/Accept/Reject/Recompute shape) onto this module's
// reservation-arbiter domain.
type SuggestionEngine struct {
	dispatch *Dispatch
	interval time.Duration

	mu             sync.Mutex
	lastComputedAt time.Time
	rejectedUntil  map[string]time.Time
	last           Suggestions

	// longWaitThreshold is how long an agent must sit in a FIFO wait queue
	// before SuggestionLongReservationWait fires for it.
	longWaitThreshold time.Duration
}

// NewSuggestionEngine creates an engine polling dispatch every interval, with
// the teacher's own conservative defaults scaled to this domain: a 3-minute
// recompute cadence is too coarse for reservation hazards that resolve in
// seconds, so the defaults here are tighter.
func NewSuggestionEngine(dispatch *Dispatch, interval time.Duration) *SuggestionEngine {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SuggestionEngine{
		dispatch:          dispatch,
		interval:          interval,
		rejectedUntil:     make(map[string]time.Time),
		longWaitThreshold: 5 * time.Second,
	}
}

// RejectUntil suppresses a suggestion ID until the given time.
func (e *SuggestionEngine) RejectUntil(id string, until time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectedUntil[id] = until
}

// Reject suppresses a suggestion ID for the given duration (5 minutes if
// non-positive, matching the teacher's own default).
func (e *SuggestionEngine) Reject(id string, d time.Duration) {
	if d <= 0 {
		d = 5 * time.Minute
	}
	e.RejectUntil(id, time.Now().Add(d))
}

// RecomputeIfDue recomputes and publishes Suggestions if the interval has
// elapsed since the last computation. Returns true if it recomputed.
func (e *SuggestionEngine) RecomputeIfDue() bool {
	e.mu.Lock()
	due := time.Since(e.lastComputedAt) >= e.interval
	e.mu.Unlock()
	if !due {
		return false
	}
	e.Recompute()
	return true
}

// Recompute computes, filters out rejected IDs, and publishes a fresh
// Suggestions batch unconditionally.
func (e *SuggestionEngine) Recompute() {
	s := e.computeSuggestions()

	e.mu.Lock()
	e.lastComputedAt = time.Now()
	now := time.Now()
	filtered := s.Items[:0]
	for _, it := range s.Items {
		if until, ok := e.rejectedUntil[it.ID]; ok && now.Before(until) {
			continue
		}
		filtered = append(filtered, it)
	}
	s.Items = filtered
	e.last = *s
	e.mu.Unlock()

	e.dispatch.events.Publish(Event{Name: SuggestionsUpdatedEvent, Object: *s})
}

// Last returns the most recently computed (and rejection-filtered) batch.
func (e *SuggestionEngine) Last() Suggestions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Accept runs the dispatch stopTheWorld action of suggestion id, if it
// carries one (only SuggestionDeadlockRisk does), and clears it from the
// last-computed batch. Other attached actions (release, inspect) are not
// executed: accepting those kinds is an acknowledgement only.
func (e *SuggestionEngine) Accept(id string) error {
	e.mu.Lock()
	var found *Suggestion
	for i := range e.last.Items {
		if e.last.Items[i].ID == id {
			s := e.last.Items[i]
			found = &s
			e.last.Items = append(e.last.Items[:i:i], e.last.Items[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	if found == nil {
		return fmt.Errorf("unknown suggestion: %s", id)
	}
	for _, act := range found.Actions {
		if act.Object == "dispatch" && act.Action == "stopTheWorld" {
			e.dispatch.StopTheWorld(fmt.Errorf("operator accepted deadlock-risk advisory %s", id))
		}
	}
	return nil
}

func (e *SuggestionEngine) computeSuggestions() *Suggestions {
	s := &Suggestions{GeneratedAt: Now()}

	for _, cycle := range e.dispatch.DetectHoldAndWaitCycles() {
		names := make([]string, len(cycle))
		for i, a := range cycle {
			names[i] = a.Name
		}
		id := fmt.Sprintf("%s:%v", SuggestionDeadlockRisk, names)
		s.Items = append(s.Items, Suggestion{
			ID:     id,
			Kind:   SuggestionDeadlockRisk,
			Title:  "Potential reservation deadlock",
			Reason: fmt.Sprintf("Trains %v form a holds-waits-for cycle over their reserved edges.", names),
			Score:  1000, // always outranks non-fatal advisories
			Actions: []SuggestionAction{
				{Object: "dispatch", Action: "stopTheWorld", Params: map[string]interface{}{"trains": names}},
			},
		})
	}

	snapshot := e.dispatch.Snapshot()
	queueLen := make(map[*TrackEdge]int, len(snapshot))
	for _, rec := range snapshot {
		queueLen[rec.Edge] = rec.QueueLen
	}

	for _, agent := range e.dispatch.Agents() {
		held := e.dispatch.HeldReservations(agent)
		if len(held) < 2 {
			continue
		}
		// held[0] is the edge the agent is actively occupying; anything
		// behind it is a look-ahead reservation it doesn't need yet.
		for _, edge := range held[1:] {
			if queueLen[edge] != 0 {
				continue
			}
			id := fmt.Sprintf("%s:%s:%s", SuggestionReleaseIdle, agent.Name, edge)
			s.Items = append(s.Items, Suggestion{
				ID:     id,
				Kind:   SuggestionReleaseIdle,
				Title:  fmt.Sprintf("Train %s holds %s with nobody waiting", agent.Name, edge),
				Reason: fmt.Sprintf("%s has reserved %s ahead of its current position, but no train is queued for it.", agent.Name, edge),
				Score:  3,
				Actions: []SuggestionAction{
					{Object: "dispatch", Action: "release", Params: map[string]interface{}{"train": agent.Name, "edge": edge.String()}},
				},
			})
		}
	}

	for _, rec := range snapshot {
		if rec.Holder == nil || rec.QueueLen == 0 {
			continue
		}
		wait := time.Since(rec.OldestWaitSince)
		if wait < e.longWaitThreshold {
			continue
		}
		id := fmt.Sprintf("%s:%s", SuggestionLongReservationWait, rec.Edge)
		s.Items = append(s.Items, Suggestion{
			ID:     id,
			Kind:   SuggestionLongReservationWait,
			Title:  fmt.Sprintf("A train has waited %.0fs for %s, held by %s", wait.Seconds(), rec.Edge, rec.Holder.Name),
			Reason: fmt.Sprintf("%d train(s) queued behind %s for over %s.", rec.QueueLen, rec.Holder.Name, e.longWaitThreshold),
			Score:  10 + wait.Seconds(),
			Actions: []SuggestionAction{
				{Object: "train", Action: "inspect", Params: map[string]interface{}{"name": rec.Holder.Name}},
			},
		})
	}

	sort.Slice(s.Items, func(i, j int) bool { return s.Items[i].Score > s.Items[j].Score })
	return s
}
