package server

import (
	"strconv"
	"sync"
	"time"

	"github.com/ts2/trainyard/simulation"
)

// AuditEntry is one audit log item sent to API/SSE clients.
type AuditEntry struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Event     string                 `json:"event"`
	Category  string                 `json:"category"`
	Severity  string                 `json:"severity"`
	Object    map[string]interface{} `json:"object"`
	Details   map[string]interface{} `json:"details"`
}

type auditState struct {
	mu          sync.RWMutex
	entries     []AuditEntry
	capacity    int
	nextID      int64
	subscribers map[chan AuditEntry]bool
}

var audits = newAuditState(1000)

func newAuditState(capacity int) *auditState {
	return &auditState{
		capacity:    capacity,
		entries:     make([]AuditEntry, 0, capacity),
		subscribers: make(map[chan AuditEntry]bool),
	}
}

func (a *auditState) append(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	entry.ID = strconv.FormatInt(a.nextID, 10)
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if len(a.entries) == a.capacity {
		copy(a.entries[0:], a.entries[1:])
		a.entries[len(a.entries)-1] = entry
	} else {
		a.entries = append(a.entries, entry)
	}

	for ch := range a.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

func (a *auditState) subscribe() chan AuditEntry {
	ch := make(chan AuditEntry, 256)
	a.mu.Lock()
	a.subscribers[ch] = true
	a.mu.Unlock()
	return ch
}

func (a *auditState) unsubscribe(ch chan AuditEntry) {
	a.mu.Lock()
	delete(a.subscribers, ch)
	a.mu.Unlock()
	close(ch)
}

// getSince returns up to limit entries with ID strictly greater than sinceID.
func (a *auditState) getSince(sinceID int64, limit int) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AuditEntry, 0, limit)
	for i := 0; i < len(a.entries); i++ {
		id, _ := strconv.ParseInt(a.entries[i].ID, 10, 64)
		if id > sinceID {
			out = append(out, a.entries[i])
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// recordAuditFromEvent converts a simulation.Event to an AuditEntry and
// appends it. Chatty per-tick events (PositionUpdatedEvent) are skipped by
// default, mirroring the teacher's own filtering of TrackItemChanged/Clock.
func recordAuditFromEvent(e simulation.Event) {
	entry := AuditEntry{
		Severity: "INFO",
		Object:   map[string]interface{}{},
		Details:  map[string]interface{}{},
	}

	switch e.Name {
	case simulation.PositionUpdatedEvent:
		return

	case simulation.ReservationGrantedEvent:
		entry.Event = "RESERVATION_GRANTED"
		entry.Category = "reservation"
		if edge, ok := e.Object.(*simulation.TrackEdge); ok {
			entry.Object["edge"] = edge.String()
		}

	case simulation.ReservationQueuedEvent:
		entry.Event = "RESERVATION_QUEUED"
		entry.Category = "reservation"
		if edge, ok := e.Object.(*simulation.TrackEdge); ok {
			entry.Object["edge"] = edge.String()
		}

	case simulation.ReservationReleasedEvent:
		entry.Event = "RESERVATION_RELEASED"
		entry.Category = "reservation"
		if edge, ok := e.Object.(*simulation.TrackEdge); ok {
			entry.Object["edge"] = edge.String()
		}

	case simulation.SwitchChangedEvent:
		entry.Event = "SWITCH_CHANGED"
		entry.Category = "track"
		if node, ok := e.Object.(*simulation.TrackNode); ok {
			entry.Object["node"] = node.Name
			entry.Details["switchState"] = node.SwitchState.String()
		}

	case simulation.TrainStartedEvent:
		entry.Event = "TRAIN_STARTED"
		entry.Category = "train"
		if a, ok := e.Object.(*simulation.TrainAgent); ok {
			entry.Object["train"] = a.Name
		}

	case simulation.TrainStoppedEvent:
		entry.Event = "TRAIN_STOPPED"
		entry.Category = "train"
		if a, ok := e.Object.(*simulation.TrainAgent); ok {
			entry.Object["train"] = a.Name
		}

	case simulation.NavigationCompleteEvent:
		entry.Event = "NAVIGATION_COMPLETE"
		entry.Category = "train"
		if a, ok := e.Object.(*simulation.TrainAgent); ok {
			entry.Object["train"] = a.Name
		}

	case simulation.ExceptionEvent:
		entry.Event = "EXCEPTION"
		entry.Category = "system"
		entry.Severity = "ERROR"
		if err, ok := e.Object.(error); ok && err != nil {
			entry.Details["error"] = err.Error()
		}

	case simulation.SuggestionsUpdatedEvent:
		entry.Event = "SUGGESTIONS_UPDATED"
		entry.Category = "advisory"
		if s, ok := e.Object.(simulation.Suggestions); ok {
			entry.Details["count"] = len(s.Items)
			for _, it := range s.Items {
				if it.Kind == simulation.SuggestionDeadlockRisk {
					entry.Severity = "WARN"
					break
				}
			}
		}

	case simulation.WorldPausedEvent:
		entry.Event = "WORLD_PAUSED"
		entry.Category = "system"
		entry.Severity = "WARN"
		if err, ok := e.Object.(error); ok && err != nil {
			entry.Details["cause"] = err.Error()
		}

	case simulation.WorldResumedEvent:
		entry.Event = "WORLD_RESUMED"
		entry.Category = "system"

	default:
		entry.Event = string(e.Name)
		entry.Category = "system"
	}

	audits.append(entry)
}
