package simulation

import (
	"fmt"
	"sync"
	"time"
)

// waiter is one entry in a ReservationRecord's FIFO wait queue.
type waiter struct {
	agent   *TrainAgent
	confirm chan struct{}
	since   time.Time
}

// ReservationRecord tracks the exclusive holder of one directed edge and the
// FIFO queue of agents waiting for it. At most one holder; releasing
// transfers to the queue head.
type ReservationRecord struct {
	edge       *TrackEdge
	reservedBy *TrainAgent
	waitQueue  []*waiter
}

// Dispatch is the central reservation arbiter: it owns one ReservationRecord
// per directed edge (both a forward edge and its reverse are independently
// reservable), serializes access to the table with a mutex standing in for
// "the Dispatch context" of spec §5, and multiplexes Exception messages into
// a global stopTheWorld pause.
type Dispatch struct {
	mu    sync.Mutex
	cond  *sync.Cond
	track *Track

	reservations map[*TrackEdge]*ReservationRecord
	held         map[*TrainAgent][]*TrackEdge

	agentsByName map[string]*TrainAgent
	paused       bool

	events *Broadcaster
}

// NewDispatch creates the arbiter and pre-registers one ReservationRecord per
// directed edge in track (both directions), as required by §3's "created
// once per edge at Track registration time and persist" lifecycle.
func NewDispatch(track *Track) *Dispatch {
	d := &Dispatch{
		track:        track,
		reservations: make(map[*TrackEdge]*ReservationRecord),
		held:         make(map[*TrainAgent][]*TrackEdge),
		agentsByName: make(map[string]*TrainAgent),
		events:       NewBroadcaster(),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, e := range track.Edges() {
		d.reservations[e] = &ReservationRecord{edge: e}
		d.reservations[e.Reverse()] = &ReservationRecord{edge: e.Reverse()}
	}
	return d
}

// Events exposes the Dispatch-level Observable<Event> stream (§6).
func (d *Dispatch) Events() *Broadcaster { return d.events }

// MakeReservation grants edge to agent immediately if free, or enqueues the
// agent at the tail of the FIFO wait queue and returns a channel that is
// closed once the reservation is eventually granted. FIFO is strict: a
// later-arriving agent never jumps the queue.
func (d *Dispatch) MakeReservation(edge *TrackEdge, agent *TrainAgent) <-chan struct{} {
	d.mu.Lock()
	rec, ok := d.reservations[edge]
	if !ok {
		d.mu.Unlock()
		ch := make(chan struct{})
		close(ch)
		return ch // unregistered edge: treated as immediately available, never happens for a real track edge
	}

	if rec.reservedBy == nil {
		rec.reservedBy = agent
		d.held[agent] = append(d.held[agent], edge)
		d.mu.Unlock()
		d.events.Publish(Event{Name: ReservationGrantedEvent, Object: edge})
		ch := make(chan struct{})
		close(ch)
		return ch
	}

	ch := make(chan struct{})
	rec.waitQueue = append(rec.waitQueue, &waiter{agent: agent, confirm: ch, since: time.Now()})
	d.mu.Unlock()
	d.events.Publish(Event{Name: ReservationQueuedEvent, Object: edge})
	return ch
}

// ReservationSnapshot is a read-only view of one occupied or contended edge,
// used by the advisory engine and by external observers of Dispatch state.
type ReservationSnapshot struct {
	Edge            *TrackEdge
	Holder          *TrainAgent
	QueueLen        int
	OldestWaitSince time.Time
}

// Snapshot returns one ReservationSnapshot for every edge that is currently
// held or has agents waiting on it; free, uncontended edges are omitted.
func (d *Dispatch) Snapshot() []ReservationSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ReservationSnapshot, 0, len(d.reservations))
	for edge, rec := range d.reservations {
		if rec.reservedBy == nil && len(rec.waitQueue) == 0 {
			continue
		}
		snap := ReservationSnapshot{Edge: edge, Holder: rec.reservedBy, QueueLen: len(rec.waitQueue)}
		if len(rec.waitQueue) > 0 {
			snap.OldestWaitSince = rec.waitQueue[0].since
		}
		out = append(out, snap)
	}
	return out
}

// EdgeCount returns the total number of directed edges registered with the
// arbiter (both directions of every track edge), used as the denominator for
// utilization advisories.
func (d *Dispatch) EdgeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reservations)
}

// ReleaseReservation releases edge, which must currently be held by agent and
// must be the head of that agent's held-reservation list (order violation
// otherwise). If another agent is waiting, it becomes the new holder and its
// confirmation channel is closed.
func (d *Dispatch) ReleaseReservation(edge *TrackEdge, agent *TrainAgent) error {
	d.mu.Lock()

	rec, ok := d.reservations[edge]
	if !ok {
		d.mu.Unlock()
		return newProtocolError("ReleaseReservation", fmt.Errorf("edge %s is not a registered reservation", edge))
	}
	if rec.reservedBy != agent {
		d.mu.Unlock()
		return newProtocolError("ReleaseReservation", fmt.Errorf("edge %s is not held by the releasing agent", edge))
	}

	heldList := d.held[agent]
	if len(heldList) == 0 || heldList[0] != edge {
		d.mu.Unlock()
		return newProtocolError("ReleaseReservation", fmt.Errorf("edge %s released out of FIFO order", edge))
	}
	d.held[agent] = heldList[1:]

	if len(rec.waitQueue) == 0 {
		rec.reservedBy = nil
		d.mu.Unlock()
		d.events.Publish(Event{Name: ReservationReleasedEvent, Object: edge})
		return nil
	}

	next := rec.waitQueue[0]
	rec.waitQueue = rec.waitQueue[1:]
	rec.reservedBy = next.agent
	d.held[next.agent] = append(d.held[next.agent], edge)
	d.mu.Unlock()

	close(next.confirm)
	d.events.Publish(Event{Name: ReservationReleasedEvent, Object: edge})
	return nil
}

// HeldBy returns the edge's current holder, or nil if free. Backs the
// Dispatch.reservations[edge].reservedBy Observable of §6.
func (d *Dispatch) HeldBy(edge *TrackEdge) *TrainAgent {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.reservations[edge]
	if !ok {
		return nil
	}
	return rec.reservedBy
}

// HeldReservations returns a snapshot of the edges currently held by agent,
// in FIFO order (the Observable<List<TrackEdge>> of §6).
func (d *Dispatch) HeldReservations(agent *TrainAgent) []*TrackEdge {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*TrackEdge, len(d.held[agent]))
	copy(out, d.held[agent])
	return out
}

func (d *Dispatch) registerAgent(a *TrainAgent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agentsByName[a.Name]; exists {
		return newProtocolError("spawnTrain", fmt.Errorf("train name %q already in use", a.Name))
	}
	d.agentsByName[a.Name] = a
	return nil
}

// Agent looks up a previously spawned TrainAgent by name.
func (d *Dispatch) Agent(name string) (*TrainAgent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agentsByName[name]
	return a, ok
}

// Agents returns every spawned agent.
func (d *Dispatch) Agents() []*TrainAgent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*TrainAgent, 0, len(d.agentsByName))
	for _, a := range d.agentsByName {
		out = append(out, a)
	}
	return out
}

// StopTheWorld pauses every agent's execution context. It is invoked when
// Dispatch receives an Exception message from any agent (§4.7, §7): all
// errors in §7 are fatal to the originating agent and escalate here.
func (d *Dispatch) StopTheWorld(cause error) {
	logger.Warn("stopping the world", "cause", cause)
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
	d.events.Publish(Event{Name: WorldPausedEvent, Object: cause})
}

// Resume lifts a prior StopTheWorld pause.
func (d *Dispatch) Resume() {
	logger.Info("resuming the world")
	d.mu.Lock()
	d.paused = false
	d.cond.Broadcast()
	d.mu.Unlock()
	d.events.Publish(Event{Name: WorldResumedEvent})
}

// IsPaused reports the current stopTheWorld state.
func (d *Dispatch) IsPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// WaitIfPaused blocks the calling agent's goroutine while the world is
// paused. Agents call this at tick boundaries, the "periodic tick wake"
// suspension point of §5.
func (d *Dispatch) WaitIfPaused() {
	d.mu.Lock()
	for d.paused {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

// DetectHoldAndWaitCycles scans the holds -> waits-for graph across agents
// for cycles (the deadlock risk named as an open risk in §5/§9: two trains
// each holding an edge the other is waiting for). It does not prevent the
// cycle, only reports it — the suggestion engine surfaces it as a
// DEADLOCK_RISK advisory, and Dispatch.StopTheWorld is the fatal fallback an
// agent-side deadlock timeout (outside this core) could invoke.
func (d *Dispatch) DetectHoldAndWaitCycles() [][]*TrainAgent {
	d.mu.Lock()
	defer d.mu.Unlock()

	waitsFor := make(map[*TrainAgent]map[*TrainAgent]bool)
	for _, rec := range d.reservations {
		if rec.reservedBy == nil || len(rec.waitQueue) == 0 {
			continue
		}
		for _, w := range rec.waitQueue {
			if w.agent == rec.reservedBy {
				continue
			}
			if waitsFor[w.agent] == nil {
				waitsFor[w.agent] = make(map[*TrainAgent]bool)
			}
			waitsFor[w.agent][rec.reservedBy] = true
		}
	}

	var cycles [][]*TrainAgent
	visited := make(map[*TrainAgent]bool)
	var stack []*TrainAgent
	onStack := make(map[*TrainAgent]bool)

	var visit func(a *TrainAgent)
	visit = func(a *TrainAgent) {
		visited[a] = true
		onStack[a] = true
		stack = append(stack, a)
		for next := range waitsFor[a] {
			if onStack[next] {
				// Found a cycle: slice the stack from next's position.
				for i, s := range stack {
					if s == next {
						cycle := append([]*TrainAgent{}, stack[i:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}
		stack = stack[:len(stack)-1]
		onStack[a] = false
	}

	for a := range waitsFor {
		if !visited[a] {
			visit(a)
		}
	}
	return cycles
}
