package simulation

import (
	"context"
	"sync"
	"time"
)

// Options configures a Simulation at construction time. It has no tunables
// yet beyond the track itself; it exists so callers (and the server layer)
// have a stable place to add configuration without breaking NewSimulation's
// signature, the way the teacher's own Options struct grows over releases.
type Options struct {
	Track *Track
}

// Simulation is the top-level object a caller builds once: it owns the
// track, the Dispatch arbiter, and every spawned TrainAgent, and starts one
// goroutine per agent when Run is called.
type Simulation struct {
	Track       *Track
	Dispatch    *Dispatch
	Suggestions *SuggestionEngine

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulation builds a Simulation over opts.Track. The track must already
// be fully constructed (every AddEdge call made) before trains are spawned.
func NewSimulation(opts Options) *Simulation {
	dispatch := NewDispatch(opts.Track)
	return &Simulation{
		Track:       opts.Track,
		Dispatch:    dispatch,
		Suggestions: NewSuggestionEngine(dispatch, 0),
	}
}

// SpawnTrain creates and registers a new TrainAgent named name, stopped at
// start and facing dir. It does not start the agent's goroutine; call Run
// (or RunAgent for one agent added after Run) for that.
func (s *Simulation) SpawnTrain(name string, start *TrackNode, dir TrainDirection) (*TrainAgent, error) {
	return NewTrainAgent(name, s.Track, s.Dispatch, start, dir)
}

// Run starts every currently-registered agent's goroutine and blocks until
// ctx is cancelled or Stop is called, whichever happens first.
func (s *Simulation) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for _, a := range s.Dispatch.Agents() {
		s.RunAgent(runCtx, a)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runAdvisories(runCtx)
	}()
	<-runCtx.Done()
	s.wg.Wait()
}

// runAdvisories polls the suggestion engine every second until ctx is
// cancelled.
func (s *Simulation) runAdvisories(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Suggestions.RecomputeIfDue()
		}
	}
}

// RunAgent starts a already-spawned agent's goroutine under the simulation's
// run context, for agents spawned after Run was called.
func (s *Simulation) RunAgent(ctx context.Context, a *TrainAgent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		a.Run(ctx)
	}()
}

// Stop cancels every agent's run context and waits for their goroutines to
// exit.
func (s *Simulation) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Pause invokes Dispatch.StopTheWorld directly, for callers (operators, the
// HTTP API) that want to pause without an agent-reported exception.
func (s *Simulation) Pause() {
	s.Dispatch.StopTheWorld(nil)
}

// Resume lifts a Pause or an agent-triggered StopTheWorld.
func (s *Simulation) Resume() {
	s.Dispatch.Resume()
}

// Events exposes the simulation-wide Observable<Event> stream.
func (s *Simulation) Events() *Broadcaster {
	return s.Dispatch.Events()
}

// SimulationSnapshot is a JSON-friendly read-only projection of the whole
// simulation, used by the server layer's dump/inspect endpoints in place of
// marshalling the live, mutex-guarded Simulation/Dispatch structs directly.
type SimulationSnapshot struct {
	Nodes  []string        `json:"nodes"`
	Trains []AgentSnapshot `json:"trains"`
	Paused bool            `json:"paused"`
}

// Snapshot captures the current simulation state.
func (s *Simulation) Snapshot() SimulationSnapshot {
	nodes := make([]string, 0, len(s.Track.Nodes()))
	for _, n := range s.Track.Nodes() {
		nodes = append(nodes, n.Name)
	}
	agents := s.Dispatch.Agents()
	trains := make([]AgentSnapshot, 0, len(agents))
	for _, a := range agents {
		trains = append(trains, a.Snapshot())
	}
	return SimulationSnapshot{Nodes: nodes, Trains: trains, Paused: s.Dispatch.IsPaused()}
}
