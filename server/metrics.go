package server

import (
	"sort"
	"sync"
	"time"

	"github.com/ts2/trainyard/simulation"
)

// Rolling-window tuning for realtime KPIs, the same shape as the teacher's
// own defaultOnTimeWindow/defaultThroughputWindow constants, re-grounded to
// reservation/throughput/deadlock metrics instead of timetable adherence.
const (
	defaultWaitWindow       = 15 * time.Minute
	defaultThroughputWindow = 60 * time.Minute
	defaultMTTRWindow       = 60 * time.Minute
	defaultAcceptanceWindow = 120 * time.Minute
)

type kpiSnapshot struct {
	ts time.Time

	utilization         float64 // % of directed edges held
	avgReservationWait  float64 // seconds
	p90ReservationWait   float64 // seconds
	throughput           int     // navigation completions in window
	openDeadlockRisks    int
	mttrDeadlockMinutes  float64
	acceptanceRate       float64 // % of accept/reject decisions that were accepts
	efficiency           float64
	performance           float64
}

type waitPoint struct {
	ts      time.Time
	seconds float64
}

type metricsState struct {
	mu sync.RWMutex

	waits []waitPoint

	completions []time.Time

	deadlockFirstSeen map[string]time.Time
	deadlocksDetected []time.Time
	deadlocksResolved []time.Time
	resolutionDurations []time.Duration
	openDeadlocks       int

	accepted  []time.Time
	rejected  []time.Time

	snapshots []kpiSnapshot
}

var metrics = &metricsState{deadlockFirstSeen: make(map[string]time.Time)}

// updateMetrics folds one simulation.Event into the rolling KPI state.
func updateMetrics(e simulation.Event) {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	switch e.Name {
	case simulation.NavigationCompleteEvent:
		metrics.completions = append(metrics.completions, time.Now().UTC())
		trimTimesLocked(&metrics.completions, defaultThroughputWindow)

	case simulation.ReservationReleasedEvent:
		// A release with no matching wait record is common (uncontended
		// edges); only contended waits carry a wait duration via
		// SuggestionsUpdatedEvent's RESERVATION_WAIT advisories below.

	case simulation.SuggestionsUpdatedEvent:
		now := time.Now().UTC()
		sug, ok := e.Object.(simulation.Suggestions)
		if !ok {
			return
		}
		activeDeadlocks := make(map[string]bool)
		for _, it := range sug.Items {
			switch it.Kind {
			case simulation.SuggestionDeadlockRisk:
				activeDeadlocks[it.ID] = true
				if _, seen := metrics.deadlockFirstSeen[it.ID]; !seen {
					metrics.deadlockFirstSeen[it.ID] = now
					metrics.deadlocksDetected = append(metrics.deadlocksDetected, now)
				}
			case simulation.SuggestionLongReservationWait:
				// Score encodes elapsed wait seconds as (10 + seconds); recover it.
				if it.Score > 10 {
					metrics.waits = append(metrics.waits, waitPoint{ts: now, seconds: it.Score - 10})
					trimWaitsLocked()
				}
			}
		}
		for id, first := range metrics.deadlockFirstSeen {
			if !activeDeadlocks[id] {
				metrics.deadlocksResolved = append(metrics.deadlocksResolved, now)
				metrics.resolutionDurations = append(metrics.resolutionDurations, now.Sub(first))
				delete(metrics.deadlockFirstSeen, id)
			}
		}
		metrics.openDeadlocks = len(activeDeadlocks)
		trimTimesLocked(&metrics.deadlocksDetected, defaultThroughputWindow)
		trimTimesLocked(&metrics.deadlocksResolved, defaultMTTRWindow)
		if len(metrics.resolutionDurations) > 500 {
			metrics.resolutionDurations = metrics.resolutionDurations[len(metrics.resolutionDurations)-500:]
		}
	}
}

func trimTimesLocked(ts *[]time.Time, window time.Duration) {
	cutoff := time.Now().UTC().Add(-window)
	i := 0
	for ; i < len(*ts); i++ {
		if (*ts)[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		*ts = append([]time.Time{}, (*ts)[i:]...)
	}
}

func trimWaitsLocked() {
	cutoff := time.Now().UTC().Add(-defaultWaitWindow)
	i := 0
	for ; i < len(metrics.waits); i++ {
		if metrics.waits[i].ts.After(cutoff) {
			break
		}
	}
	if i > 0 {
		metrics.waits = append([]waitPoint{}, metrics.waits[i:]...)
	}
}

// recordSuggestionDecision folds an Accept/Reject call into the acceptance
// rate KPI.
func recordSuggestionDecision(accepted bool) {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	now := time.Now().UTC()
	if accepted {
		metrics.accepted = append(metrics.accepted, now)
	} else {
		metrics.rejected = append(metrics.rejected, now)
	}
	trimTimesLocked(&metrics.accepted, defaultAcceptanceWindow)
	trimTimesLocked(&metrics.rejected, defaultAcceptanceWindow)
}

func takeSnapshot(dispatch *simulation.Dispatch) {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	total := dispatch.EdgeCount()
	occupied := 0
	for _, rec := range dispatch.Snapshot() {
		if rec.Holder != nil {
			occupied++
		}
	}
	util := 0.0
	if total > 0 {
		util = float64(occupied) * 100.0 / float64(total)
	}

	cutoff := time.Now().UTC().Add(-defaultThroughputWindow)
	tp := 0
	for _, c := range metrics.completions {
		if c.After(cutoff) {
			tp++
		}
	}

	avgWait, p90Wait := 0.0, 0.0
	if len(metrics.waits) > 0 {
		sum := 0.0
		vals := make([]float64, 0, len(metrics.waits))
		for _, w := range metrics.waits {
			sum += w.seconds
			vals = append(vals, w.seconds)
		}
		avgWait = sum / float64(len(metrics.waits))
		sort.Float64s(vals)
		idx := int(0.9*float64(len(vals)-1) + 0.5)
		if idx < 0 {
			idx = 0
		}
		if idx >= len(vals) {
			idx = len(vals) - 1
		}
		p90Wait = vals[idx]
	}

	accepted := countInWindow(metrics.accepted, defaultAcceptanceWindow)
	total2 := accepted + countInWindow(metrics.rejected, defaultAcceptanceWindow)
	accRate := 0.0
	if total2 > 0 {
		accRate = float64(accepted) * 100.0 / float64(total2)
	}

	mttr := 0.0
	if len(metrics.resolutionDurations) > 0 {
		sum := 0.0
		for _, d := range metrics.resolutionDurations {
			sum += d.Minutes()
		}
		mttr = sum / float64(len(metrics.resolutionDurations))
	}

	efficiency := 100.0 - avgWait
	if efficiency < 0 {
		efficiency = 0
	}
	performance := (0.4*(100.0-util) + 0.4*float64(tp) + 0.2*efficiency) / 2.0

	snap := kpiSnapshot{
		ts:                  time.Now().UTC(),
		utilization:         util,
		avgReservationWait:  avgWait,
		p90ReservationWait:  p90Wait,
		throughput:          tp,
		openDeadlockRisks:   metrics.openDeadlocks,
		mttrDeadlockMinutes: mttr,
		acceptanceRate:      accRate,
		efficiency:          efficiency,
		performance:         performance,
	}
	metrics.snapshots = append(metrics.snapshots, snap)
	if len(metrics.snapshots) > 1440 {
		metrics.snapshots = metrics.snapshots[len(metrics.snapshots)-1440:]
	}
}

func countInWindow(ts []time.Time, window time.Duration) int {
	cutoff := time.Now().UTC().Add(-window)
	c := 0
	for _, t := range ts {
		if t.After(cutoff) {
			c++
		}
	}
	return c
}

// startMetricsTicker runs takeSnapshot every minute until stop is closed.
func startMetricsTicker(dispatch *simulation.Dispatch, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				takeSnapshot(dispatch)
			}
		}
	}()
}

func aggregateKPIs(rangeDur time.Duration) (kpiSnapshot, kpiSnapshot) {
	metrics.mu.RLock()
	defer metrics.mu.RUnlock()
	if len(metrics.snapshots) == 0 {
		return kpiSnapshot{ts: time.Now().UTC()}, kpiSnapshot{}
	}

	cutoff := time.Now().UTC().Add(-rangeDur)
	var agg kpiSnapshot
	aggCount := 0
	for _, s := range metrics.snapshots {
		if s.ts.Before(cutoff) {
			continue
		}
		agg.utilization += s.utilization
		agg.avgReservationWait += s.avgReservationWait
		agg.p90ReservationWait += s.p90ReservationWait
		agg.throughput += s.throughput
		agg.openDeadlockRisks += s.openDeadlockRisks
		agg.mttrDeadlockMinutes += s.mttrDeadlockMinutes
		agg.acceptanceRate += s.acceptanceRate
		agg.efficiency += s.efficiency
		agg.performance += s.performance
		aggCount++
	}
	if aggCount > 0 {
		agg.utilization /= float64(aggCount)
		agg.avgReservationWait /= float64(aggCount)
		agg.p90ReservationWait /= float64(aggCount)
		agg.mttrDeadlockMinutes /= float64(aggCount)
		agg.acceptanceRate /= float64(aggCount)
		agg.efficiency /= float64(aggCount)
		agg.performance /= float64(aggCount)
	}

	if len(metrics.snapshots) < 10 {
		return agg, kpiSnapshot{}
	}
	n := len(metrics.snapshots)
	w := n / 10
	if w < 1 {
		w = 1
	}
	cur := averageSlice(metrics.snapshots[n-w:])
	prev := averageSlice(metrics.snapshots[maxInt(0, n-2*w):n-w])
	trend := kpiSnapshot{
		utilization:         cur.utilization - prev.utilization,
		avgReservationWait:  cur.avgReservationWait - prev.avgReservationWait,
		p90ReservationWait:  cur.p90ReservationWait - prev.p90ReservationWait,
		throughput:          cur.throughput - prev.throughput,
		openDeadlockRisks:   cur.openDeadlockRisks - prev.openDeadlockRisks,
		mttrDeadlockMinutes: cur.mttrDeadlockMinutes - prev.mttrDeadlockMinutes,
		acceptanceRate:      cur.acceptanceRate - prev.acceptanceRate,
		efficiency:          cur.efficiency - prev.efficiency,
		performance:         cur.performance - prev.performance,
	}
	return agg, trend
}

func averageSlice(ss []kpiSnapshot) kpiSnapshot {
	var a kpiSnapshot
	if len(ss) == 0 {
		return a
	}
	for _, s := range ss {
		a.utilization += s.utilization
		a.avgReservationWait += s.avgReservationWait
		a.p90ReservationWait += s.p90ReservationWait
		a.throughput += s.throughput
		a.openDeadlockRisks += s.openDeadlockRisks
		a.mttrDeadlockMinutes += s.mttrDeadlockMinutes
		a.acceptanceRate += s.acceptanceRate
		a.efficiency += s.efficiency
		a.performance += s.performance
	}
	n := float64(len(ss))
	a.utilization /= n
	a.avgReservationWait /= n
	a.p90ReservationWait /= n
	a.mttrDeadlockMinutes /= n
	a.acceptanceRate /= n
	a.efficiency /= n
	a.performance /= n
	return a
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
