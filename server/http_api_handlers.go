// Copyright (C) 2008-2018 by Nicolas Piganeau and the TS2 TEAM
// (See AUTHORS file)
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program; if not, write to the
// Free Software Foundation, Inc.,
// 59 Temple Place - Suite 330, Boston, MA  02111-1307, USA.

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// GET /api/analytics/kpis?timeRange=1h|6h|1d|1w|1m
func serveKPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rangeParam := r.URL.Query().Get("timeRange")
	var dur time.Duration
	switch rangeParam {
	case "1h":
		dur = time.Hour
	case "6h":
		dur = 6 * time.Hour
	case "1w":
		dur = 7 * 24 * time.Hour
	case "1m":
		dur = 30 * 24 * time.Hour
	default:
		rangeParam = "1d"
		dur = 24 * time.Hour
	}
	agg, trend := aggregateKPIs(dur)
	resp := map[string]interface{}{
		"timeRange": rangeParam,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"kpis": map[string]interface{}{
			"utilization":        agg.utilization,
			"avgReservationWait": agg.avgReservationWait,
			"p90ReservationWait": agg.p90ReservationWait,
			"throughput":         agg.throughput,
			"openDeadlockRisks":  agg.openDeadlockRisks,
			"mttrDeadlockMinutes": agg.mttrDeadlockMinutes,
			"acceptanceRate":     agg.acceptanceRate,
			"efficiency":         agg.efficiency,
			"performance":        agg.performance,
		},
		"trends": map[string]interface{}{
			"utilization":        map[string]interface{}{"change": trend.utilization, "direction": trendDirection(-trend.utilization)},
			"avgReservationWait": map[string]interface{}{"change": trend.avgReservationWait, "direction": trendDirection(-trend.avgReservationWait)},
			"throughput":         map[string]interface{}{"change": float64(trend.throughput), "direction": trendDirection(float64(trend.throughput))},
			"openDeadlockRisks":  map[string]interface{}{"change": float64(trend.openDeadlockRisks), "direction": trendDirection(float64(-trend.openDeadlockRisks))},
			"acceptanceRate":     map[string]interface{}{"change": trend.acceptanceRate, "direction": trendDirection(trend.acceptanceRate)},
		},
	}
	writeJSON(w, resp)
}

// trendDirection reports whether a delta counts as an improvement; the
// caller negates v beforehand for metrics where lower is better.
func trendDirection(v float64) string {
	if v >= 0 {
		return "UP"
	}
	return "DOWN"
}

// GET /api/analytics/historical?metric=utilization&period=hourly
func serveKPIHistorical(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metric := r.URL.Query().Get("metric")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "hourly"
	}
	metrics.mu.RLock()
	snaps := append([]kpiSnapshot{}, metrics.snapshots...)
	metrics.mu.RUnlock()

	series := make([]map[string]interface{}, 0, len(snaps))
	for _, s := range snaps {
		var v float64
		switch metric {
		case "avgReservationWait":
			v = s.avgReservationWait
		case "p90ReservationWait":
			v = s.p90ReservationWait
		case "throughput":
			v = float64(s.throughput)
		case "openDeadlockRisks":
			v = float64(s.openDeadlockRisks)
		case "mttrDeadlockMinutes":
			v = s.mttrDeadlockMinutes
		case "acceptanceRate":
			v = s.acceptanceRate
		default:
			v = s.utilization
		}
		series = append(series, map[string]interface{}{"t": s.ts.Format(time.RFC3339), "v": v})
	}
	writeJSON(w, map[string]interface{}{"metric": metric, "period": period, "series": series})
}

// GET /api/audit/logs?sinceId=123&limit=200
func serveAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	var sinceID int64
	if s := q.Get("sinceId"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, "Bad sinceId", http.StatusBadRequest)
			return
		}
		sinceID = v
	}
	limit := 200
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	writeJSON(w, map[string]interface{}{"items": audits.getSince(sinceID, limit)})
}

// GET /api/audit/stream (Server-Sent Events)
func serveAuditStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := audits.subscribe()
	defer audits.unsubscribe(ch)

	_, _ = w.Write([]byte(":ok\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()
	enc := json.NewEncoder(w)
	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: audit\ndata: "))
			_ = enc.Encode(entry)
			_, _ = w.Write([]byte("\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(":hb\n\n"))
			flusher.Flush()
		}
	}
}
