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
	"fmt"
	"net/http"
	"strings"
	"time"
)

var errSimulationNotLoaded = fmt.Errorf("no simulation loaded")

func errNodeNotFound(name string) error {
	return fmt.Errorf("unknown track node: %s", name)
}

func errTrainNotFound(name string) error {
	return fmt.Errorf("unknown train: %s", name)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

// GET /api/track/nodes
// GET /api/track/nodes/{name}
func serveTrackNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/track/nodes/")
	if name == "" || name == r.URL.Path {
		nodes := sim.Track.Nodes()
		out := make([]string, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, n.Name)
		}
		writeJSON(w, map[string]interface{}{"nodes": out})
		return
	}
	node, ok := sim.Track.Node(name)
	if !ok {
		writeError(w, http.StatusNotFound, errNodeNotFound(name))
		return
	}
	writeJSON(w, map[string]interface{}{
		"name":      node.Name,
		"edgeCount": node.EdgeCount(),
	})
}

// GET /api/trains
// GET /api/trains/{name}
func serveTrains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/trains/")
	if name == "" || name == r.URL.Path {
		writeJSON(w, sim.Snapshot())
		return
	}
	agent, ok := sim.Dispatch.Agent(name)
	if !ok {
		writeError(w, http.StatusNotFound, errTrainNotFound(name))
		return
	}
	writeJSON(w, agent.Snapshot())
}

// POST /api/trains/{name}/navigate  {"destination":"NODE","allowBackward":false}
func serveTrainNavigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/trains/"), "/navigate")
	agent, ok := sim.Dispatch.Agent(name)
	if !ok {
		writeError(w, http.StatusNotFound, errTrainNotFound(name))
		return
	}
	var body struct {
		Destination   string `json:"destination"`
		AllowBackward bool   `json:"allowBackward"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dest, ok := sim.Track.Node(body.Destination)
	if !ok {
		writeError(w, http.StatusNotFound, errNodeNotFound(body.Destination))
		return
	}
	agent.NavigateTo(dest, body.AllowBackward)
	writeJSON(w, map[string]interface{}{"status": "queued"})
}

// GET /api/reservations
func serveReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	writeJSON(w, map[string]interface{}{"reservations": sim.Dispatch.Snapshot()})
}

// GET /api/simulation
func serveSimulation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	writeJSON(w, sim.Snapshot())
}

// POST /api/simulation/start
func serveSimulationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := startSimulation(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, map[string]interface{}{"status": "started"})
}

// POST /api/simulation/pause
func serveSimulationPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	sim.Pause()
	writeJSON(w, map[string]interface{}{"status": "paused"})
}

// POST /api/simulation/resume
func serveSimulationResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	sim.Resume()
	writeJSON(w, map[string]interface{}{"status": "resumed"})
}

// GET /api/suggestions
func serveSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	writeJSON(w, sim.Suggestions.Last())
}

// POST /api/suggestions/{id}/accept
// POST /api/suggestions/{id}/reject
func serveSuggestionDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sim == nil {
		writeError(w, http.StatusServiceUnavailable, errSimulationNotLoaded)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/suggestions/")
	var id, action string
	if idx := strings.LastIndex(rest, "/"); idx >= 0 {
		id, action = rest[:idx], rest[idx+1:]
	}
	switch action {
	case "accept":
		if err := sim.Suggestions.Accept(id); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		recordSuggestionDecision(true)
		sim.Suggestions.Recompute()
	case "reject":
		var body struct {
			Minutes int `json:"minutes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		sim.Suggestions.Reject(id, time.Duration(body.Minutes)*time.Minute)
		recordSuggestionDecision(false)
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"status": "ok"})
}

func installHTTPAPI() {
	http.HandleFunc("/api/track/nodes", serveTrackNodes)
	http.HandleFunc("/api/track/nodes/", serveTrackNodes)
	http.HandleFunc("/api/trains", serveTrains)
	http.HandleFunc("/api/trains/", dispatchTrainRoute)
	http.HandleFunc("/api/reservations", serveReservations)
	http.HandleFunc("/api/simulation", serveSimulation)
	http.HandleFunc("/api/simulation/start", serveSimulationStart)
	http.HandleFunc("/api/simulation/pause", serveSimulationPause)
	http.HandleFunc("/api/simulation/resume", serveSimulationResume)
	http.HandleFunc("/api/suggestions", serveSuggestions)
	http.HandleFunc("/api/suggestions/", serveSuggestionDecision)
	http.HandleFunc("/api/analytics/kpis", serveKPI)
	http.HandleFunc("/api/analytics/historical", serveKPIHistorical)
	http.HandleFunc("/api/audit/logs", serveAuditLogs)
	http.HandleFunc("/api/audit/stream", serveAuditStream)
}

// dispatchTrainRoute routes requests under /api/trains/ to the navigate
// handler or the single-train getter depending on the trailing path segment,
// since net/http's default mux has no path-parameter support.
func dispatchTrainRoute(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/navigate") {
		serveTrainNavigate(w, r)
		return
	}
	serveTrains(w, r)
}
