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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ts2/trainyard/simulation"
	log "gopkg.in/inconshreveable/log15.v2"
)

const (
	DefaultAddr       string = "0.0.0.0"
	DefaultPort       string = "22222"
	MaxHubStartupTime        = 3 * time.Second
)

var (
	sim    *simulation.Simulation
	hub    = newHub()
	logger log.Logger

	runMu     sync.Mutex
	runCancel context.CancelFunc
	running   bool

	stopMetrics chan struct{}
)

// InitializeLogger creates the logger for the server module.
func InitializeLogger(parentLogger log.Logger) {
	logger = parentLogger.New("module", "server")
}

// Run starts the websocket hub and HTTP API for s on addr:port. It never
// returns under normal operation.
func Run(s *simulation.Simulation, addr, port string) {
	logger.Info("starting server")
	sim = s
	stopMetrics = make(chan struct{})
	startMetricsTicker(sim.Dispatch, stopMetrics)
	bridgeSimulationEvents()

	hubUp := make(chan bool)
	timer := time.After(MaxHubStartupTime)
	go hub.run(hubUp)
	select {
	case <-hubUp:
		HttpdStart(addr, port)
		os.Exit(1)
	case <-timer:
		logger.Crit("hub did not start")
		os.Exit(1)
	}
}

// bridgeSimulationEvents subscribes one internal listener to the
// simulation-wide event stream and fans every event out to audit, metrics,
// and every connected websocket client.
func bridgeSimulationEvents() {
	ch := sim.Events().Subscribe()
	go func() {
		for ev := range ch {
			recordAuditFromEvent(ev)
			updateMetrics(ev)
			hub.broadcast(NewPushEvent(string(ev.Name), ev.Object))
		}
	}()
}

// startSimulation begins running every spawned train agent's goroutine in
// the background if it is not already running.
func startSimulation() error {
	runMu.Lock()
	defer runMu.Unlock()
	if running {
		return fmt.Errorf("simulation is already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	runCancel = cancel
	running = true
	go func() {
		sim.Run(ctx)
		runMu.Lock()
		running = false
		runMu.Unlock()
	}()
	return nil
}

func isSimulationRunning() bool {
	runMu.Lock()
	defer runMu.Unlock()
	return running
}

// HttpdStart installs every HTTP route and blocks serving them.
//
//	/        - minimal JSON status (no operator UI: out of scope)
//	/ws      - websocket endpoint for Request/Response traffic
//	/api/... - REST API, see http_api.go
func HttpdStart(addr, port string) {
	http.HandleFunc("/", serveStatus)
	http.HandleFunc("/ws", serveWs)
	installHTTPAPI()

	serverAddress := fmt.Sprintf("%s:%s", addr, port)
	logger.Info("starting HTTP", "submodule", "http", "address", serverAddress)
	err := http.ListenAndServe(serverAddress, nil)
	logger.Crit("HTTP crashed", "submodule", "http", "error", err)
}

// serveStatus reports whether a simulation is loaded and running.
func serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(struct {
		Loaded  bool `json:"loaded"`
		Running bool `json:"running"`
	}{Loaded: sim != nil, Running: isSimulationRunning()})
}
