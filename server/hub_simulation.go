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
)

type simulationObject struct{}

// dispatch processes requests made on the "simulation" object: starting,
// pausing, and resuming the run loop, and inspecting its current snapshot.
func (s *simulationObject) dispatch(h *Hub, req Request, conn *connection) {
	ch := conn.pushChan
	logger.Debug("request for simulation received", "submodule", "hub", "object", req.Object, "action", req.Action)
	switch req.Action {
	case "start":
		if err := startSimulation(); err != nil {
			ch <- NewErrorResponse(req.ID, err)
			return
		}
		ch <- NewOkResponse(req.ID, "simulation started")
	case "pause":
		sim.Pause()
		ch <- NewOkResponse(req.ID, "simulation paused")
	case "resume":
		sim.Resume()
		ch <- NewOkResponse(req.ID, "simulation resumed")
	case "isRunning":
		j, err := json.Marshal(isSimulationRunning())
		if err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("internal error: %s", err))
			return
		}
		ch <- NewResponse(req.ID, RawJSON(j))
	case "snapshot":
		data, err := json.Marshal(sim.Snapshot())
		if err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("internal error: %s", err))
			return
		}
		ch <- NewResponse(req.ID, RawJSON(data))
	default:
		ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown action %s/%s", req.Object, req.Action))
		logger.Debug("request for unknown action received", "submodule", "hub", "object", req.Object, "action", req.Action)
	}
}

var _ hubObject = new(simulationObject)

func init() {
	hub.objects["simulation"] = new(simulationObject)
}
