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

package main

import (
	"flag"
	"os"

	"github.com/ts2/trainyard/server"
	"github.com/ts2/trainyard/simulation"
	log "gopkg.in/inconshreveable/log15.v2"
)

func main() {
	addr := flag.String("addr", server.DefaultAddr, "address to listen on")
	port := flag.String("port", server.DefaultPort, "port to listen on")
	lvl := flag.String("loglevel", "info", "log level (crit, error, warn, info, debug)")
	flag.Parse()

	logLvl, err := log.LvlFromString(*lvl)
	if err != nil {
		logLvl = log.LvlInfo
	}
	root := log.New()
	root.SetHandler(log.LvlFilterHandler(logLvl, log.StreamHandler(os.Stdout, log.TerminalFormat())))

	simulation.InitializeLogger(root)
	server.InitializeLogger(root)

	track, err := buildDemoTrack()
	if err != nil {
		root.Crit("failed to build demo track", "error", err)
		os.Exit(1)
	}

	sim := simulation.NewSimulation(simulation.Options{Track: track})
	if err := spawnDemoTrains(sim); err != nil {
		root.Crit("failed to spawn demo trains", "error", err)
		os.Exit(1)
	}

	server.Run(sim, *addr, *port)
}

// buildDemoTrack wires a small closed loop of four nodes, each leg 100
// units, with no branches: enough topology to exercise navigation,
// reservation, and the advisory engine without hardcoding a real-world
// layout (none is in scope here).
func buildDemoTrack() (*simulation.Track, error) {
	track := simulation.NewTrack()
	names := []string{"N1", "N2", "N3", "N4"}
	nodes := make(map[string]*simulation.TrackNode, len(names))
	for _, name := range names {
		n, err := track.AddNode(name)
		if err != nil {
			return nil, err
		}
		nodes[name] = n
	}
	legs := [][2]string{{"N1", "N2"}, {"N2", "N3"}, {"N3", "N4"}, {"N4", "N1"}}
	for _, leg := range legs {
		if _, err := track.AddEdge(nodes[leg[0]], nodes[leg[1]], 100, simulation.Straight); err != nil {
			return nil, err
		}
	}
	return track, nil
}

// spawnDemoTrains places two trains on the demo loop, one ahead of the
// other, so the reservation arbiter and the advisory engine have something
// to do as soon as the simulation starts.
func spawnDemoTrains(sim *simulation.Simulation) error {
	n1, _ := sim.Track.Node("N1")
	n3, _ := sim.Track.Node("N3")
	if _, err := sim.SpawnTrain("demo-1", n1, simulation.Forward); err != nil {
		return err
	}
	if _, err := sim.SpawnTrain("demo-2", n3, simulation.Forward); err != nil {
		return err
	}
	return nil
}
