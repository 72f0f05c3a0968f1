// Package simulation implements the track graph, train kinematics,
// navigation compiler/executor, and the central reservation arbiter that
// together drive a multi-train simulation: one goroutine per TrainAgent,
// serialized through Dispatch, observable through a Broadcaster of Events.
package simulation
