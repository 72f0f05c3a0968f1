package simulation

import "math"

// stopTimings computes the two timer deadlines (seconds from now) a Stop
// event or a Reserve guard-brake needs: triggerAt is when deceleration must
// begin to arrive exactly at distance with speed 0, and duration is the full
// time until the train is stopped. Both assume the train starts the segment
// from rest and is free to reach maxSpeed if the segment is long enough
// (§4.2's piecewise accelerate/decelerate profile).
func stopTimings(distance float64) (triggerAt, duration float64) {
	if distance <= 0 {
		return 0, 0
	}
	accelDist := DistanceAcceleratingFromStop()
	decelDist := MaxStoppingDistance()

	if distance >= accelDist+decelDist {
		cruiseTime := (distance - accelDist - decelDist) / maxSpeed
		triggerAt = TimeToMaxSpeed() + cruiseTime
		duration = triggerAt + TimeToMaxSpeed()
		return
	}

	// Triangular profile: the train never reaches maxSpeed before it must
	// start braking. Solving distance == peak^2/(2*accel) + peak^2/(2*|decel|)
	// for a symmetric accel/decel magnitude gives peak = sqrt(distance*accel),
	// so triggerAt = peak/accel = sqrt(distance/accel).
	triggerAt = math.Sqrt(distance / accelerationRate)
	duration = 2 * triggerAt
	return
}

// remainingOnCurrentEdge is the distance left to travel before the train's
// current position rolls onto its next node, used as the guard-brake horizon
// for an in-flight Reserve (§4.5: "concurrently ... compute distance to the
// reserved element and arm a cancellable stop").
func remainingOnCurrentEdge(pos *TrainPosition) float64 {
	if pos.Edge == nil {
		return 0
	}
	return float64(pos.Edge.Length) - pos.Offset
}

// applySetDirection applies a SetDirectionEvent. It is a sequencing error to
// issue it while the train is moving (legal only while stopped, per §4.5).
func applySetDirection(agent *TrainAgent, ev SetDirectionEvent) error {
	if agent.physics.Speed != 0 {
		return newSequencingError("SetDirection", errNotStopped)
	}
	agent.physics.RequestDirectionChange(ev.Target)
	return nil
}

// applySetSwitch applies a SetSwitchEvent: a no-op for Straight at a
// non-branching node, and a sequencing error to request Curve there. If the
// train is standing on the switched node, its current edge is re-resolved
// against the new switch state.
func applySetSwitch(agent *TrainAgent, ev SetSwitchEvent) error {
	if ev.Node.EdgeCount() < 3 {
		if ev.Branch == Curve {
			return newSequencingError("SetSwitch", errNoBranchAtNode)
		}
		return nil
	}
	ev.Node.SwitchState = ev.Branch
	if pos := agent.position; pos.Node == ev.Node && pos.Offset == 0 {
		pos.Edge = nextEdge(pos.Node, agent.physics.Direction)
	}
	agent.publish(Event{Name: SwitchChangedEvent, Object: ev.Node})
	return nil
}

// applyStart applies a StartEvent: legal only while stopped.
func applyStart(agent *TrainAgent, _ StartEvent) error {
	if agent.physics.Speed != 0 {
		return newSequencingError("Start", errAlreadyMoving)
	}
	agent.physics.RequestStart()
	agent.publish(Event{Name: TrainStartedEvent, Object: agent})
	return nil
}
