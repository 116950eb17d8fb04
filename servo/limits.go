package servo

import "math"

// enforceAccelVelLimits applies the acceleration and velocity
// clip, in place on deltaTheta (position increments over one publish
// period). prevVelocity is the previous tick's joint velocity. Per the
// documented Open Question, the acceleration clip runs first and is not
// re-run after the velocity clip, even though the velocity clip can leave a
// small acceleration overshoot; this mirrors the source behavior exactly.
func enforceAccelVelLimits(
	deltaTheta []float64,
	prevVelocity []float64,
	bounds []JointBounds,
	period float64,
) {
	for i := range deltaTheta {
		b := bounds[i]
		if b.AccelerationBounded {
			v := deltaTheta[i] / period
			a := (v - prevVelocity[i]) / period
			if a < b.MinAcceleration || a > b.MaxAcceleration {
				aStar := b.MaxAcceleration
				if a < b.MinAcceleration {
					aStar = b.MinAcceleration
				}
				if deltaTheta[i] != 0 {
					scale := (aStar*period + prevVelocity[i]) * period / deltaTheta[i]
					if math.Abs(scale) < 1 {
						deltaTheta[i] *= scale
					}
				}
			}
		}

		if b.VelocityBounded {
			v := deltaTheta[i] / period
			if v < b.MinVelocity || v > b.MaxVelocity {
				vStar := b.MaxVelocity
				if v < b.MinVelocity {
					vStar = b.MinVelocity
				}
				if deltaTheta[i] != 0 {
					scale := (vStar * period) / deltaTheta[i]
					if math.Abs(scale) < 1 {
						deltaTheta[i] *= scale
					}
				}
			}
		}
	}
}

// positionBoundsViolated reports, for joint i,
// true if the joint is outside its inner (margin-shrunk) position bounds
// AND its velocity points further outside the nearer bound. positions holds
// the post-integration, post-filter joint positions for the same joints as
// velocity, in jointNames order.
func positionBoundsViolated(
	provider KinematicsProvider,
	jointNames []string,
	positions []float64,
	velocity []float64,
	margin float64,
) (bool, error) {
	for i, name := range jointNames {
		ok, err := provider.SatisfiesPositionBounds(name, -margin)
		if err != nil {
			return false, err
		}
		if ok {
			continue
		}
		bounds, err := provider.VariableBounds(name)
		if err != nil {
			return false, err
		}
		if !bounds.PositionBounded {
			continue
		}
		// Nearer bound is whichever side the joint is closer to; velocity
		// pointing further outside it (i.e. away from the midpoint and
		// beyond that bound) declares a halt.
		mid := (bounds.MinPosition + bounds.MaxPosition) / 2
		if positions[i] >= mid && velocity[i] > 0 {
			return true, nil
		}
		if positions[i] < mid && velocity[i] < 0 {
			return true, nil
		}
	}
	return false, nil
}
