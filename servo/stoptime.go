package servo

import "math"

// worstCaseStopTime computes the maximum, over active
// joints with an acceleration bound, of |velocity/accel_limit|. Joints
// lacking an acceleration bound are skipped (and reported via skipped, so
// the caller can rate-limit a warning).
func worstCaseStopTime(velocity []float64, bounds []JointBounds) (worst float64, skipped []int) {
	for i, v := range velocity {
		b := bounds[i]
		if !b.AccelerationBounded {
			skipped = append(skipped, i)
			continue
		}
		limit := b.MaxAcceleration
		if -b.MinAcceleration > limit {
			limit = -b.MinAcceleration
		}
		if limit <= 0 {
			continue
		}
		t := math.Abs(v) / limit
		if t > worst {
			worst = t
		}
	}
	return worst, skipped
}
