package servo

import (
	"testing"

	"go.viam.com/test"
)

func TestWorstCaseStopTime(t *testing.T) {
	velocity := []float64{1.0, -2.0, 0.5}
	bounds := []JointBounds{
		{AccelerationBounded: true, MinAcceleration: -1, MaxAcceleration: 1}, // stop time 1.0
		{AccelerationBounded: true, MinAcceleration: -4, MaxAcceleration: 4}, // stop time 0.5
		{AccelerationBounded: false},
	}
	worst, skipped := worstCaseStopTime(velocity, bounds)
	test.That(t, worst, test.ShouldEqual, 1.0)
	test.That(t, skipped, test.ShouldResemble, []int{2})
}
