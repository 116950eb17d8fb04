package servo

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
)

// JointState is a snapshot of the arm's joint positions and velocities as
// reported by the kinematics/feedback provider.
type JointState struct {
	Names      []string
	Positions  []float64 // radians
	Velocities []float64 // radians/second
	Stamp      time.Time
}

// TwistCmd is an end-effector velocity command: linear and angular rates
// expressed in FrameID, in either unitless or speed_units depending on
// Configuration.CommandInType.
type TwistCmd struct {
	FrameID string
	Stamp   time.Time
	Linear  r3.Vector
	Angular r3.Vector
}

// finite reports whether every component of the twist is a finite float.
func (t TwistCmd) finite() bool {
	return isFinite(t.Linear.X) && isFinite(t.Linear.Y) && isFinite(t.Linear.Z) &&
		isFinite(t.Angular.X) && isFinite(t.Angular.Y) && isFinite(t.Angular.Z)
}

// nonZero reports whether any of the six components of the twist is non-zero.
func (t TwistCmd) nonZero() bool {
	return t.Linear.X != 0 || t.Linear.Y != 0 || t.Linear.Z != 0 ||
		t.Angular.X != 0 || t.Angular.Y != 0 || t.Angular.Z != 0
}

// asVector6 returns the twist as [lin_x, lin_y, lin_z, ang_x, ang_y, ang_z].
func (t TwistCmd) asVector6() [6]float64 {
	return [6]float64{t.Linear.X, t.Linear.Y, t.Linear.Z, t.Angular.X, t.Angular.Y, t.Angular.Z}
}

// JointJogCmd is a direct per-joint velocity command.
type JointJogCmd struct {
	Names      []string
	Velocities []float64
	Stamp      time.Time
}

func (j JointJogCmd) finite() bool {
	for _, v := range j.Velocities {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

func (j JointJogCmd) nonZero() bool {
	for _, v := range j.Velocities {
		if v != 0 {
			return true
		}
	}
	return false
}

// TrajectoryPoint is a single point of an outgoing joint trajectory.
type TrajectoryPoint struct {
	TimeFromStart time.Duration
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
}

// OutgoingCommand is the composed output of one servo tick: either a
// trajectory (one or more points, per gazebo_mode) or a raw float array of
// either positions or velocities, never both.
type OutgoingCommand struct {
	JointNames []string
	Trajectory []TrajectoryPoint

	// RawArray and RawIsVelocity are populated instead of Trajectory when
	// Configuration.CommandOutType is multiarray.
	RawArray      []float64
	RawIsVelocity bool
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
