package servo

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Tick runs one servo cycle: publish the previous status, read the latest
// joint state and commands, compute and bound a joint delta, and publish the
// result. It is invoked once per PublishPeriod by the run loop, but is
// exported so a caller (tests, a CLI) can drive it directly without the
// ticker.
func (c *Core) Tick(ctx context.Context) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(c.status)
	}
	c.status = NoWarning

	snap0 := c.inputs.snapshot()
	if !snap0.haveJointState {
		return
	}

	positions := c.mapPositions(snap0.jointState, c.internalPositions)
	velocities := c.mapVelocities(snap0.jointState, c.internalVelocities)
	c.internalPositions = positions
	c.internalVelocities = velocities

	bounds, err := c.boundsForJoints()
	if err != nil {
		c.throttle.warn("bounds", "servo: failed to read joint bounds: %v", err)
		return
	}

	worst, skipped := worstCaseStopTime(velocities, bounds)
	if len(skipped) > 0 {
		c.throttle.warn("stoptime_skip", "servo: %d joints lack an acceleration bound, skipped for stop-time estimation", len(skipped))
	}
	if c.cfg.OnStopTime != nil {
		c.cfg.OnStopTime(worst)
	}

	snap := c.inputs.snapshot()
	now := time.Now()
	twistFresh := snap.twistNonZero && !stale(now, snap.twistStamp, c.cfg.IncomingCommandTimeout)
	jogFresh := snap.jointJogNonZero && !stale(now, snap.jointJogStamp, c.cfg.IncomingCommandTimeout)

	if err := c.provider.SetPositions(positions); err != nil {
		c.throttle.warn("setpos", "servo: failed to set positions on kinematics provider: %v", err)
		return
	}

	if tf, err := planningToCommandFrame(c.provider, c.cfg.PlanningFrame, c.cfg.RobotLinkCommandFrame); err == nil {
		c.tfPlanningToCmd = tf
		c.haveTf = true
	} else {
		c.throttle.warn("tf", "servo: failed to compute planning-to-command transform: %v", err)
	}

	if c.paused.Load() || c.waitForFirstCommand {
		c.filters.reset(positions)
		if !snap.twistStamp.IsZero() || !snap.jointJogStamp.IsZero() {
			c.waitForFirstCommand = false
		}
		return
	}

	var deltaTheta []float64
	switch {
	case twistFresh:
		dt, err := c.cartesianDelta(snap, positions)
		if err != nil {
			c.throttle.warn("cartesian", "servo: cartesian branch failed: %v", err)
			c.emitNoMotion(positions)
			return
		}
		deltaTheta = dt
	case jogFresh:
		deltaTheta = c.jointDelta(snap)
	default:
		c.emitNoMotion(positions)
		return
	}

	if len(deltaTheta) != c.n {
		c.logger.Errorw("servo: joint delta length does not match joint count, skipping publish",
			"delta_len", len(deltaTheta), "joints", c.n)
		return
	}

	period := c.cfg.PublishPeriod.Seconds()
	enforceAccelVelLimits(deltaTheta, c.prevJointVelocity, bounds, period)

	if scale := snap.collisionVelocityScale; scale < 1 {
		for i := range deltaTheta {
			deltaTheta[i] *= scale
		}
		if scale <= 0 {
			c.status = HaltForCollision
		} else {
			c.status = DecelerateForCollision
		}
	}

	newPositions := make([]float64, c.n)
	newVelocities := make([]float64, c.n)
	for i := range newPositions {
		newPositions[i] = positions[i] + deltaTheta[i]
		newVelocities[i] = deltaTheta[i] / period
	}
	c.filters.filter(newPositions)

	if err := c.provider.SetPositions(newPositions); err != nil {
		c.throttle.warn("setpos2", "servo: failed to set new positions on kinematics provider: %v", err)
	} else {
		violated, err := positionBoundsViolated(c.provider, c.jointNames, newPositions, newVelocities, c.cfg.JointLimitMargin)
		if err != nil {
			c.throttle.warn("boundscheck", "servo: failed to check position bounds: %v", err)
		} else if violated {
			c.status = JointBound
			newPositions = append([]float64(nil), positions...)
			newVelocities = make([]float64, c.n)
		}
	}

	c.prevJointVelocity = newVelocities
	c.internalPositions = newPositions
	c.internalVelocities = newVelocities

	out := c.composeOutgoing(newPositions, newVelocities)
	c.emit(out, newVelocities)
}

// cartesianDelta masks the twist by control dims, rotates it into the
// planning frame, scales it into a per-tick delta, removes drift-masked
// rows from the Jacobian (a drift dimension is a free DOF, so its row is
// dropped from the least-squares solve rather than constrained to zero),
// solves via the SVD pseudoinverse, and applies the singularity scale
// computed from that same (possibly reduced) Jacobian and delta.
func (c *Core) cartesianDelta(snap inputsSnapshot, positions []float64) ([]float64, error) {
	masked := applyControlMask(snap.twist.asVector6(), snap.controlDims)
	linear := r3.Vector{X: masked[0], Y: masked[1], Z: masked[2]}
	angular := r3.Vector{X: masked[3], Y: masked[4], Z: masked[5]}

	if c.haveTf {
		var err error
		linear, angular, err = rotateTwistIntoPlanningFrame(
			c.provider, c.cfg.PlanningFrame, c.cfg.RobotLinkCommandFrame, snap.twist.FrameID,
			c.tfPlanningToCmd, linear, angular)
		if err != nil {
			return nil, errors.Wrap(err, "rotating twist into planning frame")
		}
	}

	if c.cfg.CommandInType == CommandInUnitless {
		linear = linear.Mul(c.cfg.LinearScale)
		angular = angular.Mul(c.cfg.RotationalScale)
	}

	period := c.cfg.PublishPeriod.Seconds()
	deltaX := [6]float64{
		linear.X * period, linear.Y * period, linear.Z * period,
		angular.X * period, angular.Y * period, angular.Z * period,
	}

	j, err := c.provider.Jacobian()
	if err != nil {
		return nil, errors.Wrap(err, "reading jacobian")
	}

	reducedJ, reducedX := reduceForDrift(j, deltaX, snap.driftDims)
	reducedSVD, err := factorizeJacobian(reducedJ)
	if err != nil {
		return nil, err
	}
	deltaTheta := reducedSVD.solve(reducedX)

	scale, status, err := singularityScale(
		c.provider, positions, reducedSVD, reducedX,
		c.cfg.LowerSingularityThreshold, c.cfg.HardStopSingularityThreshold)
	if err != nil {
		return nil, errors.Wrap(err, "singularity analysis")
	}
	if status != NoWarning {
		c.status = status
	}
	for i := range deltaTheta {
		deltaTheta[i] *= scale
	}
	return deltaTheta, nil
}

// jointDelta builds a per-tick position delta
// directly from named joint velocities, ignoring any jog entry whose name
// isn't in the active joint group.
func (c *Core) jointDelta(snap inputsSnapshot) []float64 {
	deltaTheta := make([]float64, c.n)
	period := c.cfg.PublishPeriod.Seconds()
	for i, name := range c.jointNames {
		idx := indexOf(snap.jointJog.Names, name)
		if idx < 0 || idx >= len(snap.jointJog.Velocities) {
			continue
		}
		deltaTheta[i] = snap.jointJog.Velocities[idx] * c.cfg.JointScale * period
	}
	return deltaTheta
}

// emitNoMotion holds position and publishes zero velocity, still subject to
// the halt-message gating in emit.
func (c *Core) emitNoMotion(positions []float64) {
	velocities := make([]float64, c.n)
	c.prevJointVelocity = velocities
	c.internalVelocities = velocities
	out := c.composeOutgoing(positions, velocities)
	c.emit(out, velocities)
}

// emit stops publishing once num_outgoing_halt_msgs_to_publish consecutive
// all-zero-velocity commands have gone out, so a stalled command stream
// doesn't flood the output topic with identical halt messages forever.
// Publishing resumes as soon as a nonzero-velocity command is emitted.
func (c *Core) emit(out OutgoingCommand, velocities []float64) {
	allZero := true
	for _, v := range velocities {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		c.zeroVelocityCount++
	} else {
		c.zeroVelocityCount = 0
	}
	if allZero && c.zeroVelocityCount > c.cfg.NumOutgoingHaltMsgsToPublish {
		return
	}
	if c.cfg.OnCommand != nil {
		c.cfg.OnCommand(out)
	}
	c.lastSentCommand = out
	c.haveLastSentCommand = true
}

// composeOutgoing assembles the output command: a
// multiarray of exactly one of positions/velocities, or a trajectory point
// (duplicated gazeboRedundantMessageCount times when UseGazebo is set).
func (c *Core) composeOutgoing(positions, velocities []float64) OutgoingCommand {
	if c.cfg.CommandOutType == CommandOutMultiarray {
		out := OutgoingCommand{JointNames: c.jointNames}
		if c.cfg.PublishJointPositions {
			out.RawArray = append([]float64(nil), positions...)
		} else {
			out.RawArray = append([]float64(nil), velocities...)
			out.RawIsVelocity = true
		}
		return out
	}

	period := c.cfg.PublishPeriod.Seconds()
	accelerations := make([]float64, c.n)
	for i := range accelerations {
		accelerations[i] = (velocities[i] - c.prevJointVelocity[i]) / period
	}

	point := TrajectoryPoint{TimeFromStart: c.cfg.PublishPeriod}
	if c.cfg.PublishJointPositions {
		point.Positions = append([]float64(nil), positions...)
	}
	if c.cfg.PublishJointVelocities {
		point.Velocities = append([]float64(nil), velocities...)
	}
	if c.cfg.PublishJointAccelerations {
		point.Accelerations = append([]float64(nil), accelerations...)
	}

	points := []TrajectoryPoint{point}
	if c.cfg.UseGazebo {
		points = make([]TrajectoryPoint, gazeboRedundantMessageCount)
		for i := range points {
			points[i] = point
		}
	}
	return OutgoingCommand{JointNames: c.jointNames, Trajectory: points}
}

func (c *Core) boundsForJoints() ([]JointBounds, error) {
	out := make([]JointBounds, c.n)
	for i, name := range c.jointNames {
		b, err := c.provider.VariableBounds(name)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func (c *Core) mapPositions(js JointState, fallback []float64) []float64 {
	out := append([]float64(nil), fallback...)
	for i, name := range c.jointNames {
		idx := indexOf(js.Names, name)
		if idx >= 0 && idx < len(js.Positions) {
			out[i] = js.Positions[idx]
		}
	}
	return out
}

func (c *Core) mapVelocities(js JointState, fallback []float64) []float64 {
	out := append([]float64(nil), fallback...)
	for i, name := range c.jointNames {
		idx := indexOf(js.Names, name)
		if idx >= 0 && idx < len(js.Velocities) {
			out[i] = js.Velocities[idx]
		}
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// reduceForDrift drops the rows of j (and the matching entries of deltaX)
// corresponding to dimensions marked as drift: a drift dimension is
// unconstrained rather than zero-constrained, so it is removed from the
// least-squares problem entirely. Dimensions are considered from the last
// down to the first, and a row is only dropped while more than one row
// remains, so the Jacobian can never be reduced to zero rows even if every
// drift dimension is set.
func reduceForDrift(j *mat.Dense, deltaX [6]float64, drift dims6) (*mat.Dense, []float64) {
	rows, cols := j.Dims()
	keep := make([]bool, rows)
	for i := range keep {
		keep[i] = true
	}
	remaining := rows
	for d := len(drift) - 1; d >= 0; d-- {
		if d >= rows {
			continue
		}
		if drift[d] && remaining > 1 {
			keep[d] = false
			remaining--
		}
	}

	keptRows := make([]int, 0, remaining)
	for i, k := range keep {
		if k {
			keptRows = append(keptRows, i)
		}
	}
	reduced := mat.NewDense(len(keptRows), cols, nil)
	reducedX := make([]float64, len(keptRows))
	for newRow, oldRow := range keptRows {
		for col := 0; col < cols; col++ {
			reduced.Set(newRow, col, j.At(oldRow, col))
		}
		reducedX[newRow] = deltaX[oldRow]
	}
	return reduced, reducedX
}
