package servo

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// planarArm is a 2-joint fake KinematicsProvider whose Jacobian is a fixed
// 6x2 matrix with an identity block in the x/y rows, enough to drive the
// cartesian branch deterministically without any real kinematics model.
type planarArm struct {
	positions  []float64
	setCalls   int
	boundedVel bool
}

func newPlanarArm() *planarArm {
	return &planarArm{positions: make([]float64, 2)}
}

func (p *planarArm) JointNames() []string { return []string{"j0", "j1"} }

func (p *planarArm) SetPositions(positions []float64) error {
	p.positions = append([]float64(nil), positions...)
	p.setCalls++
	return nil
}

func (p *planarArm) Jacobian() (*mat.Dense, error) {
	j := mat.NewDense(6, 2, nil)
	j.Set(0, 0, 1)
	j.Set(1, 1, 1)
	return j, nil
}

func (p *planarArm) GlobalTransform(frameName string) (spatialmath.Pose, error) {
	return spatialmath.NewZeroPose(), nil
}

func (p *planarArm) VariableBounds(joint string) (JointBounds, error) {
	return JointBounds{
		PositionBounded: true, MinPosition: -10, MaxPosition: 10,
		VelocityBounded: true, MinVelocity: -10, MaxVelocity: 10,
		AccelerationBounded: true, MinAcceleration: -50, MaxAcceleration: 50,
	}, nil
}

func (p *planarArm) SatisfiesPositionBounds(joint string, margin float64) (bool, error) {
	return true, nil
}

// boundedHaltArm is a planarArm whose SatisfiesPositionBounds always
// reports a violation, so any commanded motion drives Core.Tick into the
// JointBound halt path.
type boundedHaltArm struct {
	planarArm
}

func newBoundedHaltArm() *boundedHaltArm {
	return &boundedHaltArm{planarArm: *newPlanarArm()}
}

func (p *boundedHaltArm) SatisfiesPositionBounds(joint string, margin float64) (bool, error) {
	return false, nil
}

func testConfig() Config {
	return Config{
		PublishPeriod:                10 * time.Millisecond,
		LinearScale:                  1,
		RotationalScale:              1,
		JointScale:                   1,
		CommandInType:                CommandInUnitless,
		CommandOutType:               CommandOutTrajectory,
		PublishJointPositions:        true,
		PublishJointVelocities:       true,
		LowPassFilterCoeff:           1,
		IncomingCommandTimeout:       time.Second,
		NumOutgoingHaltMsgsToPublish: 1,
		LowerSingularityThreshold:    10,
		HardStopSingularityThreshold: 30,
		JointLimitMargin:             0.1,
	}
}

func TestCoreZeroCommandHalts(t *testing.T) {
	provider := newPlanarArm()
	var lastCmd OutgoingCommand
	var publishCount int
	cfg := testConfig()
	cfg.OnCommand = func(c OutgoingCommand) { lastCmd = c; publishCount++ }

	core, err := NewCore(cfg, provider, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	core.HandleJointState(JointState{Names: provider.JointNames(), Positions: []float64{0, 0}, Stamp: time.Now()})
	test.That(t, core.Start(context.Background()), test.ShouldBeNil)

	// A present-but-zero twist clears wait_for_first_command on the first
	// tick without producing motion; the second tick publishes the halt.
	core.HandleTwist(TwistCmd{Stamp: time.Now()})
	core.Tick(context.Background())
	core.Tick(context.Background())

	test.That(t, lastCmd.Trajectory[0].Velocities, test.ShouldResemble, []float64{0, 0})
	test.That(t, publishCount, test.ShouldEqual, 1)
}

func TestCorePureXTranslation(t *testing.T) {
	provider := newPlanarArm()
	var lastCmd OutgoingCommand
	cfg := testConfig()
	cfg.OnCommand = func(c OutgoingCommand) { lastCmd = c }

	core, err := NewCore(cfg, provider, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	core.HandleJointState(JointState{Names: provider.JointNames(), Positions: []float64{0, 0}, Stamp: time.Now()})
	test.That(t, core.Start(context.Background()), test.ShouldBeNil)

	// First tick clears wait_for_first_command, second moves.
	core.HandleTwist(TwistCmd{Stamp: time.Now(), Linear: r3.Vector{X: 0.5}})
	core.Tick(context.Background())
	core.Tick(context.Background())

	test.That(t, lastCmd.Trajectory[0].Positions[0], test.ShouldBeGreaterThan, 0)
	test.That(t, lastCmd.Trajectory[0].Positions[1], test.ShouldAlmostEqual, 0, 1e-9)
}

func TestCoreStaleTwistProducesNoMotion(t *testing.T) {
	provider := newPlanarArm()
	var lastCmd OutgoingCommand
	cfg := testConfig()
	cfg.IncomingCommandTimeout = time.Millisecond
	cfg.OnCommand = func(c OutgoingCommand) { lastCmd = c }

	core, err := NewCore(cfg, provider, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	core.HandleJointState(JointState{Names: provider.JointNames(), Positions: []float64{0, 0}, Stamp: time.Now()})
	test.That(t, core.Start(context.Background()), test.ShouldBeNil)

	core.HandleTwist(TwistCmd{Stamp: time.Now().Add(-time.Hour), Linear: r3.Vector{X: 0.5}})
	core.Tick(context.Background()) // clears wait_for_first_command, no motion yet
	core.Tick(context.Background()) // twist is present but stale: no motion

	test.That(t, lastCmd.Trajectory[0].Velocities, test.ShouldResemble, []float64{0, 0})
}

func TestCoreCollisionScaleHalts(t *testing.T) {
	provider := newPlanarArm()
	var statuses []StatusCode
	cfg := testConfig()
	cfg.OnStatus = func(s StatusCode) { statuses = append(statuses, s) }

	core, err := NewCore(cfg, provider, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	core.HandleJointState(JointState{Names: provider.JointNames(), Positions: []float64{0, 0}, Stamp: time.Now()})
	test.That(t, core.Start(context.Background()), test.ShouldBeNil)

	core.SetCollisionVelocityScale(0)
	core.HandleTwist(TwistCmd{Stamp: time.Now(), Linear: r3.Vector{X: 0.5}})
	core.Tick(context.Background()) // clears wait_for_first_command
	core.Tick(context.Background()) // moves, sets HaltForCollision internally
	core.Tick(context.Background()) // publishes the status set by the prior tick

	test.That(t, statuses[len(statuses)-1], test.ShouldEqual, HaltForCollision)
}

func TestCoreDriftDimensionFreesRow(t *testing.T) {
	provider := newPlanarArm()
	var lastCmd OutgoingCommand
	cfg := testConfig()
	cfg.OnCommand = func(c OutgoingCommand) { lastCmd = c }

	core, err := NewCore(cfg, provider, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	core.HandleJointState(JointState{Names: provider.JointNames(), Positions: []float64{0, 0}, Stamp: time.Now()})
	test.That(t, core.Start(context.Background()), test.ShouldBeNil)
	test.That(t, core.SetDriftDimensions([6]bool{false, true, false, false, false, false}), test.ShouldBeTrue)

	core.HandleTwist(TwistCmd{Stamp: time.Now(), Linear: r3.Vector{X: 0.5, Y: 0.5}})
	core.Tick(context.Background())
	core.Tick(context.Background())

	// y is a drift dimension (its Jacobian row was removed), so only joint 0
	// (which maps to x) should have moved.
	test.That(t, lastCmd.Trajectory[0].Positions[0], test.ShouldBeGreaterThan, 0)
	test.That(t, lastCmd.Trajectory[0].Positions[1], test.ShouldAlmostEqual, 0, 1e-9)
}

func TestCoreJointBoundHaltsAndIsIdempotent(t *testing.T) {
	provider := newBoundedHaltArm()
	var statuses []StatusCode
	cfg := testConfig()
	cfg.OnStatus = func(s StatusCode) { statuses = append(statuses, s) }

	core, err := NewCore(cfg, provider, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	core.HandleJointState(JointState{Names: provider.JointNames(), Positions: []float64{0, 0}, Stamp: time.Now()})
	test.That(t, core.Start(context.Background()), test.ShouldBeNil)

	// An outward-pointing velocity against a provider that always reports
	// the position bound violated must halt and revert to the pre-tick
	// position, not just clip the delta.
	core.HandleTwist(TwistCmd{Stamp: time.Now(), Linear: r3.Vector{X: 0.5}})
	core.Tick(context.Background()) // clears wait_for_first_command, no motion yet
	preHaltPositions := append([]float64(nil), core.internalPositions...)

	core.Tick(context.Background())
	test.That(t, core.status, test.ShouldEqual, JointBound)
	test.That(t, core.internalPositions, test.ShouldResemble, preHaltPositions)
	test.That(t, core.prevJointVelocity, test.ShouldResemble, []float64{0, 0})

	// A second consecutive tick must halt identically rather than drifting
	// further or oscillating.
	core.Tick(context.Background())
	test.That(t, core.status, test.ShouldEqual, JointBound)
	test.That(t, core.internalPositions, test.ShouldResemble, preHaltPositions)
	test.That(t, core.prevJointVelocity, test.ShouldResemble, []float64{0, 0})

	test.That(t, statuses[len(statuses)-1], test.ShouldEqual, JointBound)
}

func TestCorePauseSuppressesMotion(t *testing.T) {
	provider := newPlanarArm()
	var lastCmd OutgoingCommand
	cfg := testConfig()
	cfg.OnCommand = func(c OutgoingCommand) { lastCmd = c }

	core, err := NewCore(cfg, provider, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	core.HandleJointState(JointState{Names: provider.JointNames(), Positions: []float64{0, 0}, Stamp: time.Now()})
	test.That(t, core.Start(context.Background()), test.ShouldBeNil)
	test.That(t, core.Pause(true), test.ShouldBeNil)

	core.HandleTwist(TwistCmd{Stamp: time.Now(), Linear: r3.Vector{X: 0.5}})
	core.Tick(context.Background())

	test.That(t, lastCmd.Trajectory, test.ShouldBeNil)
}
