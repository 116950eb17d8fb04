// Package main is a smoke-test CLI for the servo core, driving it with a
// synthetic kinematics provider instead of a real arm, in the style of
// cmdcli/clixarm.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/cartesian-servo/servo"
)

// diagonalArm is a minimal KinematicsProvider standing in for a real arm: N
// joints, an identity-scaled 6xN Jacobian (first min(6,N) rows are an
// identity block), and generous bounds, enough to exercise the full tick
// pipeline end to end.
type diagonalArm struct {
	n         int
	positions []float64
}

func (d *diagonalArm) JointNames() []string {
	names := make([]string, d.n)
	for i := range names {
		names[i] = fmt.Sprintf("joint_%d", i)
	}
	return names
}

func (d *diagonalArm) SetPositions(positions []float64) error {
	d.positions = append([]float64(nil), positions...)
	return nil
}

func (d *diagonalArm) Jacobian() (*mat.Dense, error) {
	j := mat.NewDense(6, d.n, nil)
	for i := 0; i < 6 && i < d.n; i++ {
		j.Set(i, i, 1)
	}
	return j, nil
}

func (d *diagonalArm) GlobalTransform(frameName string) (spatialmath.Pose, error) {
	return spatialmath.NewZeroPose(), nil
}

func (d *diagonalArm) VariableBounds(joint string) (servo.JointBounds, error) {
	return servo.JointBounds{
		PositionBounded: true, MinPosition: -3.14, MaxPosition: 3.14,
		VelocityBounded: true, MinVelocity: -2, MaxVelocity: 2,
		AccelerationBounded: true, MinAcceleration: -5, MaxAcceleration: 5,
	}, nil
}

func (d *diagonalArm) SatisfiesPositionBounds(joint string, margin float64) (bool, error) {
	return true, nil
}

func main() {
	if err := realMain(); err != nil {
		panic(err)
	}
}

func realMain() error {
	joints := flag.Int("joints", 6, "number of joints in the synthetic arm")
	ticks := flag.Int("ticks", 20, "number of ticks to run")
	period := flag.Duration("period", 50*time.Millisecond, "publish period")
	linearX := flag.Float64("linear-x", 0.5, "unitless commanded linear x velocity")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	logger := logging.NewLogger("servocli")
	if *debug {
		logger.SetLevel(logging.DEBUG)
	}

	provider := &diagonalArm{n: *joints, positions: make([]float64, *joints)}

	cfg := servo.Config{
		PublishPeriod:                *period,
		LinearScale:                  1,
		RotationalScale:              1,
		JointScale:                   1,
		CommandInType:                servo.CommandInUnitless,
		CommandOutType:               servo.CommandOutTrajectory,
		PublishJointPositions:        true,
		PublishJointVelocities:       true,
		LowPassFilterCoeff:           1,
		IncomingCommandTimeout:       time.Second,
		NumOutgoingHaltMsgsToPublish: 2,
		LowerSingularityThreshold:    10,
		HardStopSingularityThreshold: 30,
		JointLimitMargin:             0.1,
		OnStatus: func(s servo.StatusCode) {
			if s != servo.NoWarning {
				logger.Infof("status: %s", s)
			}
		},
		OnCommand: func(c servo.OutgoingCommand) {
			if len(c.Trajectory) > 0 {
				logger.Infof("command: positions=%v velocities=%v", c.Trajectory[0].Positions, c.Trajectory[0].Velocities)
			}
		},
	}

	core, err := servo.NewCore(cfg, provider, logger)
	if err != nil {
		return err
	}

	core.HandleJointState(servo.JointState{
		Names:     provider.JointNames(),
		Positions: make([]float64, *joints),
		Stamp:     time.Now(),
	})

	ctx := context.Background()
	if err := core.Start(ctx); err != nil {
		return err
	}

	for i := 0; i < *ticks; i++ {
		core.HandleTwist(servo.TwistCmd{
			Stamp:  time.Now(),
			Linear: r3.Vector{X: *linearX},
		})
		core.HandleJointState(servo.JointState{
			Names:     provider.JointNames(),
			Positions: append([]float64(nil), provider.positions...),
			Stamp:     time.Now(),
		})
		core.Tick(ctx)
		time.Sleep(*period)
	}

	return core.Stop(ctx)
}
