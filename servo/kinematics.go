package servo

import (
	"strconv"

	"github.com/pkg/errors"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
)

// JointBounds describes the position/velocity/acceleration limits for a
// single joint, mirroring getVariableBounds in the external kinematics
// contract.
type JointBounds struct {
	PositionBounded bool
	MinPosition     float64
	MaxPosition     float64

	VelocityBounded bool
	MinVelocity     float64
	MaxVelocity     float64

	AccelerationBounded bool
	MinAcceleration     float64
	MaxAcceleration     float64
}

// KinematicsProvider is the external kinematics/model-provider contract.
// The servo core only ever borrows one; it never owns its
// lifecycle.
type KinematicsProvider interface {
	// JointNames returns the ordered active-joint names of the configured
	// move group. The order and length (N) never change after init.
	JointNames() []string

	// SetPositions recomputes the provider's internal kinematic state
	// (forward kinematics, Jacobian) for the given joint positions.
	SetPositions(positions []float64) error

	// Jacobian returns the 6xN Jacobian at the state last set via
	// SetPositions.
	Jacobian() (*mat.Dense, error)

	// GlobalTransform returns the 4x4 transform (as a Pose) from the model's
	// root to the named frame, at the state last set via SetPositions.
	GlobalTransform(frameName string) (spatialmath.Pose, error)

	// VariableBounds returns the configured bounds for one joint.
	VariableBounds(joint string) (JointBounds, error)

	// SatisfiesPositionBounds reports whether the joint's current position
	// (at the state last set via SetPositions) is within its position
	// bounds, widened outward by margin (a negative margin shrinks them
	// inward).
	SatisfiesPositionBounds(joint string, margin float64) (bool, error)
}

// FrameKinematics is a KinematicsProvider built on top of a
// go.viam.com/rdk/referenceframe.Model, the kind loaded from embedded
// DH/URDF-style kinematics JSON (xarm6_kinematics.json etc). Building a
// numerical differential Jacobian is itself a kinematics-provider
// responsibility, out of scope for the model representation alone, so
// JacobianFunc is supplied by the caller rather than computed here.
type FrameKinematics struct {
	Model        referenceframe.Model
	JacobianFunc func(positions []referenceframe.Input) (*mat.Dense, error)

	names     []string
	positions []referenceframe.Input
}

// NewFrameKinematics builds a FrameKinematics over model, using
// jacobianFunc to compute the Jacobian at a given joint configuration.
// referenceframe.Model exposes per-joint bounds (DoF) but not per-joint
// names, so joints are named positionally ("joint_0".."joint_{N-1}"); a
// provider that needs real joint names (e.g. to match incoming JointState
// messages) should implement KinematicsProvider directly instead.
func NewFrameKinematics(
	model referenceframe.Model,
	jacobianFunc func(positions []referenceframe.Input) (*mat.Dense, error),
) *FrameKinematics {
	dof := model.DoF()
	names := make([]string, len(dof))
	for i := range dof {
		names[i] = jointName(i)
	}
	return &FrameKinematics{
		Model:        model,
		JacobianFunc: jacobianFunc,
		names:        names,
		positions:    referenceframe.FloatsToInputs(make([]float64, len(names))),
	}
}

func jointName(i int) string {
	return "joint_" + strconv.Itoa(i)
}

// JointNames implements KinematicsProvider.
func (f *FrameKinematics) JointNames() []string {
	return f.names
}

// SetPositions implements KinematicsProvider.
func (f *FrameKinematics) SetPositions(positions []float64) error {
	if len(positions) != len(f.names) {
		return errors.Errorf("expected %d joint positions, got %d", len(f.names), len(positions))
	}
	f.positions = referenceframe.FloatsToInputs(positions)
	return nil
}

// Jacobian implements KinematicsProvider.
func (f *FrameKinematics) Jacobian() (*mat.Dense, error) {
	if f.JacobianFunc == nil {
		return nil, errors.New("FrameKinematics: no JacobianFunc configured")
	}
	return f.JacobianFunc(f.positions)
}

// GlobalTransform implements KinematicsProvider. FrameKinematics models a
// single-arm move group without a full frame system, so it only resolves
// the model's own end-effector frame and the empty/world frame; a provider
// backed by a real referenceframe.FrameSystem would resolve arbitrary named
// frames instead.
func (f *FrameKinematics) GlobalTransform(frameName string) (spatialmath.Pose, error) {
	if frameName == "" {
		return spatialmath.NewZeroPose(), nil
	}
	if frameName != f.Model.Name() {
		return nil, errors.Errorf("FrameKinematics: unknown frame %q", frameName)
	}
	return referenceframe.ComputeOOBPosition(f.Model, f.positions)
}

// VariableBounds implements KinematicsProvider.
func (f *FrameKinematics) VariableBounds(joint string) (JointBounds, error) {
	idx := -1
	for i, n := range f.names {
		if n == joint {
			idx = i
			break
		}
	}
	if idx < 0 {
		return JointBounds{}, errors.Errorf("unknown joint %q", joint)
	}
	dof := f.Model.DoF()[idx]
	return JointBounds{
		PositionBounded: true,
		MinPosition:     dof.Min,
		MaxPosition:     dof.Max,
	}, nil
}

// SatisfiesPositionBounds implements KinematicsProvider.
func (f *FrameKinematics) SatisfiesPositionBounds(joint string, margin float64) (bool, error) {
	bounds, err := f.VariableBounds(joint)
	if err != nil {
		return false, err
	}
	if !bounds.PositionBounded {
		return true, nil
	}
	idx := -1
	for i, n := range f.names {
		if n == joint {
			idx = i
			break
		}
	}
	pos := f.positions[idx].Value
	return pos >= bounds.MinPosition-margin && pos <= bounds.MaxPosition+margin, nil
}
