package servo

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// planningToCommandFrame computes tf_planning_to_cmd_frame = T(planning)^-1
// * T(robot_link_command_frame).
func planningToCommandFrame(provider KinematicsProvider, planningFrame, commandFrame string) (spatialmath.Pose, error) {
	tPlanning, err := provider.GlobalTransform(planningFrame)
	if err != nil {
		return nil, err
	}
	tCommand, err := provider.GlobalTransform(commandFrame)
	if err != nil {
		return nil, err
	}
	return spatialmath.Compose(spatialmath.PoseInverse(tPlanning), tCommand), nil
}

// rotationOnly strips the translation component of a pose, leaving a pure
// rotation that can be applied to a vector (a twist component) without
// translating it: twists live at the origin, not at a point.
func rotationOnly(pose spatialmath.Pose) spatialmath.Pose {
	return spatialmath.NewPoseFromOrientation(pose.Orientation())
}

// rotateVector rotates v by the orientation of rotation (which must have a
// zero translation, see rotationOnly), without translating it.
func rotateVector(rotation spatialmath.Pose, v r3.Vector) r3.Vector {
	return spatialmath.Compose(rotation, spatialmath.NewPoseFromPoint(v)).Point()
}

// rotateTwistIntoPlanningFrame rotates (does not translate) the incoming
// twist into the planning frame. If the incoming
// frame is empty or equals the command frame, the precomputed
// tf_planning_to_cmd_frame rotation is used directly; otherwise the
// rotation of T(planning)^-1 * T(incoming) is computed and used.
func rotateTwistIntoPlanningFrame(
	provider KinematicsProvider,
	planningFrame, commandFrame, incomingFrame string,
	tfPlanningToCmd spatialmath.Pose,
	linear, angular r3.Vector,
) (r3.Vector, r3.Vector, error) {
	rotation := rotationOnly(tfPlanningToCmd)
	if incomingFrame != "" && incomingFrame != commandFrame {
		tIncoming, err := provider.GlobalTransform(incomingFrame)
		if err != nil {
			return r3.Vector{}, r3.Vector{}, err
		}
		tPlanning, err := provider.GlobalTransform(planningFrame)
		if err != nil {
			return r3.Vector{}, r3.Vector{}, err
		}
		rotation = rotationOnly(spatialmath.Compose(spatialmath.PoseInverse(tPlanning), tIncoming))
	}
	return rotateVector(rotation, linear), rotateVector(rotation, angular), nil
}
