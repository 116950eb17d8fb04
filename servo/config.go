package servo

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// CommandOutType selects the shape of the outgoing command.
type CommandOutType string

// The two recognized command_out_type values.
const (
	CommandOutTrajectory CommandOutType = "trajectory"
	CommandOutMultiarray CommandOutType = "multiarray"
)

// gazeboRedundantMessageCount is the number of trajectory points duplicated
// into a single outgoing trajectory when GazeboMode is set, per spec.
const gazeboRedundantMessageCount = 30

// Config holds every configuration option recognized by the servo core.
// It is immutable after Core construction.
type Config struct {
	PublishPeriod time.Duration `json:"publish_period"`

	LinearScale     float64 `json:"linear_scale"`
	RotationalScale float64 `json:"rotational_scale"`
	JointScale      float64 `json:"joint_scale"`

	CommandInType  CommandInType  `json:"command_in_type"`
	CommandOutType CommandOutType `json:"command_out_type"`

	PublishJointPositions     bool `json:"publish_joint_positions"`
	PublishJointVelocities    bool `json:"publish_joint_velocities"`
	PublishJointAccelerations bool `json:"publish_joint_accelerations"`

	LowPassFilterCoeff float64 `json:"low_pass_filter_coeff"`

	IncomingCommandTimeout time.Duration `json:"incoming_command_timeout"`

	NumOutgoingHaltMsgsToPublish int `json:"num_outgoing_halt_msgs_to_publish"`

	LowerSingularityThreshold    float64 `json:"lower_singularity_threshold"`
	HardStopSingularityThreshold float64 `json:"hard_stop_singularity_threshold"`

	JointLimitMargin float64 `json:"joint_limit_margin"`

	PlanningFrame         string `json:"planning_frame"`
	RobotLinkCommandFrame string `json:"robot_link_command_frame"`
	MoveGroupName         string `json:"move_group_name"`

	UseGazebo bool `json:"use_gazebo"`

	// OnStatus, OnCommand and OnStopTime are the transport-facing output
	// hooks. They are invoked at most once per tick, from the tick
	// goroutine only, never concurrently. Transport (pub/sub, a ROS-alike
	// bridge, or anything else) is out of scope; these are the seam.
	OnStatus   func(StatusCode)      `json:"-"`
	OnCommand  func(OutgoingCommand) `json:"-"`
	OnStopTime func(seconds float64) `json:"-"`
}

// Validate checks every invariant in the configuration table, in the style
// of xarm.Config.Validate, and aggregates every failed rule into a single
// error via multierr rather than stopping at the first one, the way
// comm.go's resetErrorState combines its independent failures.
func (c *Config) Validate(path string) error {
	var errs error
	if c.PublishPeriod <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: publish_period must be > 0, got %v", path, c.PublishPeriod))
	}
	switch c.CommandInType {
	case CommandInUnitless, CommandInSpeedUnits:
	default:
		errs = multierr.Append(errs, errors.Errorf("%s: command_in_type must be %q or %q, got %q",
			path, CommandInUnitless, CommandInSpeedUnits, c.CommandInType))
	}
	switch c.CommandOutType {
	case CommandOutTrajectory, CommandOutMultiarray:
	default:
		errs = multierr.Append(errs, errors.Errorf("%s: command_out_type must be %q or %q, got %q",
			path, CommandOutTrajectory, CommandOutMultiarray, c.CommandOutType))
	}
	if !c.PublishJointPositions && !c.PublishJointVelocities && !c.PublishJointAccelerations {
		errs = multierr.Append(errs, errors.Errorf("%s: at least one of publish_joint_positions/velocities/accelerations must be true", path))
	}
	if c.CommandOutType == CommandOutMultiarray {
		nPosVel := 0
		if c.PublishJointPositions {
			nPosVel++
		}
		if c.PublishJointVelocities {
			nPosVel++
		}
		if nPosVel != 1 {
			errs = multierr.Append(errs, errors.Errorf(
				"%s: command_out_type=multiarray requires exactly one of publish_joint_positions/publish_joint_velocities", path))
		}
	}
	if c.LowPassFilterCoeff < 1 {
		errs = multierr.Append(errs, errors.Errorf("%s: low_pass_filter_coeff must be >= 1, got %v", path, c.LowPassFilterCoeff))
	}
	if c.NumOutgoingHaltMsgsToPublish < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: num_outgoing_halt_msgs_to_publish must be >= 0, got %v", path, c.NumOutgoingHaltMsgsToPublish))
	}
	if c.LowerSingularityThreshold < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: lower_singularity_threshold must be >= 0, got %v", path, c.LowerSingularityThreshold))
	}
	if c.HardStopSingularityThreshold < c.LowerSingularityThreshold {
		errs = multierr.Append(errs, errors.Errorf("%s: hard_stop_singularity_threshold (%v) must be >= lower_singularity_threshold (%v)",
			path, c.HardStopSingularityThreshold, c.LowerSingularityThreshold))
	}
	if c.JointLimitMargin < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: joint_limit_margin must be >= 0, got %v", path, c.JointLimitMargin))
	}
	return errs
}
