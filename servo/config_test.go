package servo

import (
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

func validConfig() Config {
	return Config{
		PublishPeriod:                10 * time.Millisecond,
		LinearScale:                  0.4,
		RotationalScale:              0.4,
		JointScale:                   0.4,
		CommandInType:                CommandInUnitless,
		CommandOutType:               CommandOutTrajectory,
		PublishJointPositions:        true,
		PublishJointVelocities:       true,
		LowPassFilterCoeff:           100,
		IncomingCommandTimeout:       time.Second,
		NumOutgoingHaltMsgsToPublish: 2,
		LowerSingularityThreshold:    10,
		HardStopSingularityThreshold: 30,
		JointLimitMargin:             0.1,
		PlanningFrame:                "planning",
		RobotLinkCommandFrame:        "tool0",
		MoveGroupName:                "manipulator",
	}
}

func TestConfigValidateOK(t *testing.T) {
	c := validConfig()
	test.That(t, c.Validate("config"), test.ShouldBeNil)
}

func TestConfigValidateBadPublishPeriod(t *testing.T) {
	c := validConfig()
	c.PublishPeriod = 0
	test.That(t, c.Validate("config"), test.ShouldNotBeNil)
}

func TestConfigValidateBadCommandInType(t *testing.T) {
	c := validConfig()
	c.CommandInType = "bogus"
	test.That(t, c.Validate("config"), test.ShouldNotBeNil)
}

func TestConfigValidateMultiarrayRequiresExactlyOne(t *testing.T) {
	c := validConfig()
	c.CommandOutType = CommandOutMultiarray
	c.PublishJointPositions = true
	c.PublishJointVelocities = true
	test.That(t, c.Validate("config"), test.ShouldNotBeNil)

	c.PublishJointVelocities = false
	test.That(t, c.Validate("config"), test.ShouldBeNil)
}

func TestConfigValidateNoPublishFields(t *testing.T) {
	c := validConfig()
	c.PublishJointPositions = false
	c.PublishJointVelocities = false
	c.PublishJointAccelerations = false
	test.That(t, c.Validate("config"), test.ShouldNotBeNil)
}

func TestConfigValidateSingularityThresholds(t *testing.T) {
	c := validConfig()
	c.HardStopSingularityThreshold = 5
	c.LowerSingularityThreshold = 10
	test.That(t, c.Validate("config"), test.ShouldNotBeNil)
}

func TestConfigValidateLowPassCoeff(t *testing.T) {
	c := validConfig()
	c.LowPassFilterCoeff = 0.5
	test.That(t, c.Validate("config"), test.ShouldNotBeNil)
}

func TestConfigValidateAggregatesAllFailedRules(t *testing.T) {
	c := validConfig()
	c.PublishPeriod = 0
	c.LowPassFilterCoeff = 0.5
	c.JointLimitMargin = -1

	err := c.Validate("config")
	test.That(t, err, test.ShouldNotBeNil)
	msg := err.Error()
	test.That(t, strings.Contains(msg, "publish_period"), test.ShouldBeTrue)
	test.That(t, strings.Contains(msg, "low_pass_filter_coeff"), test.ShouldBeTrue)
	test.That(t, strings.Contains(msg, "joint_limit_margin"), test.ShouldBeTrue)
}
