package servo

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// Model identifies this service to the module system.
var Model = resource.NewModel("viam-modules", "cartesian-servo", "servo")

// jacobianStep is the finite-difference step, in radians, used to build a
// numerical Jacobian from the dependency arm's kinematic model. A real
// deployment would typically get an analytic Jacobian from the arm's own
// driver; this numerical fallback is enough to exercise the full pipeline
// against any go.viam.com/rdk/components/arm implementation.
const jacobianStep = 1e-6

// ServiceConfig is the resource.Config attribute set for the servo service:
// every Config field, flattened, plus the name of the arm component to
// servo.
type ServiceConfig struct {
	ArmName string `json:"arm"`
	Config
}

// Validate checks the servo config and declares the arm as a required
// dependency, in the style of GripperConfig.Validate.
func (c *ServiceConfig) Validate(path string) ([]string, []string, error) {
	if c.ArmName == "" {
		return nil, nil, utils.NewConfigValidationFieldRequiredError(path, "arm")
	}
	if err := c.Config.Validate(path); err != nil {
		return nil, nil, err
	}
	return []string{c.ArmName}, nil, nil
}

func init() {
	resource.RegisterService(
		generic.API,
		Model,
		resource.Registration[resource.Resource, *ServiceConfig]{
			Constructor: newService,
		})
}

// Service wraps a Core as a go.viam.com/rdk generic service: it polls the
// dependency arm for joint feedback, feeds it to the core, and relays
// control verbs through DoCommand.
type Service struct {
	resource.Named
	resource.AlwaysRebuild

	core   *Core
	armRes arm.Arm
	logger logging.Logger
	period time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newService(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (resource.Resource, error) {
	newConf, err := resource.NativeConfig[*ServiceConfig](conf)
	if err != nil {
		return nil, err
	}

	armRes, err := arm.FromDependencies(deps, newConf.ArmName)
	if err != nil {
		return nil, err
	}
	model := armRes.ModelFrame()

	provider := NewFrameKinematics(model, func(positions []referenceframe.Input) (*mat.Dense, error) {
		return numericJacobian(model, positions, jacobianStep)
	})

	core, err := NewCore(newConf.Config, provider, logger)
	if err != nil {
		return nil, err
	}

	svcCtx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		Named:  conf.ResourceName().AsNamed(),
		core:   core,
		armRes: armRes,
		logger: logger,
		period: newConf.Config.PublishPeriod,
		cancel: cancel,
	}
	svc.wg.Add(1)
	go svc.pollJointState(svcCtx)

	return svc, nil
}

// pollJointState feeds the dependency arm's reported joint positions into
// the core at the configured publish rate. This is the servo's only source
// of joint feedback: a go.viam.com/rdk/components/arm.Arm dependency polled
// on a timer, standing in for the joint_state topic of a pub/sub deployment.
func (s *Service) pollJointState(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inputs, err := s.armRes.JointPositions(ctx, nil)
			if err != nil {
				s.logger.Warnf("servo: failed to read joint positions: %v", err)
				continue
			}
			s.core.HandleJointState(JointState{
				Names:     s.core.jointNames,
				Positions: referenceframe.InputsToFloats(inputs),
				Stamp:     time.Now(),
			})
		}
	}
}

// Close stops the feedback poller and the core's tick loop.
func (s *Service) Close(ctx context.Context) error {
	s.cancel()
	s.wg.Wait()
	return s.core.Stop(ctx)
}

// DoCommand implements the start/stop/pause/dimension control surface,
// dispatching on map keys in the style of xArm.DoCommand.
func (s *Service) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	resp := map[string]interface{}{}
	handled := false

	if _, ok := cmd["start"]; ok {
		if err := s.core.Start(ctx); err != nil {
			return nil, errors.Wrap(err, "start")
		}
		handled = true
	}
	if _, ok := cmd["stop"]; ok {
		if err := s.core.Stop(ctx); err != nil {
			return nil, errors.Wrap(err, "stop")
		}
		handled = true
	}
	if _, ok := cmd["pause"]; ok {
		if err := s.core.Pause(true); err != nil {
			return nil, errors.Wrap(err, "pause")
		}
		handled = true
	}
	if _, ok := cmd["unpause"]; ok {
		if err := s.core.Pause(false); err != nil {
			return nil, errors.Wrap(err, "unpause")
		}
		handled = true
	}
	if val, ok := cmd["change_control_dimensions"]; ok {
		d, err := parseDims6(val)
		if err != nil {
			return nil, errors.Wrap(err, "change_control_dimensions")
		}
		resp["ok"] = s.core.SetControlDimensions(d)
		handled = true
	}
	if val, ok := cmd["change_drift_dimensions"]; ok {
		d, err := parseDims6(val)
		if err != nil {
			return nil, errors.Wrap(err, "change_drift_dimensions")
		}
		resp["ok"] = s.core.SetDriftDimensions(d)
		handled = true
	}
	if val, ok := cmd["collision_velocity_scale"]; ok {
		scale, ok := val.(float64)
		if !ok {
			return nil, errors.New("collision_velocity_scale must be a number")
		}
		s.core.SetCollisionVelocityScale(scale)
		handled = true
	}

	if !handled {
		return nil, errors.Errorf("unrecognized servo command: %v", cmd)
	}
	return resp, nil
}

// parseDims6 converts a DoCommand value (a []interface{} of six bools, as
// produced by JSON decoding) into a [6]bool.
func parseDims6(val interface{}) ([6]bool, error) {
	var out [6]bool
	raw, ok := val.([]interface{})
	if !ok || len(raw) != 6 {
		return out, errors.New("expected an array of six booleans")
	}
	for i, v := range raw {
		b, ok := v.(bool)
		if !ok {
			return out, errors.Errorf("element %d is not a boolean", i)
		}
		out[i] = b
	}
	return out, nil
}

// numericJacobian computes a 6xN Jacobian of the model's end-effector pose
// with respect to joint positions by central differences.
func numericJacobian(model referenceframe.Model, positions []referenceframe.Input, step float64) (*mat.Dense, error) {
	n := len(positions)
	j := mat.NewDense(6, n, nil)

	base := make([]referenceframe.Input, n)
	copy(base, positions)

	for col := 0; col < n; col++ {
		plus := append([]referenceframe.Input(nil), base...)
		minus := append([]referenceframe.Input(nil), base...)
		plus[col].Value += step
		minus[col].Value -= step

		poseP, err := referenceframe.ComputeOOBPosition(model, plus)
		if err != nil {
			return nil, err
		}
		poseM, err := referenceframe.ComputeOOBPosition(model, minus)
		if err != nil {
			return nil, err
		}

		dp := poseP.Point().Sub(poseM.Point())
		j.Set(0, col, dp.X/(2*step))
		j.Set(1, col, dp.Y/(2*step))
		j.Set(2, col, dp.Z/(2*step))

		ovP := poseP.Orientation().OrientationVectorRadians()
		ovM := poseM.Orientation().OrientationVectorRadians()
		j.Set(3, col, (ovP.OX-ovM.OX)/(2*step))
		j.Set(4, col, (ovP.OY-ovM.OY)/(2*step))
		j.Set(5, col, (ovP.OZ-ovM.OZ)/(2*step))
	}
	return j, nil
}
