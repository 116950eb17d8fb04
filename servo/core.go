package servo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils"
)

// Core is the servo controller: the periodic tick that ingests the latest
// commands and joint state and produces an outgoing joint trajectory point.
// Core owns its filters, previous-velocity state, and transform cache; the
// KinematicsProvider is a borrow-only dependency supplied at construction,
// exactly as xArm borrows a net.Conn and never owns the robot's firmware.
type Core struct {
	cfg      Config
	provider KinematicsProvider
	logger   logging.Logger
	throttle *throttledLogger

	inputs *latestInputs

	jointNames []string
	n          int

	started       atomic.Bool
	paused        atomic.Bool
	stopRequested atomic.Bool

	// Everything below is mutated only from the tick goroutine.
	status              StatusCode
	prevJointVelocity   []float64
	filters             *filterBank
	tfPlanningToCmd     spatialmath.Pose
	haveTf              bool
	waitForFirstCommand bool
	zeroVelocityCount   int
	internalPositions   []float64
	internalVelocities  []float64
	lastSentCommand     OutgoingCommand
	haveLastSentCommand bool

	runMu  sync.Mutex
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCore constructs a Core. provider must not be nil; cfg must validate.
func NewCore(cfg Config, provider KinematicsProvider, logger logging.Logger) (*Core, error) {
	if err := cfg.Validate("servo config"); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, errors.New("servo: KinematicsProvider must not be nil")
	}
	names := provider.JointNames()
	n := len(names)
	if n == 0 {
		return nil, errors.New("servo: kinematics provider reports zero active joints")
	}

	c := &Core{
		cfg:                 cfg,
		provider:            provider,
		logger:              logger,
		throttle:            newThrottledLogger(logger, 30*time.Second),
		inputs:              newLatestInputs(),
		jointNames:          names,
		n:                   n,
		prevJointVelocity:   make([]float64, n),
		filters:             newFilterBank(n, cfg.LowPassFilterCoeff),
		waitForFirstCommand: true,
		internalPositions:   make([]float64, n),
		internalVelocities:  make([]float64, n),
	}
	return c, nil
}

// HandleJointState ingests a new joint state snapshot. Safe to call from any
// goroutine.
func (c *Core) HandleJointState(js JointState) {
	c.inputs.setJointState(js)
}

// HandleTwist ingests a new end-effector velocity command. Safe to call
// from any goroutine. Invalid commands are dropped with a rate-limited
// warning.
func (c *Core) HandleTwist(t TwistCmd) {
	if !validateTwist(t, c.cfg.CommandInType) {
		c.throttle.warn("bad_twist", "servo: rejecting invalid twist command")
		return
	}
	c.inputs.setTwist(t, t.nonZero())
}

// HandleJointJog ingests a new direct joint-velocity command. Safe to call
// from any goroutine.
func (c *Core) HandleJointJog(j JointJogCmd) {
	if !validateJointJog(j) {
		c.throttle.warn("bad_jog", "servo: rejecting invalid joint jog command")
		return
	}
	c.inputs.setJointJog(j, j.nonZero())
}

// SetCollisionVelocityScale ingests the latest scale in [0,1] from the
// external collision-distance provider. Out-of-range values are clamped.
func (c *Core) SetCollisionVelocityScale(scale float64) {
	if scale < 0 {
		scale = 0
	}
	if scale > 1 {
		scale = 1
	}
	c.inputs.setCollisionVelocityScale(scale)
}

// SetControlDimensions implements the change_control_dimensions service:
// always succeeds, visible starting the next tick.
func (c *Core) SetControlDimensions(d [6]bool) bool {
	c.inputs.setControlDims(dims6(d))
	return true
}

// SetDriftDimensions implements the change_drift_dimensions service.
func (c *Core) SetDriftDimensions(d [6]bool) bool {
	c.inputs.setDriftDims(dims6(d))
	return true
}

// WaitForInitialized blocks, cooperatively, until a joint state has been
// received at least once or ctx is done, whichever comes first.
func (c *Core) WaitForInitialized(ctx context.Context) bool {
	for {
		if c.inputs.snapshot().haveJointState {
			return true
		}
		if !utils.SelectContextOrWait(ctx, 10*time.Millisecond) {
			return false
		}
	}
}

// Start refuses if no joint state has ever been
// received, otherwise seeds last_sent_command with the current positions
// and zero velocities, clears stop_requested, and arms the periodic tick.
func (c *Core) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	snap := c.inputs.snapshot()
	if !snap.haveJointState {
		return errors.New("servo: cannot start, no joint state has ever been received")
	}
	if c.started.Load() {
		return nil
	}

	positions := c.mapPositions(snap.jointState, make([]float64, c.n))
	c.filters.reset(positions)
	c.internalPositions = positions
	c.internalVelocities = make([]float64, c.n)
	c.prevJointVelocity = make([]float64, c.n)
	c.lastSentCommand = c.composeOutgoing(positions, make([]float64, c.n))
	c.haveLastSentCommand = true
	c.waitForFirstCommand = true
	c.zeroVelocityCount = 0

	c.stopRequested.Store(false)
	c.stopCh = make(chan struct{})
	c.ticker = time.NewTicker(c.cfg.PublishPeriod)
	c.started.Store(true)

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop ensures the next scheduled tick bails before
// publishing, and the ticking goroutine is torn down.
func (c *Core) Stop(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if !c.started.Load() {
		return nil
	}
	c.stopRequested.Store(true)
	close(c.stopCh)
	c.wg.Wait()
	c.started.Store(false)
	return nil
}

// Pause toggles whether the tick keeps running but skips servo output.
func (c *Core) Pause(pause bool) error {
	c.paused.Store(pause)
	return nil
}

func (c *Core) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.ticker.C:
			if c.stopRequested.Load() {
				return
			}
			c.Tick(ctx)
		}
	}
}
