package servo

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// StatusCode is the exact set of status codes the servo core can publish,
// one per tick, on the configured status topic.
type StatusCode int8

// The exact set of status codes, per spec.
const (
	NoWarning StatusCode = iota
	DecelerateForSingularity
	HaltForSingularity
	DecelerateForCollision
	HaltForCollision
	JointBound
)

// String returns a human-readable name for the status code, used in logs.
func (s StatusCode) String() string {
	switch s {
	case NoWarning:
		return "NO_WARNING"
	case DecelerateForSingularity:
		return "DECELERATE_FOR_SINGULARITY"
	case HaltForSingularity:
		return "HALT_FOR_SINGULARITY"
	case DecelerateForCollision:
		return "DECELERATE_FOR_COLLISION"
	case HaltForCollision:
		return "HALT_FOR_COLLISION"
	case JointBound:
		return "JOINT_BOUND"
	default:
		return "UNKNOWN"
	}
}

// throttledLogger rate-limits repeated warnings to roughly once per period
// per distinct key, so a misbehaving command stream doesn't flood the log.
// This mirrors the "rate-limited logging ~every 30s" requirement without
// pulling in a dedicated limiter dependency, since nothing in the example
// pack ships a logger-integrated one (see DESIGN.md).
type throttledLogger struct {
	logger logging.Logger
	period time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func newThrottledLogger(logger logging.Logger, period time.Duration) *throttledLogger {
	return &throttledLogger{
		logger: logger,
		period: period,
		last:   map[string]time.Time{},
	}
}

func (t *throttledLogger) warn(key, msg string, args ...interface{}) {
	t.mu.Lock()
	last, ok := t.last[key]
	now := time.Now()
	if ok && now.Sub(last) < t.period {
		t.mu.Unlock()
		return
	}
	t.last[key] = now
	t.mu.Unlock()
	t.logger.Warnf(msg, args...)
}
