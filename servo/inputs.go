package servo

import (
	"sync"
	"time"
)

// latestInputs is the single mutex-guarded structure holding everything
// mutated by asynchronous handler goroutines and read, as a snapshot, by
// the tick goroutine at the start of every tick. This is
// the only lock guarding state shared between handlers and the tick (Core's
// runMu only serializes Start/Stop, and throttledLogger has its own small
// lock), and it is held only for O(1) copies, never across kinematics, SVD,
// logging, or publishing.
type latestInputs struct {
	mu sync.Mutex

	jointState    JointState
	haveJointState bool

	twist        TwistCmd
	twistNonZero bool
	twistStamp   time.Time

	jointJog        JointJogCmd
	jointJogNonZero bool
	jointJogStamp   time.Time

	collisionVelocityScale float64

	controlDims dims6
	driftDims   dims6
}

func newLatestInputs() *latestInputs {
	return &latestInputs{
		collisionVelocityScale: 1,
		controlDims:            allTrue(),
		driftDims:              dims6{},
	}
}

func (li *latestInputs) setJointState(js JointState) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.jointState = js
	li.haveJointState = true
}

func (li *latestInputs) setTwist(t TwistCmd, nonZero bool) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.twist = t
	li.twistNonZero = nonZero
	li.twistStamp = t.Stamp
}

func (li *latestInputs) setJointJog(j JointJogCmd, nonZero bool) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.jointJog = j
	li.jointJogNonZero = nonZero
	li.jointJogStamp = j.Stamp
}

func (li *latestInputs) setCollisionVelocityScale(scale float64) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.collisionVelocityScale = scale
}

func (li *latestInputs) setControlDims(d dims6) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.controlDims = d
}

func (li *latestInputs) setDriftDims(d dims6) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.driftDims = d
}

// inputsSnapshot is an immutable, tick-local copy of latestInputs, taken
// under the mutex and then used without holding any lock.
type inputsSnapshot struct {
	jointState     JointState
	haveJointState bool

	twist        TwistCmd
	twistNonZero bool
	twistStamp   time.Time

	jointJog        JointJogCmd
	jointJogNonZero bool
	jointJogStamp   time.Time

	collisionVelocityScale float64

	controlDims dims6
	driftDims   dims6
}

func (li *latestInputs) snapshot() inputsSnapshot {
	li.mu.Lock()
	defer li.mu.Unlock()
	return inputsSnapshot{
		jointState:             li.jointState,
		haveJointState:         li.haveJointState,
		twist:                  li.twist,
		twistNonZero:           li.twistNonZero,
		twistStamp:             li.twistStamp,
		jointJog:               li.jointJog,
		jointJogNonZero:        li.jointJogNonZero,
		jointJogStamp:          li.jointJogStamp,
		collisionVelocityScale: li.collisionVelocityScale,
		controlDims:            li.controlDims,
		driftDims:              li.driftDims,
	}
}

// stale reports whether stamp is older than now by at least timeout. A
// zero-valued stamp (unset) is treated as present but stamp-less, i.e.
// never stale by age.
func stale(now, stamp time.Time, timeout time.Duration) bool {
	if stamp.IsZero() {
		return false
	}
	return now.Sub(stamp) >= timeout
}
