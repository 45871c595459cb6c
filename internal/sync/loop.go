package sync

import (
	"errors"
	"sync/atomic"
	"time"
)

// Stopper is the shutdown signal a Loop observes. Running is checked at the
// top of every iteration; Done cuts the pacing delay short.
type Stopper interface {
	Running() bool
	Done() <-chan struct{}
}

// ErrLoopFinished is returned when Run is called on a loop that has already
// run. Restarting requires a new Loop.
var ErrLoopFinished = errors.New("sync: loop already ran")

// LoopState moves from Idle to Running to Stopped and never back.
type LoopState int32

const (
	Idle LoopState = iota
	Running
	Stopped
)

func (s LoopState) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// DefaultIdleBackoff is how long a loop without an interval waits after an
// iteration that made no progress.
const DefaultIdleBackoff = 50 * time.Millisecond

// Loop runs a function at a fixed cadence until its Stopper says otherwise.
type Loop struct {
	Name     string
	Interval time.Duration

	// IdleBackoff applies when Interval is not positive and f reports no
	// progress.
	IdleBackoff time.Duration

	state      atomic.Int32
	iterations atomic.Uint64
}

// NewLoop returns an idle loop.
func NewLoop(name string, interval time.Duration) *Loop {
	return &Loop{Name: name, Interval: interval, IdleBackoff: DefaultIdleBackoff}
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// Iterations returns how many times f has been called.
func (l *Loop) Iterations() uint64 {
	return l.iterations.Load()
}

// Run calls f, then waits Interval, until s stops running. Stop is only
// observed between iterations; f is never interrupted. f reports whether
// the iteration made progress. With a non-positive Interval the loop goes
// straight on after progress and waits IdleBackoff otherwise.
func (l *Loop) Run(s Stopper, f func() bool) error {
	if !l.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrLoopFinished
	}
	defer l.state.Store(int32(Stopped))

	for s.Running() {
		progress := f()
		l.iterations.Add(1)

		wait := l.Interval
		if wait <= 0 {
			if progress || l.IdleBackoff <= 0 {
				select {
				case <-s.Done():
					return nil
				default:
				}
				continue
			}
			wait = l.IdleBackoff
		}

		t := time.NewTimer(wait)
		select {
		case <-s.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
	return nil
}
