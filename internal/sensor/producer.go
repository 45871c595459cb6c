// Package sensor implements the producer loops that read external sensors
// and write their values into the shared state.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d2r2/go-logger"

	"github.com/lutzky/sensormon/internal/state"
	isync "github.com/lutzky/sensormon/internal/sync"
)

var lg = logger.NewPackageLogger("sensor", logger.InfoLevel)

// ErrNoData means the source had nothing to read this iteration.
var ErrNoData = errors.New("sensor: no data")

// MalformedError is returned for a sample that could not be parsed. The
// sample is discarded.
type MalformedError struct {
	Input string
	Err   error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("sensor: malformed sample %q: %v", e.Input, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func malformed(input string, format string, args ...interface{}) error {
	return &MalformedError{Input: input, Err: fmt.Errorf(format, args...)}
}

// ApplyFunc writes a computed sample into owned fields. It runs under the
// state guard and must not block.
type ApplyFunc func(tx *state.Tx)

// Sampler performs one external read and computes the values to write.
// Everything that may block happens in Sample, before the guard is taken.
type Sampler interface {
	Sample(ctx context.Context) (ApplyFunc, error)
}

// Producer drives one Sampler at a fixed cadence.
type Producer struct {
	w       *state.Writer
	sampler Sampler
	loop    *isync.Loop
	metrics *Metrics

	readErrs repeatLog
}

// NewProducer builds a producer writing through w. metrics may be nil.
func NewProducer(w *state.Writer, s Sampler, interval time.Duration, metrics *Metrics) *Producer {
	return &Producer{
		w:       w,
		sampler: s,
		loop:    isync.NewLoop(w.Owner(), interval),
		metrics: metrics,
	}
}

// Name returns the owner name of the producer.
func (p *Producer) Name() string {
	return p.w.Owner()
}

// Loop exposes the underlying loop for state inspection.
func (p *Producer) Loop() *isync.Loop {
	return p.loop
}

// Run polls until stop reports not running. Read failures never end the
// loop.
func (p *Producer) Run(ctx context.Context, stop isync.Stopper) error {
	lg.Infof("Producer %q started (interval %v, fields %v)", p.Name(), p.loop.Interval, p.w.Fields())
	err := p.loop.Run(stop, func() bool { return p.Step(ctx) })
	lg.Infof("Producer %q stopped after %d iterations", p.Name(), p.loop.Iterations())
	return err
}

// Step performs a single read-compute-write iteration. It reports whether
// the source delivered anything, malformed samples included.
func (p *Producer) Step(ctx context.Context) bool {
	apply, err := p.sampler.Sample(ctx)
	if err != nil {
		return p.observeError(err)
	}
	if n := p.readErrs.reset(); n > 1 {
		lg.Infof("Producer %q: source recovered after %d failed reads", p.Name(), n)
	}

	if err := p.w.Update(apply); err != nil {
		if errors.Is(err, state.ErrStopped) {
			lg.Debugf("Producer %q: sample dropped, state stopped", p.Name())
			return true
		}
		lg.Errorf("Producer %q: update failed: %v", p.Name(), err)
		return true
	}
	p.metrics.observe(p.Name(), resultOK)
	return true
}

func (p *Producer) observeError(err error) bool {
	var me *MalformedError
	switch {
	case errors.Is(err, ErrNoData), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		lg.Debugf("Producer %q: no data", p.Name())
		p.metrics.observe(p.Name(), resultEmpty)
		return false
	case errors.As(err, &me):
		lg.Warningf("Producer %q: discarding sample: %v", p.Name(), err)
		p.metrics.observe(p.Name(), resultMalformed)
		return true
	default:
		p.metrics.observe(p.Name(), resultError)
		if !p.readErrs.next(err.Error()) {
			lg.Debugf("Producer %q: read failed: %v", p.Name(), err)
		} else if p.readErrs.count > 1 {
			lg.Errorf("Producer %q: read failed %d times in a row: %v", p.Name(), p.readErrs.count, err)
		} else {
			lg.Errorf("Producer %q: read failed: %v", p.Name(), err)
		}
		return false
	}
}

// repeatLogEvery is how often a repeated read error is logged again.
const repeatLogEvery = 100

// repeatLog collapses a run of identical errors into its first occurrence
// and one line every repeatLogEvery repeats.
type repeatLog struct {
	last  string
	count int
}

// next records msg and reports whether it should be logged.
func (r *repeatLog) next(msg string) bool {
	if msg != r.last {
		r.last, r.count = msg, 1
		return true
	}
	r.count++
	return r.count%repeatLogEvery == 0
}

// reset ends the current run and returns its length.
func (r *repeatLog) reset() int {
	n := r.count
	r.last, r.count = "", 0
	return n
}
