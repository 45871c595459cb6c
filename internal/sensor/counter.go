package sensor

import (
	"context"

	"github.com/lutzky/sensormon/internal/state"
)

// CounterSampler adds Step to its field on every iteration. It stands in
// for real hardware in demo mode.
type CounterSampler struct {
	Field string
	Step  float64

	n float64
}

func (s *CounterSampler) Sample(_ context.Context) (ApplyFunc, error) {
	s.n += s.Step
	v := s.n
	return func(tx *state.Tx) {
		tx.Set(s.Field, v)
	}, nil
}
