package sensor

import (
	"context"
	"strconv"

	"github.com/lutzky/sensormon/internal/state"
)

const (
	FieldPAPI    = "papi"
	FieldPAPIRaw = "papi_raw"

	StatusJump = "jump"
)

// IndicatorConfig holds the thresholds of the PAPI jump filter. The
// defaults match the one known installation and carry no further meaning.
type IndicatorConfig struct {
	// Passthrough values are always accepted as-is.
	Passthrough []int
	// MaxStep is the largest accepted change between consecutive raw values.
	MaxStep int
	// JumpValue replaces a raw value that moved by more than MaxStep.
	JumpValue int
	// Initial is the previous value assumed before the first sample.
	Initial int
}

// DefaultIndicatorConfig returns the thresholds used when none are
// configured.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		Passthrough: []int{5},
		MaxStep:     1,
		JumpValue:   6,
	}
}

// IndicatorFilter snaps implausible jumps between consecutive readings to
// a sentinel value.
type IndicatorFilter struct {
	cfg  IndicatorConfig
	prev int
}

func NewIndicatorFilter(cfg IndicatorConfig) *IndicatorFilter {
	return &IndicatorFilter{cfg: cfg, prev: cfg.Initial}
}

// Apply returns the value to publish for raw and whether it was a jump.
// The previous value always advances to raw.
func (f *IndicatorFilter) Apply(raw int) (int, bool) {
	defer func() { f.prev = raw }()

	for _, p := range f.cfg.Passthrough {
		if raw == p {
			return raw, false
		}
	}

	step := raw - f.prev
	if step < 0 {
		step = -step
	}
	if step <= f.cfg.MaxStep {
		return raw, false
	}
	return f.cfg.JumpValue, true
}

// PAPISampler reads integer indicator values from a LineSource.
type PAPISampler struct {
	src    LineSource
	filter *IndicatorFilter
}

func NewPAPISampler(src LineSource, cfg IndicatorConfig) *PAPISampler {
	return &PAPISampler{src: src, filter: NewIndicatorFilter(cfg)}
}

// Fields returns the fields a PAPISampler writes.
func (s *PAPISampler) Fields() []string {
	return []string{FieldPAPI, FieldPAPIRaw}
}

func (s *PAPISampler) Sample(ctx context.Context) (ApplyFunc, error) {
	line, err := s.src.ReadLine(ctx)
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, ErrNoData
	}

	raw, err := strconv.Atoi(line)
	if err != nil {
		return nil, &MalformedError{Input: line, Err: err}
	}

	value, jumped := s.filter.Apply(raw)
	status := StatusOK
	if jumped {
		status = StatusJump
	}

	return func(tx *state.Tx) {
		tx.Set(FieldPAPIRaw, float64(raw))
		tx.Set(FieldPAPI, float64(value))
		tx.SetStatus(FieldPAPI, status)
	}, nil
}
