package sensor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lutzky/sensormon/internal/state"
)

const (
	FieldDistance      = "distance"
	FieldDistanceDelta = "distance_delta"
	FieldRawValue      = "raw_value"

	StatusOK             = "OK"
	StatusNoData         = "no data"
	StatusConnectionLost = "connection lost"
)

// rawValueMarker introduces an ADC sample in microcontroller debug output,
// e.g. "raw value = 512".
const rawValueMarker = "raw value ="

// UltrasonicSampler parses "<time>,<distance>" lines from a rangefinder.
// A time of 0 means the microcontroller got no echo.
type UltrasonicSampler struct {
	// RawValues also records "raw value = N" debug lines into
	// FieldRawValue. Set before the sampler's fields are claimed.
	RawValues bool

	src       LineSource
	lostAfter time.Duration
	now       func() time.Time

	lastGood time.Time
	prev     int
	havePrev bool
}

// NewUltrasonicSampler reports "connection lost" once no good reading has
// been seen for lostAfter.
func NewUltrasonicSampler(src LineSource, lostAfter time.Duration) *UltrasonicSampler {
	return &UltrasonicSampler{src: src, lostAfter: lostAfter, now: time.Now}
}

// Fields returns the fields an UltrasonicSampler writes.
func (s *UltrasonicSampler) Fields() []string {
	if s.RawValues {
		return []string{FieldDistance, FieldDistanceDelta, FieldRawValue}
	}
	return []string{FieldDistance, FieldDistanceDelta}
}

func (s *UltrasonicSampler) Sample(ctx context.Context) (ApplyFunc, error) {
	line, err := s.src.ReadLine(ctx)
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, ErrNoData
	}
	if s.RawValues && strings.Contains(line, rawValueMarker) {
		return parseRawValue(line)
	}

	parts := strings.Split(line, ",")
	t, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, &MalformedError{Input: line, Err: err}
	}

	now := s.now()

	if t == 0 {
		status := StatusNoData
		if s.lastGood.IsZero() || now.Sub(s.lastGood) > s.lostAfter {
			status = StatusConnectionLost
		}
		return func(tx *state.Tx) {
			tx.SetStatus(FieldDistance, status)
		}, nil
	}

	if len(parts) < 2 {
		return nil, malformed(line, "missing distance")
	}
	distance, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, &MalformedError{Input: line, Err: err}
	}

	delta, haveDelta := 0, s.havePrev
	if haveDelta {
		delta = distance - s.prev
	}
	s.prev, s.havePrev = distance, true
	s.lastGood = now

	return func(tx *state.Tx) {
		tx.Set(FieldDistance, float64(distance))
		tx.SetStatus(FieldDistance, StatusOK)
		if haveDelta {
			tx.Set(FieldDistanceDelta, float64(delta))
		}
	}, nil
}

func parseRawValue(line string) (ApplyFunc, error) {
	parts := strings.Split(line, "=")
	v, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return nil, &MalformedError{Input: line, Err: err}
	}
	return func(tx *state.Tx) {
		tx.Set(FieldRawValue, float64(v))
	}, nil
}
