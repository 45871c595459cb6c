package state

import (
	"sort"
	"time"
)

// Freshness describes how recent a field's data is at snapshot time.
type Freshness int

const (
	// NoData means the field was never written.
	NoData Freshness = iota
	// Fresh means the field was written within the staleness threshold.
	Fresh
	// Stale means data exists but is older than the threshold.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "no data"
	}
}

// Snapshot is a copy of the shared fields taken at a single instant.
type Snapshot struct {
	At      time.Time
	Running bool
	Fields  map[string]Field
}

// Get returns a field and whether it has ever been written.
func (s Snapshot) Get(name string) (Field, bool) {
	f, ok := s.Fields[name]
	return f, ok && !f.Updated.IsZero()
}

// Age returns how long before the snapshot the field was last set. The
// second result is false if it never was.
func (s Snapshot) Age(name string) (time.Duration, bool) {
	f, ok := s.Get(name)
	if !ok {
		return 0, false
	}
	return s.At.Sub(f.Updated), true
}

// Freshness classifies a field against staleAfter. A zero staleAfter never
// reports Stale.
func (s Snapshot) Freshness(name string, staleAfter time.Duration) Freshness {
	age, ok := s.Age(name)
	if !ok {
		return NoData
	}
	if staleAfter > 0 && age > staleAfter {
		return Stale
	}
	return Fresh
}

// Names returns the field names in the snapshot, sorted.
func (s Snapshot) Names() []string {
	out := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
