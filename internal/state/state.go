package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrStopped is returned by Writer.Update once Stop has been called.
	ErrStopped = errors.New("state: stopped")

	// ErrAlreadyOwned is returned by Claim when a field already has an owner.
	ErrAlreadyOwned = errors.New("state: field already owned")
)

// Field is one sensor value as last written by its owner.
type Field struct {
	Value  float64
	Status string

	// Updated is the time Value was last set. Zero means no data ever.
	Updated time.Time
}

// Shared is the state container shared by producers and the monitor. All
// fields are guarded by a single mutex; the running flag is not.
type Shared struct {
	mu     sync.Mutex
	fields map[string]Field
	owners map[string]string

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// New returns a running Shared with no fields.
func New() *Shared {
	s := &Shared{
		fields: make(map[string]Field),
		owners: make(map[string]string),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	s.running.Store(true)
	return s
}

// Running reports whether Stop has not yet been called.
func (s *Shared) Running() bool {
	return s.running.Load()
}

// Done is closed by Stop.
func (s *Shared) Done() <-chan struct{} {
	return s.done
}

// Stop requests shutdown. It does not take the guard, so an Update already
// holding it completes; later updates fail with ErrStopped.
func (s *Shared) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.done)
	})
}

// Claim registers owner as the only writer of fields.
func (s *Shared) Claim(owner string, fields ...string) (*Writer, error) {
	if owner == "" {
		return nil, errors.New("state: owner required")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("state: owner %q claims no fields", owner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fields {
		if prev, ok := s.owners[f]; ok {
			return nil, fmt.Errorf("%w: %q by %q, wanted by %q", ErrAlreadyOwned, f, prev, owner)
		}
	}

	owned := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		s.owners[f] = owner
		owned[f] = struct{}{}
	}
	return &Writer{s: s, owner: owner, owned: owned}, nil
}

// Snapshot copies every field while holding the guard.
func (s *Shared) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]Field, len(s.fields))
	for k, v := range s.fields {
		fields[k] = v
	}
	return Snapshot{
		At:      s.now(),
		Running: s.running.Load(),
		Fields:  fields,
	}
}

// Owners returns the owner of each claimed field.
func (s *Shared) Owners() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.owners))
	for k, v := range s.owners {
		out[k] = v
	}
	return out
}

// Writer is the write handle of one producer.
type Writer struct {
	s     *Shared
	owner string
	owned map[string]struct{}
}

// Owner returns the name passed to Claim.
func (w *Writer) Owner() string {
	return w.owner
}

// Fields returns the claimed field names, sorted.
func (w *Writer) Fields() []string {
	out := make([]string, 0, len(w.owned))
	for f := range w.owned {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Update runs fn while holding the guard. fn must not block.
func (w *Writer) Update(fn func(tx *Tx)) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if !w.s.running.Load() {
		return ErrStopped
	}

	fn(&Tx{w: w, now: w.s.now()})
	return nil
}

// Tx is the view of the shared fields a Writer gets inside Update. It is
// only valid for the duration of the call.
type Tx struct {
	w   *Writer
	now time.Time
}

func (tx *Tx) mustOwn(name string) {
	if _, ok := tx.w.owned[name]; !ok {
		panic(fmt.Sprintf("state: field %q is not owned by %q", name, tx.w.owner))
	}
}

// Get returns the current value of an owned field.
func (tx *Tx) Get(name string) Field {
	tx.mustOwn(name)
	return tx.w.s.fields[name]
}

// Set stores a new value for an owned field and marks it updated.
func (tx *Tx) Set(name string, value float64) {
	tx.mustOwn(name)
	f := tx.w.s.fields[name]
	f.Value = value
	f.Updated = tx.now
	tx.w.s.fields[name] = f
}

// SetStatus changes the status of an owned field without touching its value.
func (tx *Tx) SetStatus(name, status string) {
	tx.mustOwn(name)
	f := tx.w.s.fields[name]
	f.Status = status
	tx.w.s.fields[name] = f
}
