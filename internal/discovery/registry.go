package discovery

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/trackerlink-core/internal/notify"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Policy decides what Put does with a component name that is already pending.
type Policy string

const (
	// PolicyOverwrite replaces the pending descriptor wholesale.
	PolicyOverwrite Policy = "overwrite"

	// PolicyReject keeps the pending descriptor and returns ErrAlreadyPending.
	PolicyReject Policy = "reject"
)

// ParsePolicy converts a configuration value into a Policy.
// The empty string selects PolicyOverwrite.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// Registry holds discovered trackers until a pairing flow consumes them.
//
// It is volatile: created empty at startup, never persisted, discarded at
// shutdown. Every descriptor going in or coming out is copied, so callers
// never share memory with the registry.
//
// All public methods are safe for concurrent use. Mutations are serialised
// by one lock; the notifier is always called after that lock is released,
// so two racing mutations may reach a notifier out of order. Each signal
// and removal carries the sequence number its mutation took under the
// lock; consumers order events for a component by Seq, not arrival.
type Registry struct {
	mu      sync.RWMutex
	pending map[string]*tracker.Descriptor
	seqs    map[string]uint64 // Seq of the Put that stored each entry
	seq     uint64

	policy   Policy
	notifier notify.Notifier
	logger   Logger
	now      func() time.Time
}

// NewRegistry creates an empty registry applying policy on re-discovery.
// An empty policy means PolicyOverwrite.
func NewRegistry(policy Policy) *Registry {
	if policy == "" {
		policy = PolicyOverwrite
	}
	return &Registry{
		pending:  make(map[string]*tracker.Descriptor),
		seqs:     make(map[string]uint64),
		policy:   policy,
		notifier: notify.Nop{},
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetNotifier sets the collaborator told about every Put and effective
// Remove. Call before the registry is shared.
func (r *Registry) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.Nop{}
	}
	r.notifier = n
}

// SetLogger sets the logger for the registry. Call before the registry is shared.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Policy returns the re-discovery policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Put stores d under its component name and emits a discovery signal.
//
// Under PolicyOverwrite an existing entry is replaced, never merged.
// Under PolicyReject an existing entry is kept and ErrAlreadyPending returned.
// d must already be validated; Put only checks that it has a key.
func (r *Registry) Put(d *tracker.Descriptor) error {
	if d == nil || d.ComponentName == "" {
		return ErrNilDescriptor
	}
	stored := d.Clone()

	r.mu.Lock()
	_, replaced := r.pending[stored.ComponentName]
	if replaced && r.policy == PolicyReject {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyPending, stored.ComponentName)
	}
	r.pending[stored.ComponentName] = stored
	r.seq++
	seq := r.seq
	r.seqs[stored.ComponentName] = seq
	count := len(r.pending)
	r.mu.Unlock()

	r.logger.Info("tracker discovered",
		"component_name", stored.ComponentName,
		"entities", len(stored.Entities),
		"replaced", replaced,
		"pending", count,
	)
	signal := notify.NewSignal(stored)
	signal.Seq = seq
	r.notifier.TrackerDiscovered(signal)
	return nil
}

// Get returns a copy of the pending descriptor for componentName.
func (r *Registry) Get(componentName string) (*tracker.Descriptor, bool) {
	r.mu.RLock()
	d, ok := r.pending[componentName]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// List returns copies of every pending descriptor, sorted by component name.
// The result is a snapshot taken under one read lock.
func (r *Registry) List() []*tracker.Descriptor {
	r.mu.RLock()
	out := make([]*tracker.Descriptor, 0, len(r.pending))
	for _, d := range r.pending {
		out = append(out, d.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ComponentName < out[j].ComponentName
	})
	return out
}

// Signals returns a discovery signal for every pending descriptor, sorted
// by component name. Each carries the Seq of the Put that stored it.
func (r *Registry) Signals() []notify.Signal {
	r.mu.RLock()
	out := make([]notify.Signal, 0, len(r.pending))
	for name, d := range r.pending {
		s := notify.NewSignal(d)
		s.Seq = r.seqs[name]
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ComponentName < out[j].ComponentName
	})
	return out
}

// Remove deletes componentName. It is idempotent and reports whether this
// call removed an entry, so of two racing callers exactly one sees true.
func (r *Registry) Remove(componentName string) bool {
	r.mu.Lock()
	_, ok := r.pending[componentName]
	var seq uint64
	if ok {
		delete(r.pending, componentName)
		delete(r.seqs, componentName)
		r.seq++
		seq = r.seq
	}
	count := len(r.pending)
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.logger.Info("tracker removed from discovery", "component_name", componentName, "pending", count)
	r.notifier.TrackerRemoved(notify.Removal{
		ComponentName: componentName,
		RemovedAt:     r.now().UTC(),
		Seq:           seq,
	})
	return true
}

// Count returns the number of pending descriptors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Clear discards every pending descriptor without notifying.
// Used at shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.pending)
	r.pending = make(map[string]*tracker.Descriptor)
	r.seqs = make(map[string]uint64)
	r.mu.Unlock()

	if n > 0 {
		r.logger.Debug("discovery registry cleared", "discarded", n)
	}
}
