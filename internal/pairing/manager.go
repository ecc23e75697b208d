package pairing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/trackerlink-core/internal/entry"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Registry is the part of the discovery registry a flow uses.
type Registry interface {
	Get(componentName string) (*tracker.Descriptor, bool)
	List() []*tracker.Descriptor
	Remove(componentName string) bool
	Put(d *tracker.Descriptor) error
}

// Guard answers whether a tracker already has a configuration entry.
type Guard interface {
	IsAlreadyConfigured(ctx context.Context, domain, componentName string) (bool, error)
}

// EntryCreator persists confirmed trackers.
type EntryCreator interface {
	Create(ctx context.Context, req entry.CreateRequest) (*entry.Entry, error)
}

// Observer is told about every flow that reaches a terminal state.
type Observer interface {
	FlowFinished(ctx context.Context, s Session)
}

// Logger defines the logging interface used by the Manager.
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

// commitTimeout bounds the entry insert once a tracker has left the registry.
const commitTimeout = 30 * time.Second

// Options configures a Manager.
type Options struct {
	// Domain prefixes every unique id ("{domain}_{component}").
	Domain string

	// RestoreOnCreationFailure re-adds a confirmed tracker to the registry
	// when the entry store rejects it.
	RestoreOnCreationFailure bool

	// Timeout aborts a flow left waiting for the operator. Zero disables it.
	Timeout time.Duration

	// Retention is how long a finished flow stays readable through Get.
	// Zero forgets it as soon as it finishes.
	Retention time.Duration
}

// flow is one live session with its own lock. The lock serialises every
// event for the flow; different flows never contend. Readers use view,
// which is republished after each transition and never waits on mu.
type flow struct {
	mu      sync.Mutex
	session Session
	timeout *time.Timer
	expiry  *time.Timer

	view atomic.Pointer[Session]
}

// publish stores a copy of the current session for readers. f.mu must be held.
func (f *flow) publish() {
	s := f.session.clone()
	f.view.Store(&s)
}

func (f *flow) snapshot() Session {
	return f.view.Load().clone()
}

// Manager drives pairing flows against the registry, guard and entry store.
//
// Each call that changes a flow holds that flow's lock for the whole
// transition including its effects, so concurrent calls for the same flow
// are applied one after the other. Get and List read the last published
// session and do not wait for a transition in progress. The manager lock
// only guards the flow table and is never held while a flow is being driven.
type Manager struct {
	mu     sync.RWMutex
	flows  map[string]*flow
	closed bool

	machine   Machine
	opts      Options
	registry  Registry
	guard     Guard
	store     EntryCreator
	observers []Observer
	logger    Logger
	now       func() time.Time
	newID     func() string
}

// NewManager creates a pairing manager.
func NewManager(opts Options, registry Registry, guard Guard, store EntryCreator) *Manager {
	return &Manager{
		flows:    make(map[string]*flow),
		machine:  Machine{RestoreOnCreationFailure: opts.RestoreOnCreationFailure},
		opts:     opts,
		registry: registry,
		guard:    guard,
		store:    store,
		logger:   noopLogger{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// AddObserver registers an observer of finished flows. Call before Start.
func (m *Manager) AddObserver(o Observer) {
	m.observers = append(m.observers, o)
}

// Start creates a flow. With a bound component name the flow looks that
// tracker up and, if it is pending and unconfigured, goes straight to
// confirmation. Without one it offers every pending tracker.
//
// The returned session may already be terminal (not_found,
// already_configured, no_discovered_trackers). An error is returned only
// when the guard could not be queried; no flow is created then.
func (m *Manager) Start(ctx context.Context, bound string) (Session, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return Session{}, ErrManagerClosed
	}

	var begin Begin
	if bound != "" {
		lookup, err := m.lookup(ctx, bound)
		if err != nil {
			return Session{}, err
		}
		begin.Lookup = lookup
	} else {
		begin.Candidates = m.registry.List()
	}

	now := m.now().UTC()
	s := NewSession(m.newID(), m.opts.Domain, bound)
	s.CreatedAt = now
	s.UpdatedAt = now

	f := &flow{session: s}
	f.publish()
	f.mu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		f.mu.Unlock()
		return Session{}, ErrManagerClosed
	}
	m.flows[s.FlowID] = f
	m.mu.Unlock()

	finished, err := m.apply(ctx, f, begin)
	if err == nil && !f.session.State.Terminal() && m.opts.Timeout > 0 {
		f.timeout = time.AfterFunc(m.opts.Timeout, func() { m.expire(f) })
	}
	out := f.session.clone()
	f.mu.Unlock()

	m.logger.Info("pairing flow started",
		"flow_id", out.FlowID,
		"bound", out.BoundComponentName,
		"state", out.State,
	)
	m.notify(ctx, finished)
	return out, err
}

// Get returns a copy of the flow's session as of its last transition.
func (m *Manager) Get(flowID string) (Session, error) {
	f, err := m.flow(flowID)
	if err != nil {
		return Session{}, err
	}
	return f.snapshot(), nil
}

// List returns copies of every known session, oldest first.
func (m *Manager) List() []Session {
	m.mu.RLock()
	flows := make([]*flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	m.mu.RUnlock()

	out := make([]Session, 0, len(flows))
	for _, f := range flows {
		out = append(out, f.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].FlowID < out[j].FlowID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Select picks a candidate in a generic flow and runs the unique-id check.
func (m *Manager) Select(ctx context.Context, flowID, componentName string) (Session, error) {
	f, err := m.flow(flowID)
	if err != nil {
		return Session{}, err
	}

	f.mu.Lock()
	ev := Select{ComponentName: componentName}
	if f.session.State == StateAwaitingSelection && f.session.offers(componentName) {
		if ev.Lookup, err = m.lookup(ctx, componentName); err != nil {
			f.mu.Unlock()
			return Session{}, err
		}
	}
	finished, err := m.apply(ctx, f, ev)
	out := f.session.clone()
	f.mu.Unlock()

	m.notify(ctx, finished)
	return out, err
}

// Confirm accepts the selected tracker. The unique-id check is evaluated
// again, then the tracker is removed from the registry and the entry
// created. Losing a race against another flow for the same tracker ends
// this flow with not_found.
func (m *Manager) Confirm(ctx context.Context, flowID string) (Session, error) {
	f, err := m.flow(flowID)
	if err != nil {
		return Session{}, err
	}

	f.mu.Lock()
	var ev Confirm
	if f.session.State == StateAwaitingConfirmation {
		ev.Configured, err = m.guard.IsAlreadyConfigured(ctx, m.opts.Domain, f.session.Selected.ComponentName)
		if err != nil {
			f.mu.Unlock()
			return Session{}, fmt.Errorf("checking unique id: %w", err)
		}
	}
	finished, err := m.apply(ctx, f, ev)
	out := f.session.clone()
	f.mu.Unlock()

	m.notify(ctx, finished)
	return out, err
}

// Cancel aborts a waiting flow. The registry is not touched.
func (m *Manager) Cancel(ctx context.Context, flowID string) (Session, error) {
	f, err := m.flow(flowID)
	if err != nil {
		return Session{}, err
	}

	f.mu.Lock()
	finished, err := m.apply(ctx, f, Cancel{})
	out := f.session.clone()
	f.mu.Unlock()

	m.notify(ctx, finished)
	return out, err
}

// Count returns the number of known flows, finished ones included.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flows)
}

// Close stops every timer and forgets all flows. Waiting flows are dropped
// without an outcome, like the registry they refer to.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	flows := m.flows
	m.flows = make(map[string]*flow)
	m.mu.Unlock()

	for _, f := range flows {
		f.mu.Lock()
		stopTimer(f.timeout)
		stopTimer(f.expiry)
		f.mu.Unlock()
	}
	if len(flows) > 0 {
		m.logger.Debug("pairing flows discarded", "count", len(flows))
	}
}

func (m *Manager) flow(flowID string) (*flow, error) {
	m.mu.RLock()
	f, ok := m.flows[flowID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	return f, nil
}

func (m *Manager) lookup(ctx context.Context, componentName string) (Lookup, error) {
	d, ok := m.registry.Get(componentName)
	if !ok {
		return Lookup{}, nil
	}
	configured, err := m.guard.IsAlreadyConfigured(ctx, m.opts.Domain, componentName)
	if err != nil {
		return Lookup{}, fmt.Errorf("checking unique id: %w", err)
	}
	return Lookup{Descriptor: d, Configured: configured}, nil
}

// apply feeds ev to the machine and carries out the resulting effects,
// feeding their results back in until none remain. f.mu must be held.
// It returns the finished session when the flow reached a terminal state.
func (m *Manager) apply(ctx context.Context, f *flow, ev Event) (*Session, error) {
	for ev != nil {
		next, effects, err := m.machine.Transition(f.session, ev)
		if err != nil {
			return nil, err
		}
		next.UpdatedAt = m.now().UTC()
		f.session = next
		f.publish()

		ev = nil
		for _, eff := range effects {
			switch e := eff.(type) {
			case RemoveDescriptor:
				ev = Removed{OK: m.registry.Remove(e.ComponentName)}

			case CreateEntry:
				created, err := m.create(ctx, e.Request)
				if err != nil {
					m.logger.Warn("configuration entry creation failed",
						"flow_id", f.session.FlowID,
						"unique_id", e.Request.UniqueID,
						"error", err,
					)
					ev = Created{Err: err}
				} else {
					ev = Created{EntryID: created.ID}
				}

			case RestoreDescriptor:
				if err := m.registry.Put(e.Descriptor); err != nil {
					m.logger.Warn("restoring descriptor failed",
						"component_name", e.Descriptor.ComponentName,
						"error", err,
					)
				}

			case Finish:
				return m.finish(f), nil
			}
		}
	}
	return nil, nil
}

// create inserts the entry detached from the caller's cancellation: the
// tracker is already out of the registry, so only the store may fail it.
func (m *Manager) create(ctx context.Context, req entry.CreateRequest) (*entry.Entry, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	return m.store.Create(ctx, req)
}

// finish stops the timeout and schedules the flow to be forgotten.
// f.mu must be held.
func (m *Manager) finish(f *flow) *Session {
	stopTimer(f.timeout)
	id := f.session.FlowID
	if m.opts.Retention > 0 {
		f.expiry = time.AfterFunc(m.opts.Retention, func() { m.forget(id) })
	} else {
		m.forget(id)
	}

	m.logger.Info("pairing flow finished",
		"flow_id", id,
		"component_name", f.session.ComponentName(),
		"state", f.session.State,
		"reason", f.session.Reason,
	)
	out := f.session.clone()
	return &out
}

func (m *Manager) forget(flowID string) {
	m.mu.Lock()
	delete(m.flows, flowID)
	m.mu.Unlock()
}

// expire is the timeout callback for f.
func (m *Manager) expire(f *flow) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return
	}

	f.mu.Lock()
	if f.session.State.Terminal() {
		f.mu.Unlock()
		return
	}
	id := f.session.FlowID
	finished, err := m.apply(context.Background(), f, Timeout{})
	f.mu.Unlock()

	if err != nil {
		m.logger.Debug("pairing flow timeout ignored", "flow_id", id, "error", err)
		return
	}
	m.notify(context.Background(), finished)
}

// notify tells observers about a finished flow. No lock is held.
func (m *Manager) notify(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, o := range m.observers {
		o.FlowFinished(ctx, *s)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
