package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a distributed session lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Result is the outcome of one tick run through the Manager.
type Result struct {
	Events []domain.Event `json:"events"`
	State  *domain.State  `json:"state"`
	// Diff holds what the tick changed; for a new session it is the whole state.
	Diff *domain.StateDiff `json:"diff,omitempty"`
}

// Manager runs ticks against persisted sessions. Each session is guarded by a
// ref-counted in-process mutex and, when configured, a distributed lock, so a
// load-execute-save cycle never interleaves with another one for the same session.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger

	interpOpts []weave.Option
	init       func(*domain.State)
	before     []func(context.Context, *domain.State)
	after      []func(context.Context, *weave.Interpreter)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithInterpreterOptions adds options applied to every interpreter the Manager builds
// (host sensors and actuators, observers, seed, depth limit).
func WithInterpreterOptions(opts ...weave.Option) Option {
	return func(m *Manager) {
		m.interpOpts = append(m.interpOpts, opts...)
	}
}

// WithInitializer seeds newly created sessions, e.g. with an initial "intensity".
func WithInitializer(fn func(*domain.State)) Option {
	return func(m *Manager) {
		m.init = fn
	}
}

// OnBeforeExecute registers a hook that sees the loaded state before each tick.
func OnBeforeExecute(fn func(context.Context, *domain.State)) Option {
	return func(m *Manager) {
		m.before = append(m.before, fn)
	}
}

// OnAfterExecute registers a hook that runs after each tick, before the state is saved.
// Hosts use it to sync values such as the robot position back into the interpreter.
func OnAfterExecute(fn func(context.Context, *weave.Interpreter)) Option {
	return func(m *Manager) {
		m.after = append(m.after, fn)
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking it.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[sessionID]
	if !ok {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release drops the entry once nobody references it.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[sessionID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, sessionID)
		return err
	})
	return state, err
}

// LoadOrCreate loads a session, creating and persisting a seeded one if it does not exist.
func (m *Manager) LoadOrCreate(ctx context.Context, sessionID string) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, _, err = m.loadOrNew(ctx, sessionID)
		if err != nil {
			return err
		}
		return m.store.Save(ctx, sessionID, state)
	})
	return state, err
}

func (m *Manager) loadOrNew(ctx context.Context, sessionID string) (*domain.State, bool, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err == nil {
		return state, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	state = domain.NewState(sessionID)
	if m.init != nil {
		m.init(state)
	}
	return state, true, nil
}

// Execute runs one tick of src against the session, creating it if needed, and
// saves the result. Sensors see a snapshot of the loaded state through
// StateFromContext. A program that fails to parse leaves the stored session
// untouched. A resource error raised during evaluation still saves the mutations
// made before evaluation stopped.
func (m *Manager) Execute(ctx context.Context, sessionID, src string, opts ...weave.Option) (*Result, error) {
	var res *Result
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state, created, err := m.loadOrNew(ctx, sessionID)
		if err != nil {
			return err
		}
		var prev *domain.State
		if !created {
			prev = state.Clone()
		}
		ctx = ContextWithState(ctx, state.Clone())
		for _, fn := range m.before {
			fn(ctx, state.Clone())
		}

		var events []domain.Event
		collect := ports.ObserverFunc(func(_ context.Context, ev domain.Event) {
			events = append(events, ev)
		})

		all := make([]weave.Option, 0, len(m.interpOpts)+len(opts)+3)
		all = append(all, m.interpOpts...)
		all = append(all, opts...)
		all = append(all, weave.WithState(state), weave.WithSessionID(sessionID), weave.WithObserver(collect))
		interp := weave.New(all...)

		// Parse failures (syntax or nesting) never reach the store.
		prog, err := interp.Parse(src)
		if err != nil {
			return err
		}
		execErr := interp.ExecuteProgram(ctx, prog)
		for _, fn := range m.after {
			fn(ctx, interp)
		}

		snap := interp.Snapshot()
		if err := m.store.Save(ctx, sessionID, snap); err != nil {
			return fmt.Errorf("save session %s: %w", sessionID, err)
		}
		if created {
			m.logger.Info("session created", "session_id", sessionID)
		}
		res = &Result{Events: events, State: snap, Diff: domain.Diff(prev, snap)}
		return execErr
	})
	return res, err
}

// Save persists the session state.
func (m *Manager) Save(ctx context.Context, sessionID string, state *domain.State) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, state)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock, it will expire via TTL",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
