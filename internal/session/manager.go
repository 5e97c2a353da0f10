package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/store"
)

// DefaultMaxActive bounds the sessions kept in memory.
const DefaultMaxActive = 64

// ErrClosed is returned after Close.
var ErrClosed = errors.New("session manager closed")

// Factory builds the controller for a session over mem.
type Factory func(id string, mem *memory.Memory) (*controller.Controller, error)

// Session is one drawing session.
type Session struct {
	ID        string
	CreatedAt time.Time
	ctrl      *controller.Controller
	// refs counts operations in flight. Guarded by Manager.mu.
	refs int
}

// Controller returns the session's controller.
func (s *Session) Controller() *controller.Controller {
	return s.ctrl
}

// Snapshot returns the session's complete drawing state.
func (s *Session) Snapshot() memory.Snapshot {
	return s.ctrl.Memory().Summary()
}

// Manager creates, caches and persists sessions.
type Manager struct {
	mu     sync.Mutex
	active *lru.Cache[string, *Session]
	// parked holds sessions evicted while an operation was running on
	// them, so every caller keeps sharing one controller until it ends.
	parked  map[string]*Session
	store   store.Store
	factory Factory
	logger  *zap.Logger
	closed  bool
	// discard suppresses the save in onEvict. The cache is only touched
	// with mu held, so onEvict always runs under mu.
	discard bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager keeping at most maxActive sessions in
// memory. Evicted sessions are saved to st.
func NewManager(st store.Store, factory Factory, maxActive int, opts ...Option) (*Manager, error) {
	if st == nil || factory == nil {
		return nil, errors.New("store and factory are required")
	}
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}
	m := &Manager{store: st, factory: factory, logger: zap.NewNop(), parked: make(map[string]*Session)}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("session")

	cache, err := lru.NewWithEvict(maxActive, m.onEvict)
	if err != nil {
		return nil, err
	}
	m.active = cache
	return m, nil
}

func (m *Manager) onEvict(id string, s *Session) {
	ActiveSessions.Dec()
	if m.discard {
		return
	}
	if s.refs > 0 {
		// The running operation saves when it finishes.
		m.parked[id] = s
		m.logger.Debug("busy session parked", zap.String("session_id", id))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.save(ctx, s); err != nil {
		m.logger.Error("saving evicted session", zap.String("session_id", id), zap.Error(err))
		return
	}
	m.logger.Debug("session evicted", zap.String("session_id", id))
}

// Create starts a new empty session.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	id := "sess_" + uuid.NewString()
	s, err := m.build(id, memory.New(memory.WithLogger(memory.NewLogger(m.logger))))
	if err != nil {
		SessionOps.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	if err := m.save(ctx, s); err != nil {
		SessionOps.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	m.add(s)
	SessionOps.WithLabelValues("create", "ok").Inc()
	m.logger.Info("session created", zap.String("session_id", id))
	return s, nil
}

// Get returns an active session or restores it from the store.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(ctx, id)
}

// acquire returns the session pinned against eviction until release.
func (m *Manager) acquire(ctx context.Context, id string) (*Session, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refs++
	return s, nil
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 && m.parked[s.ID] == s {
		delete(m.parked, s.ID)
	}
}

// lookup finds or restores a session. Caller holds mu.
func (m *Manager) lookup(ctx context.Context, id string) (*Session, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.active.Get(id); ok {
		return s, nil
	}
	if s, ok := m.parked[id]; ok {
		delete(m.parked, id)
		m.add(s)
		return s, nil
	}

	rec, err := m.store.Load(ctx, id)
	if err != nil {
		SessionOps.WithLabelValues("restore", "error").Inc()
		return nil, err
	}
	mem := memory.New(memory.WithLogger(memory.NewLogger(m.logger)))
	if err := mem.Restore(rec.Snapshot); err != nil {
		SessionOps.WithLabelValues("restore", "error").Inc()
		return nil, fmt.Errorf("restoring session %s: %w", id, err)
	}
	s, err := m.build(id, mem)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = rec.CreatedAt
	if rec.Stopped {
		s.ctrl.StopSignal().Stop()
	}
	m.add(s)
	SessionOps.WithLabelValues("restore", "ok").Inc()
	return s, nil
}

// Save persists a session's current state.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.save(ctx, s)
}

// Delete forgets a session everywhere.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := store.ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discard = true
	m.active.Remove(id)
	m.discard = false
	delete(m.parked, id)
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	SessionOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

// List returns stored sessions.
func (m *Manager) List(ctx context.Context) ([]store.Summary, error) {
	return m.store.List(ctx)
}

// Active returns the number of sessions held in memory.
func (m *Manager) Active() int {
	return m.active.Len()
}

// Close saves every active session and closes the store.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, id := range m.active.Keys() {
		if s, ok := m.active.Peek(id); ok {
			if err := m.save(ctx, s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, s := range m.parked {
		if err := m.save(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	m.parked = make(map[string]*Session)
	m.discard = true
	m.active.Purge()
	errs = append(errs, m.store.Close())
	return errors.Join(errs...)
}

func (m *Manager) build(id string, mem *memory.Memory) (*Session, error) {
	ctrl, err := m.factory(id, mem)
	if err != nil {
		return nil, fmt.Errorf("building controller for %s: %w", id, err)
	}
	return &Session{ID: id, CreatedAt: time.Now().UTC(), ctrl: ctrl}, nil
}

func (m *Manager) add(s *Session) {
	m.active.Add(s.ID, s)
	ActiveSessions.Inc()
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	err := m.store.Save(ctx, store.Record{
		ID:        s.ID,
		Snapshot:  s.Snapshot(),
		Stopped:   s.ctrl.StopSignal().Stopped(),
		CreatedAt: s.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("saving session %s: %w", s.ID, err)
	}
	return nil
}

// Process runs an instruction on a session and saves the result. A partial
// outcome is saved and returned together with a plan overrun error.
func (m *Manager) Process(ctx context.Context, id, instruction string) (*controller.Outcome, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer m.release(s)
	out, procErr := s.ctrl.Process(ctx, instruction)
	if err := m.save(ctx, s); err != nil {
		m.logger.Error("saving session after instruction", zap.String("session_id", id), zap.Error(err))
	}
	return out, procErr
}

// Confirm promotes and executes a session's preview strokes.
func (m *Manager) Confirm(ctx context.Context, id string) (*controller.ConfirmResult, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer m.release(s)
	res, err := s.ctrl.Confirm(ctx)
	if err != nil {
		return nil, err
	}
	return res, m.save(ctx, s)
}

// Reject discards a session's preview strokes.
func (m *Manager) Reject(ctx context.Context, id string) (int, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return 0, err
	}
	defer m.release(s)
	n := s.ctrl.Reject(ctx)
	return n, m.save(ctx, s)
}

// Undo removes the last n strokes of a session from memory.
func (m *Manager) Undo(ctx context.Context, id string, n int) ([]memory.Stroke, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer m.release(s)
	removed := s.ctrl.Undo(ctx, n)
	return removed, m.save(ctx, s)
}

// Stop raises a session's stop signal. It does not wait for a running
// instruction.
func (m *Manager) Stop(ctx context.Context, id string) error {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer m.release(s)
	s.ctrl.Stop(ctx)
	return m.save(ctx, s)
}

// Resume clears a session's stop signal.
func (m *Manager) Resume(ctx context.Context, id string) error {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer m.release(s)
	s.ctrl.Resume(ctx)
	return m.save(ctx, s)
}
