package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

// DefaultMaxHistory caps the messages kept per session.
const DefaultMaxHistory = 100

// EnvironmentSource fetches an environmental context for a location.
type EnvironmentSource interface {
	Fetch(ctx context.Context, at *environment.Coordinates) environment.Context
}

// Manager manages farmer sessions on top of a storage backend. Updates are
// read-modify-write and serialized per manager. Environment fetches run
// outside that lock.
type Manager struct {
	mu         sync.Mutex
	store      Store
	env        EnvironmentSource
	maxHistory int
	now        func() time.Time
	logger     *slog.Logger
}

// Option is a function that configures a Manager.
type Option func(*Manager)

// WithStore sets the store for the manager.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithEnvironmentSource sets where session environments are fetched from.
func WithEnvironmentSource(src EnvironmentSource) Option {
	return func(m *Manager) {
		m.env = src
	}
}

// WithMaxHistory caps the stored conversation length.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new session manager with the given options.
//
// Example:
//
//	mgr := session.NewManager(
//		session.WithStore(inmemory.NewInMemoryStore()),
//		session.WithEnvironmentSource(provider),
//	)
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m
}

// Create starts a new session. An empty id gets a generated one.
func (m *Manager) Create(ctx context.Context, id string) (*Record, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exists, err := m.store.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("session %s already exists", id)
	}

	now := m.now()
	rec := &Record{ID: id, State: StateActive, CreatedAt: now, UpdatedAt: now}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.logger.Info("session created", "id", id)
	return rec.Clone(), nil
}

// Get loads a session. Missing sessions return ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}
	return m.load(ctx, id)
}

// GetOrCreate loads a session or creates it when it does not exist.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Record, error) {
	rec, err := m.Get(ctx, id)
	if errors.Is(err, agerrors.ErrSessionNotFound) {
		rec, err = m.Create(ctx, id)
	}
	return rec, err
}

// Environment returns the session's cached context. The first call with a
// location fetches and caches it; later calls return the cached value
// unchanged. Without a location and without a cached value it returns
// ok=false.
func (m *Manager) Environment(ctx context.Context, id string, at *environment.Coordinates) (env environment.Context, ok bool, err error) {
	rec, err := m.active(ctx, id)
	if err != nil {
		return environment.Context{}, false, err
	}
	if rec.Environment != nil {
		return *rec.Environment, true, nil
	}
	if at == nil {
		return environment.Context{}, false, nil
	}

	fetched, loc, err := m.fetch(ctx, id, at)
	if err != nil {
		return environment.Context{}, false, err
	}
	// A concurrent first fetch may have cached a context already; the
	// earlier one stays.
	rec, err = m.update(ctx, id, func(rec *Record) error {
		if rec.Environment != nil {
			return errNoChange
		}
		rec.Location = loc
		rec.Environment = &fetched
		return nil
	})
	if err != nil {
		return environment.Context{}, false, err
	}
	return *rec.Environment, true, nil
}

// RefreshEnvironment clears the cached context and fetches a new one, at the
// given location or the session's last known one.
func (m *Manager) RefreshEnvironment(ctx context.Context, id string, at *environment.Coordinates) (environment.Context, error) {
	rec, err := m.active(ctx, id)
	if err != nil {
		return environment.Context{}, err
	}
	if at == nil {
		at = rec.Location
	}

	fetched, loc, err := m.fetch(ctx, id, at)
	if err != nil {
		return environment.Context{}, err
	}
	rec, err = m.update(ctx, id, func(rec *Record) error {
		if loc != nil {
			rec.Location = loc
		}
		rec.Environment = &fetched
		return nil
	})
	if err != nil {
		return environment.Context{}, err
	}
	m.logger.Info("session environment refreshed", "id", id)
	return *rec.Environment, nil
}

// SetCrop records the crop the farmer is asking about.
func (m *Manager) SetCrop(ctx context.Context, id, crop string) error {
	_, err := m.update(ctx, id, func(rec *Record) error {
		if crop == "" || rec.Crop == crop {
			return errNoChange
		}
		rec.Crop = crop
		return nil
	})
	return err
}

// Append adds messages to the session history, dropping the oldest beyond
// the configured maximum.
func (m *Manager) Append(ctx context.Context, id string, msgs ...message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	_, err := m.update(ctx, id, func(rec *Record) error {
		rec.History = append(rec.History, msgs...)
		if over := len(rec.History) - m.maxHistory; over > 0 {
			rec.History = append([]message.Message(nil), rec.History[over:]...)
		}
		return nil
	})
	return err
}

// History returns a copy of the session's conversation.
func (m *Manager) History(ctx context.Context, id string) ([]message.Message, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.History, nil
}

// Close marks a session closed. Closed sessions reject updates.
func (m *Manager) Close(ctx context.Context, id string) error {
	_, err := m.update(ctx, id, func(rec *Record) error {
		rec.State = StateClosed
		return nil
	})
	return err
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.ensureStore(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	m.logger.Info("session deleted", "id", id)
	return nil
}

// List returns all session IDs.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}
	return m.store.List(ctx)
}

// Count returns the number of stored sessions.
func (m *Manager) Count(ctx context.Context) (int, error) {
	if err := m.ensureStore(); err != nil {
		return 0, err
	}
	return m.store.Count(ctx)
}

var errNoChange = errors.New("no change")

// update applies fn to the stored record and saves it. fn returning
// errNoChange skips the save.
func (m *Manager) update(ctx context.Context, id string, fn func(*Record) error) (*Record, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.State == StateClosed {
		return nil, fmt.Errorf("session %s is closed", id)
	}
	if err := fn(rec); err != nil {
		if errors.Is(err, errNoChange) {
			return rec, nil
		}
		return nil, err
	}
	rec.UpdatedAt = m.now()
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return rec, nil
}

func (m *Manager) load(ctx context.Context, id string) (*Record, error) {
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", agerrors.ErrSessionNotFound, id)
	}
	return rec, nil
}

// active loads a session that still accepts updates.
func (m *Manager) active(ctx context.Context, id string) (*Record, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}
	rec, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.State == StateClosed {
		return nil, fmt.Errorf("session %s is closed", id)
	}
	return rec, nil
}

// fetch runs the environment source without holding the manager lock, so a
// slow upstream only delays its own session.
func (m *Manager) fetch(ctx context.Context, id string, at *environment.Coordinates) (environment.Context, *environment.Coordinates, error) {
	if m.env == nil {
		return environment.Context{}, nil, fmt.Errorf("session manager has no environment source")
	}
	var loc *environment.Coordinates
	if at != nil {
		if err := at.Validate(); err != nil {
			return environment.Context{}, nil, fmt.Errorf("%w: %w", agerrors.ErrInvalidInput, err)
		}
		c := *at
		loc = &c
	}
	env := m.env.Fetch(ctx, loc)
	m.logger.Debug("session environment fetched", "id", id,
		"weather", env.Sources.Weather, "soil", env.Sources.Soil)
	return env, loc, nil
}

func (m *Manager) ensureStore() error {
	if m.store == nil {
		return fmt.Errorf("session store not configured")
	}
	return nil
}
