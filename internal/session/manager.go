package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/face"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/preference"
)

const (
	// DefaultTTL is how long an unused session is kept
	DefaultTTL = 30 * time.Minute

	sweepInterval = time.Minute
)

type ManagerConfig struct {
	DefaultAPIURL string
	AutoChecks    bool
	Timeout       time.Duration
	TTL           time.Duration
	BackendName   string
}

// CreateOptions are the per session overrides accepted by Create
type CreateOptions struct {
	// ClientID keys the persisted preferences. Empty means the session id.
	ClientID string
	// AutoChecks overrides ManagerConfig.AutoChecks when set
	AutoChecks *bool
}

// disconnecter is implemented by publishers that hold per session
// connections, like the WebSocket hub
type disconnecter interface {
	Disconnect(sessionID uuid.UUID)
}

// Manager is the registry of live sessions
type Manager struct {
	factory face.BackendFactory
	cfg     ManagerConfig
	opts    []Option
	deps    dependencies

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(factory face.BackendFactory, cfg ManagerConfig, opts ...Option) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	deps := resolve(opts)
	deps.logger = deps.logger.With("component", "session_manager")

	return &Manager{
		factory:  factory,
		cfg:      cfg,
		opts:     opts,
		deps:     deps,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create starts a session for the client, pointed at the client's saved API
// URL or the configured default, and loads its catalog. A catalog failure
// leaves the session on the hardcoded defaults with a notice.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	id := uuid.New()
	clientID := opts.ClientID
	if clientID == "" {
		clientID = id.String()
	}

	apiURL := m.resolveAPIURL(ctx, clientID)

	autoChecks := m.cfg.AutoChecks
	if opts.AutoChecks != nil {
		autoChecks = *opts.AutoChecks
	}

	s := New(id, m.factory, Config{
		ClientID:    clientID,
		APIURL:      apiURL,
		AutoChecks:  autoChecks,
		Timeout:     m.cfg.Timeout,
		BackendName: m.cfg.BackendName,
	}, m.opts...)

	if err := s.Refresh(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.deps.logger.Warn("session started without catalog",
			slog.String("session_id", id.String()),
			slog.String("api_url", apiURL),
			slog.String("error", err.Error()),
		)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.deps.logger.Info("session created",
		slog.String("session_id", id.String()),
		slog.String("client_id", clientID),
	)

	return s, nil
}

func (m *Manager) resolveAPIURL(ctx context.Context, clientID string) string {
	if m.deps.prefs == nil {
		return m.cfg.DefaultAPIURL
	}

	stored, err := m.deps.prefs.Get(ctx, preference.Key(clientID))
	switch {
	case err == nil && stored != "":
		return stored
	case err != nil && !errors.Is(err, preference.ErrNotFound):
		m.deps.logger.Warn("failed to load API URL preference",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
	return m.cfg.DefaultAPIURL
}

// Get returns a live session and marks it used
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.touch(time.Now())

	return s, nil
}

// Delete drops a session and disconnects its event subscribers. Background
// checks still running finish against the detached session.
func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	m.disconnect(id)

	return nil
}

func (m *Manager) disconnect(id uuid.UUID) {
	if d, ok := m.deps.publisher.(disconnecter); ok {
		d.Disconnect(id)
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	expired := make([]uuid.UUID, 0)
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.cfg.TTL {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.disconnect(id)
	}

	return len(expired)
}

// Run sweeps idle sessions every minute until ctx is done
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.deps.logger.Info("expired idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Close waits for the background checks of every live session
func (m *Manager) Close() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.Wait()
	}
}
