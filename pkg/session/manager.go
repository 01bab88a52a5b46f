package session

import (
	"context"
	"sync"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"github.com/google/uuid"
)

type ManagerConfig struct {
	MaxSessions     int
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
}

// Manager owns all sessions of the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      ManagerConfig
	opts     Options
}

func NewManager(cfg ManagerConfig, opts Options) *Manager {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		opts:     opts,
	}
}

// Create starts a new session with a fresh id.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, utils.WrapIfNotNil(ErrMaxSessions)
	}
	s := newSession(uuid.NewString(), m.opts)
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.opts.Metrics.SetActiveSessions(count)
	s.persist(ctx)
	if err := m.opts.Store.ReplaceChat(ctx, s.ID, s.Chat()); err != nil {
		s.logger(ctx).Warnf("persisting chat: %v", err)
	}
	logging.NewLogger(ctx).Infof("session created id=%s active=%d", s.ID, count)
	return s, nil
}

// Get returns a live session, restoring it from the store if this process has
// not seen it yet.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	return m.restore(ctx, id)
}

func (m *Manager) restore(ctx context.Context, id string) (*Session, error) {
	log := logging.NewLogger(logging.WithSessionID(ctx, id))

	record, err := m.opts.Store.LoadSession(ctx, id)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}
	if record == nil {
		return nil, utils.WrapIfNotNil(ErrSessionNotFound)
	}
	chat, err := m.opts.Store.LoadChat(ctx, id)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}
	result, err := m.opts.Store.LoadResult(ctx, id)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}

	s := newSession(id, m.opts)
	s.CreatedAt = record.CreatedAt
	if len(chat) > 0 {
		s.chat = chat
	}
	// an analysis that was running in the old process will never commit
	if result != nil {
		s.state = Results(*result)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, utils.WrapIfNotNil(ErrMaxSessions)
	}
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.opts.Metrics.SetActiveSessions(count)
	s.persist(ctx)
	log.Infof("session restored phase=%s chat_messages=%d", s.State().Phase, len(s.Chat()))
	return s, nil
}

// Remove closes a session and deletes its persisted state.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.Close(ctx)
		m.opts.Metrics.SetActiveSessions(count)
	}
	return utils.WrapIfNotNil(m.opts.Store.RemoveSession(ctx, id))
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupInactive removes sessions idle for longer than the session timeout.
// Sessions with a connected listener are kept.
func (m *Manager) CleanupInactive(ctx context.Context) int {
	if m.cfg.SessionTimeout <= 0 {
		return 0
	}

	now := time.Now()
	expired := make([]*Session, 0)
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.ListenerCount() > 0 {
			continue
		}
		if now.Sub(s.LastActivity()) > m.cfg.SessionTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	log := logging.NewLogger(ctx)
	for _, s := range expired {
		s.Close(ctx)
		if err := m.opts.Store.RemoveSession(ctx, s.ID); err != nil {
			log.Warnf("removing session %s: %v", s.ID, err)
		}
	}
	if len(expired) > 0 {
		m.opts.Metrics.SetActiveSessions(count)
		log.Infof("cleaned up %d inactive sessions, %d active", len(expired), count)
	}
	return len(expired)
}

// StartCleanupRoutine runs CleanupInactive periodically until ctx is done.
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupInactive(ctx)
		}
	}
}

// Shutdown closes all sessions, waits for their background work or ctx, and
// closes the store. Persisted state is kept.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range sessions {
			s.Close(ctx)
			s.Wait()
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.NewLogger(ctx).Warnf("shutdown deadline reached with background work still running")
	}

	m.opts.Metrics.SetActiveSessions(0)
	if err := m.opts.Store.Close(); err != nil {
		logging.NewLogger(ctx).Warnf("closing session store: %v", err)
	}
}
