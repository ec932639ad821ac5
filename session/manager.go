package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/config"
	"github.com/room4-2/receptionist/metrics"
)

// ErrMaxSessions is returned when the concurrent call limit is reached.
var ErrMaxSessions = errors.New("maximum sessions reached")

const activeSessionsKey = "active_sessions"

// Manager manages all client sessions
type Manager struct {
	sessions map[string]*ClientSession
	mu       sync.RWMutex
	redis    *redis.Client // optional mirror of live sessions
	config   *config.Config
	deps     *Deps
	logger   *zap.Logger
}

// NewManager creates a session manager. redisClient may be nil.
func NewManager(cfg *config.Config, deps *Deps, redisClient *redis.Client) *Manager {
	return &Manager{
		sessions: make(map[string]*ClientSession),
		redis:    redisClient,
		config:   cfg,
		deps:     deps,
		logger:   deps.Logger.Named("manager"),
	}
}

// CreateSession creates a browser session answered as tenantID.
func (sm *Manager) CreateSession(ctx context.Context, clientConn *websocket.Conn, tenantID string) (*ClientSession, error) {
	sm.mu.Lock()
	if len(sm.sessions) >= sm.config.MaxSessions {
		sm.mu.Unlock()
		return nil, ErrMaxSessions
	}
	session := NewClientSession(uuid.New().String(), clientConn, sm.deps, sm.config.MaxBufferSize)
	sm.storeSession(ctx, session)
	sm.mu.Unlock()

	// The connection stays open so the caller can report the error.
	if err := session.Connect(CallParams{TenantID: tenantID}); err != nil {
		sm.mu.Lock()
		sm.forget(ctx, session.ID)
		sm.mu.Unlock()
		session.cancel()
		return nil, err
	}
	return session, nil
}

// CreateTwilioSession creates a session for a media stream. It connects to
// the model when the stream's start frame arrives.
func (sm *Manager) CreateTwilioSession(ctx context.Context, clientConn *websocket.Conn) (*ClientSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxSessions {
		return nil, ErrMaxSessions
	}

	session := NewTwilioClientSession(uuid.New().String(), clientConn, sm.deps)
	sm.storeSession(ctx, session)
	return session, nil
}

// storeSession saves a session to memory and Redis. Callers hold sm.mu.
func (sm *Manager) storeSession(ctx context.Context, session *ClientSession) {
	sm.sessions[session.ID] = session
	metrics.ActiveSessions.Set(float64(len(sm.sessions)))

	if sm.redis == nil {
		return
	}
	key := "session:" + session.ID
	pipe := sm.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"created_at": session.CreatedAt.Format(time.RFC3339),
		"status":     "active",
		"is_twilio":  session.IsTwilio,
	})
	pipe.Expire(ctx, key, sm.config.SessionTimeout)
	pipe.SAdd(ctx, activeSessionsKey, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		sm.logger.Warn("⚠️ Failed to mirror session to Redis", zap.Error(err))
	}
}

func (sm *Manager) forget(ctx context.Context, id string) {
	delete(sm.sessions, id)
	metrics.ActiveSessions.Set(float64(len(sm.sessions)))

	if sm.redis == nil {
		return
	}
	pipe := sm.redis.TxPipeline()
	pipe.Del(ctx, "session:"+id)
	pipe.SRem(ctx, activeSessionsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		sm.logger.Warn("⚠️ Failed to remove session from Redis", zap.Error(err))
	}
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(sessionID string) (*ClientSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	return session, exists
}

// RemoveSession closes a session and forgets it.
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	session, exists := sm.sessions[sessionID]
	if exists {
		sm.forget(ctx, sessionID)
	}
	sm.mu.Unlock()

	if exists {
		session.Close()
	}
	return nil
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions closes sessions idle for longer than the session
// timeout and forgets sessions that already closed.
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.Lock()
	now := time.Now()
	var stale []*ClientSession
	for id, session := range sm.sessions {
		if session.IsClosed() || now.Sub(session.LastActive()) > sm.config.SessionTimeout {
			stale = append(stale, session)
			sm.forget(ctx, id)
		}
	}
	sm.mu.Unlock()

	for _, session := range stale {
		session.Close()
	}
	if len(stale) > 0 {
		sm.logger.Info("🧹 Cleaned up sessions", zap.Int("count", len(stale)))
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all sessions. Each close finalizes its call record.
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	sessions := make([]*ClientSession, 0, len(sm.sessions))
	for id, session := range sm.sessions {
		sessions = append(sessions, session)
		sm.forget(context.Background(), id)
	}
	sm.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
