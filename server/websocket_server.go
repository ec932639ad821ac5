package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/config"
	"github.com/room4-2/receptionist/logging"
	"github.com/room4-2/receptionist/messages"
	"github.com/room4-2/receptionist/profile"
	"github.com/room4-2/receptionist/session"
)

// Server is the browser test channel. It answers as any tenant, picked
// with /ws?tenant=.
type Server struct {
	httpServer     *http.Server
	router         *chi.Mux
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	config         *config.Config
	logger         *zap.Logger
}

func NewServerWebsocket(cfg *config.Config, sessionManager *session.Manager, version string, logger *zap.Logger) *Server {
	s := &Server{
		sessionManager: sessionManager,
		config:         cfg,
		logger:         logger.Named("ws-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.router = newRouter()
	s.router.Get("/ws", s.handleWebSocket)
	s.router.Group(func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		mountObservability(r, "websocket", cfg.Profiles.DefaultClientID, version, sessionManager)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening for connections
func (s *Server) Start() error {
	s.logger.Info("🚀 WebSocket server starting",
		zap.String("addr", s.httpServer.Addr),
		zap.String("endpoint", fmt.Sprintf("ws://localhost:%d/ws", s.config.Port)),
	)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("🛑 Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get(session.ParamTenant)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	clientSession, err := s.sessionManager.CreateSession(r.Context(), conn, tenant)
	if err != nil {
		s.logger.Error("❌ Failed to create session", zap.String("tenant", tenant), zap.Error(err))
		_ = conn.WriteJSON(messages.NewErrorMessage("", sessionErrorCode(err), err.Error()))
		conn.Close()
		return
	}

	log := s.logger.With(zap.String("session", logging.ShortID(clientSession.ID)))
	log.Info("✅ New session created", zap.String("tenant", clientSession.TenantID))

	clientSession.Start()

	<-clientSession.CloseChan

	_ = s.sessionManager.RemoveSession(context.Background(), clientSession.ID)
	log.Info("🔌 Session closed")
}

func sessionErrorCode(err error) string {
	var notFound *profile.NotFoundError
	var invalid *profile.ValidationError
	switch {
	case errors.As(err, &notFound):
		return messages.ErrCodeTenantNotFound
	case errors.As(err, &invalid):
		return messages.ErrCodeTenantInvalid
	case errors.Is(err, session.ErrMaxSessions):
		return messages.ErrCodeRateLimited
	default:
		return messages.ErrCodeSessionFailed
	}
}
