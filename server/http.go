package server

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request. Websocket routes are mounted
// outside it since they live for the whole call.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// newRouter carries the middleware both listeners share.
func newRouter() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	return router
}

type health struct {
	Status   string `json:"status"`
	Server   string `json:"server"`
	Sessions int    `json:"sessions"`
	Tenant   string `json:"tenant"`
	Version  string `json:"version"`
	Time     string `json:"timestamp"`
}

func healthHandler(server, tenant, version string, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, health{
			Status:   "ok",
			Server:   server,
			Sessions: sessions.GetActiveSessionCount(),
			Tenant:   tenant,
			Version:  version,
			Time:     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func mountObservability(router chi.Router, server, tenant, version string, sessions *session.Manager) {
	router.Get("/health", healthHandler(server, tenant, version, sessions))
	router.Handle("/metrics", promhttp.Handler())
}
