package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/callstore"
)

const (
	defaultCallLimit = 20
	maxCallLimit     = 100
)

// callLimit reads ?limit=. Missing or invalid values fall back to the default.
func callLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return defaultCallLimit
	}
	return min(n, maxCallLimit)
}

func (s *WebsocketTwilio) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := callLimit(r)
	calls, err := s.calls.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("❌ Failed to list calls", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if calls == nil {
		calls = []*callstore.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls":  calls,
		"count":  len(calls),
		"limit":  limit,
		"active": s.sessionManager.GetActiveSessionCount(),
	})
}

func (s *WebsocketTwilio) handleGetCall(w http.ResponseWriter, r *http.Request) {
	rec, err := s.calls.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, callstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		s.logger.Error("❌ Failed to load call", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
