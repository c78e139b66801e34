package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/comigor/portfolio-chat/internal/chat"
	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/logger"
)

const maxRequestBytes = 64 << 10

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// HistoryMessage is one entry of a history response.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResponse is the reply to GET /api/chat/history/{sessionID}.
type HistoryResponse struct {
	Messages  []HistoryMessage `json:"messages"`
	SessionID string           `json:"session_id"`
}

// HealthResponse is the reply to GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: ServiceName})
	}
}

func (s *Server) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		turn, err := s.chat.Send(r.Context(), req.SessionID, req.Message)
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "Message cannot be empty")
			return
		case err != nil:
			writeStoreError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{Response: turn.Reply, SessionID: turn.SessionID})
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		msgs, err := s.chat.History(r.Context(), sessionID, limit)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		resp := HistoryResponse{Messages: make([]HistoryMessage, 0, len(msgs)), SessionID: sessionID}
		for _, m := range msgs {
			resp.Messages = append(resp.Messages, HistoryMessage{
				Role:      string(m.Role),
				Content:   m.Content,
				Timestamp: m.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeStoreError reports a failed turn or lookup without leaking driver text.
func writeStoreError(w http.ResponseWriter, err error) {
	var se *history.StorageError
	if errors.As(err, &se) {
		logger.L.Error("request failed on conversation store", "op", se.Op, "error", err)
		writeError(w, http.StatusInternalServerError, "conversation store unavailable")
		return
	}
	logger.L.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
