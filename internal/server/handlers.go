package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cryptodash/internal/assistant"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const loadingMessage = "data is loading, try again shortly"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":     "ok",
			"time":       time.Now().UTC().Format(time.RFC3339),
			"listing":    s.listing.Latest().HasValue,
			"global":     s.global.Latest().HasValue,
			"ws_clients": s.hub.ClientCount(),
		},
	})
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	st := s.listing.Latest()
	if !st.HasValue {
		writeError(w, http.StatusServiceUnavailable, loadingMessage)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.coinsView(st)})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	st := s.global.Latest()
	if !st.HasValue || st.Value == nil {
		writeError(w, http.StatusServiceUnavailable, loadingMessage)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.marketView(st)})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if s.news == nil {
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: NewsView{Items: []NewsItemView{}}})
		return
	}
	st := s.news.Latest()
	if !st.HasValue {
		writeError(w, http.StatusServiceUnavailable, loadingMessage)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.newsView(st)})
}

type sessionView struct {
	ID       string              `json:"id"`
	Messages []assistant.Message `json:"messages"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	Question assistant.Message `json:"question"`
	Answer   assistant.Message `json:"answer"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    sessionView{ID: id, Messages: sess.Messages()},
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    sessionView{ID: id, Messages: sess.Messages()},
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"deleted": id}})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, a, err := sess.Submit(req.Content)
	if errors.Is(err, assistant.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, "content must not be empty")
		return
	}
	if err != nil {
		s.logger.Error("chat submit failed", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.metrics.ChatMessages.Inc()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: messageResponse{Question: q, Answer: a}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
