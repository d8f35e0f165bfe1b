package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ragorchestrator/internal/domain"
	"ragorchestrator/internal/persistence"
	"ragorchestrator/internal/sse"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func storeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, persistence.ErrForbidden):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type createConversationRequest struct {
	CallerID       string  `json:"callerId"`
	UserID         *string `json:"userId,omitempty"`
	AccountID      *string `json:"accountId,omitempty"`
	InitialMessage *string `json:"initialMessage,omitempty"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.CallerID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "callerId is required")
		return
	}

	cc, err := s.ctxMgr.CreateConversation(r.Context(), req.CallerID, req.UserID, req.AccountID, req.InitialMessage)
	if err != nil {
		status, code := storeErrorStatus(err)
		writeError(w, r, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, cc)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cc, err := s.ctxMgr.Load(r.Context(), id)
	if err != nil {
		status, code := storeErrorStatus(err)
		writeError(w, r, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cc)
}

type listConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	callerID := r.URL.Query().Get("callerId")
	if callerID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "callerId query parameter is required")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	convs, err := s.ctxMgr.RecentByCaller(r.Context(), callerID, limit)
	if err != nil {
		status, code := storeErrorStatus(err)
		writeError(w, r, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listConversationsResponse{Conversations: convs})
}

type streamMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req streamMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	if _, err := s.ctxMgr.Load(r.Context(), id); err != nil {
		status, code := storeErrorStatus(err)
		writeError(w, r, status, code, err.Error())
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	s.orch.ProcessMessageStream(r.Context(), id, req.Message, writer)
}

type toolsResponse struct {
	Tools []toolDescriptor `json:"tools"`
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	schemas := s.registry.Schemas()
	out := make([]toolDescriptor, 0, len(schemas))
	for _, sc := range schemas {
		out = append(out, toolDescriptor{Name: sc.Name, Description: sc.Description, Parameters: sc.Parameters})
	}
	writeJSON(w, http.StatusOK, toolsResponse{Tools: out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}
