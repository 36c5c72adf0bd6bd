package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/finchat/internal/auth"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// RegisterRoutes mounts the chat API. Every route expects an
// authenticated user in the request context.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/api/chat", handleChat(svc))
	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", handleListConversations(svc))
		r.Get("/{id}", handleGetMessages(svc))
		r.Put("/{id}", handleRename(svc))
		r.Delete("/{id}", handleDelete(svc))
	})
}

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	IncludeSources bool   `json:"include_sources"`
}

func handleChat(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		result, err := svc.SubmitTurn(r.Context(), TurnRequest{
			UserID:         user.ID,
			Role:           string(user.Role),
			ConversationID: req.ConversationID,
			Message:        req.Message,
			IncludeSources: req.IncludeSources,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleListConversations(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}

		convs, err := svc.Conversations(r.Context(), user.ID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if convs == nil {
			convs = []Conversation{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(convs)
	}
}

func handleGetMessages(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}

		messages, err := svc.Messages(r.Context(), user.ID, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if messages == nil {
			messages = []Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messages)
	}
}

type renameRequest struct {
	Title string `json:"title"`
}

func handleRename(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}

		var req renameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if err := svc.Rename(r.Context(), user.ID, chi.URLParam(r, "id"), req.Title); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDelete(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}

		if err := svc.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeServiceError maps service errors onto HTTP statuses: validation
// 400, unknown conversation 404, foreign conversation 403, everything
// else 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *rag.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, `{"error":"`+verr.Message+`"}`, http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, `{"error":"conversation not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, `{"error":"conversation belongs to another user"}`, http.StatusForbidden)
	default:
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
	}
}
