package gaps

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/auth"
)

// GapAuditor receives gap resolutions for the audit trail.
type GapAuditor interface {
	GapResolved(ctx context.Context, actorID, gapID, status string)
}

// RegisterRoutes mounts the knowledge gap endpoints under /gaps on
// the given router. The server nests them inside the admin-only API
// group. auditor may be nil.
func RegisterRoutes(r chi.Router, store *Store, auditor GapAuditor) {
	r.Route("/gaps", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Get("/stats", handleStats(store))
		r.Get("/top", handleTop(store))
		r.Get("/{id}", handleGetByID(store))
		r.Post("/{id}/resolve", handleResolve(store, auditor))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{}
		if v := r.URL.Query().Get("status"); v != "" {
			filter.Status = Status(v)
		}
		if v := r.URL.Query().Get("role"); v != "" {
			filter.Role = access.Role(v)
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		gaps, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if gaps == nil {
			gaps = []Gap{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gaps)
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		g, err := store.GetByID(r.Context(), id)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if g == nil {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(g)
	}
}

type resolveRequest struct {
	Status Status `json:"status"`
}

func handleResolve(store *Store, auditor GapAuditor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Status == "" {
			req.Status = StatusResolved
		}

		resolvedBy := "anonymous"
		if u, ok := auth.UserFromContext(r.Context()); ok {
			resolvedBy = u.Email
		}

		if err := store.Resolve(r.Context(), id, resolvedBy, req.Status); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if auditor != nil {
			auditor.GapResolved(r.Context(), resolvedBy, id, string(req.Status))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": string(req.Status)})
	}
}

func handleStats(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := store.OpenCount(r.Context())
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"open_count": count})
	}
}

func handleTop(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 10
		if v := r.URL.Query().Get("n"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				n = parsed
			}
		}

		gaps, err := store.Top(r.Context(), n)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if gaps == nil {
			gaps = []Gap{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gaps)
	}
}
