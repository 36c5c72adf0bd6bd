package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/finchat/internal/access"
)

// defaultQueryLimit bounds unfiltered listings of the trail.
const defaultQueryLimit = 100

// RegisterRoutes mounts the audit endpoints under /audit on the given
// router. The server nests them inside the admin-only API group.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", handleQuery(store))
		r.Get("/{id}", handleGetByID(store))
	})
}

func handleQuery(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := QueryFilter{
			ActorID:        q.Get("actor"),
			ConversationID: q.Get("conversation"),
		}

		if v := q.Get("actor_type"); v != "" {
			filter.ActorType = ActorType(v)
		}
		if v := q.Get("action"); v != "" {
			filter.Action = Action(v)
		}
		if v := q.Get("role"); v != "" {
			filter.Role = access.Role(v)
		}
		if v := q.Get("collection"); v != "" {
			filter.Collection = access.Collection(v)
		}
		if v := q.Get("since"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Since = &t
			}
		}
		if v := q.Get("until"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Until = &t
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}
		if filter.Limit <= 0 {
			filter.Limit = defaultQueryLimit
		}

		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}

		writeJSON(w, http.StatusOK, entries)
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		entry, err := store.GetByID(r.Context(), id)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, entry)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
