package server

import (
	"encoding/json"
	"net/http"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/auth"
	"github.com/ziadkadry99/finchat/internal/ingest"
)

// statsResponse aggregates corpus counters for the caller's scope.
type statsResponse struct {
	Collections    []ingest.CollectionStat `json:"collections"`
	TotalDocuments int                     `json:"total_documents"`
	TotalChunks    int                     `json:"total_chunks"`
	OpenGaps       int                     `json:"open_gaps"`
}

// handleDocuments lists indexed documents from the departments the
// caller's role can read.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	docs, err := s.deps.Documents.ListDocuments(r.Context(), access.ScopeFor(user.Role))
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []ingest.Document{}
	}

	writeJSON(w, http.StatusOK, docs)
}

// handleStats reports document and chunk counts per department, scoped
// to the caller's role, plus the number of open knowledge gaps.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	all, err := s.deps.Documents.Stats(r.Context())
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	scope := access.NewScope(user.Role)
	resp := statsResponse{Collections: []ingest.CollectionStat{}}
	for _, st := range all {
		if !scope.Allows(st.Collection) {
			continue
		}
		resp.Collections = append(resp.Collections, st)
		resp.TotalDocuments += st.Documents
		resp.TotalChunks += st.Chunks
	}

	if s.deps.Gaps != nil {
		open, err := s.deps.Gaps.OpenCount(r.Context())
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		resp.OpenGaps = open
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
