package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opencode-ai/cmdgate/internal/audit"
)

// queryAudit handles GET /audit?projectPath=...&limit=...&since=...
// Entries come back newest first. since is an RFC 3339 timestamp.
func (s *Server) queryAudit(w http.ResponseWriter, r *http.Request) {
	projectPath := r.URL.Query().Get("projectPath")
	if projectPath == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "projectPath is required")
		return
	}

	var opts audit.QueryOptions

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "since must be an RFC 3339 timestamp")
			return
		}
		opts.Since = since
	}

	entries, err := s.audit.Query(r.Context(), projectPath, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}
