package server

import (
	"encoding/json"
	"net/http"

	"github.com/opencode-ai/cmdgate/internal/logging"
	"github.com/opencode-ai/cmdgate/internal/policy"
)

// getSettings handles GET /settings?projectPath=...
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	projectPath := r.URL.Query().Get("projectPath")
	if projectPath == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "projectPath is required")
		return
	}

	writeJSON(w, http.StatusOK, s.settings.Get(r.Context(), projectPath))
}

// updateSettings handles PATCH /settings?projectPath=...
// Only fields present in the body change; the result is validated and
// persisted before it is returned.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	projectPath := r.URL.Query().Get("projectPath")
	if projectPath == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "projectPath is required")
		return
	}

	var patch policy.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.settings.Update(r.Context(), projectPath, patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Retention may have tightened; apply it now rather than waiting for
	// the next prune.
	if pruned, err := s.audit.PruneExpired(r.Context(), projectPath, updated.AuditLogRetentionDays); err != nil {
		logging.Warn().Err(err).Str("projectPath", projectPath).Msg("audit prune after settings update failed")
	} else if pruned > 0 {
		logging.Info().Int("pruned", pruned).Str("projectPath", projectPath).Msg("expired audit entries removed")
	}

	writeJSON(w, http.StatusOK, updated)
}
