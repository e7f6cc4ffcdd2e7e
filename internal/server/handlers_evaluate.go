package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencode-ai/cmdgate/internal/gate"
)

// evaluateCommand handles POST /evaluate. The response is not written
// until the command either passes the fast path or its approval request
// resolves, so clients should not set aggressive timeouts here.
func (s *Server) evaluateCommand(w http.ResponseWriter, r *http.Request) {
	var req gate.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.gate.Evaluate(r.Context(), req)
	if err != nil {
		var verr *gate.ValidationError
		if errors.As(err, &verr) {
			writeErrorWithDetails(w, http.StatusBadRequest, ErrCodeInvalidRequest, verr.Message, map[string]any{
				"field": verr.Field,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
