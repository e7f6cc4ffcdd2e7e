package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/cmdgate/internal/approval"
	"github.com/opencode-ai/cmdgate/internal/policy"
)

// listApprovals handles GET /approvals. Oldest pending request first.
func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	pending := s.gate.Approvals().ListPending()
	if pending == nil {
		pending = []approval.Request{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// resolveApproval handles POST /approvals/{approvalID}.
func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request) {
	approvalID := chi.URLParam(r, "approvalID")
	if approvalID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "approvalID is required")
		return
	}

	var decision approval.Decision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	if !validAction(decision.Action) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown action: "+string(decision.Action))
		return
	}

	if err := s.gate.Approvals().SubmitDecision(approvalID, decision); err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "approval request not found: "+approvalID)
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

func validAction(action policy.Action) bool {
	switch action {
	case policy.ActionProceedSafe, policy.ActionAllowOnce, policy.ActionAllowWorktree,
		policy.ActionAllowProject, policy.ActionCancel:
		return true
	}
	return false
}
