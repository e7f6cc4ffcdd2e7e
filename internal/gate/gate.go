// Package gate is the policy facade the agent runtime calls: evaluate a
// command against the project's policy, suspending on human approval when
// the policy demands it.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opencode-ai/cmdgate/internal/approval"
	"github.com/opencode-ai/cmdgate/internal/audit"
	"github.com/opencode-ai/cmdgate/internal/classify"
	"github.com/opencode-ai/cmdgate/internal/logging"
	"github.com/opencode-ai/cmdgate/internal/policy"
	"github.com/opencode-ai/cmdgate/internal/settings"
)

// ValidationError reports malformed input rejected at the facade boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// EvaluateRequest identifies the command under evaluation and the agent
// run that issued it.
type EvaluateRequest struct {
	Command     string `json:"command"`
	ProjectPath string `json:"projectPath"`
	FeatureID   string `json:"featureID,omitempty"`
	WorktreeID  string `json:"worktreeID,omitempty"`
}

// EvaluateResult is the verdict returned to the agent runtime.
type EvaluateResult struct {
	Allowed bool `json:"allowed"`
	// FinalCommand is the command to actually run when Allowed; it is the
	// rewritten form when the policy substituted one.
	FinalCommand   string           `json:"finalCommand,omitempty"`
	Classification classify.Command `json:"classification"`
	// Decision is the action that settled an approval flow, empty when the
	// fast path decided.
	Decision     policy.Action `json:"decision,omitempty"`
	AuditEntries []audit.Entry `json:"auditEntries,omitempty"`
}

// Service wires the classifier, policy engine, approval coordinator,
// settings store, and audit logger into the single Evaluate operation.
type Service struct {
	settings  *settings.Store
	approvals *approval.Coordinator
	audit     *audit.Logger

	// worktreeGrants remembers allow-worktree decisions for the process
	// lifetime only; they are deliberately never persisted.
	mu             sync.Mutex
	worktreeGrants map[string]bool
}

// NewService creates the policy facade.
func NewService(settingsStore *settings.Store, approvals *approval.Coordinator, auditLogger *audit.Logger) *Service {
	return &Service{
		settings:       settingsStore,
		approvals:      approvals,
		audit:          auditLogger,
		worktreeGrants: make(map[string]bool),
	}
}

// Approvals exposes the coordinator for decision intake and pending-list
// introspection.
func (s *Service) Approvals() *approval.Coordinator {
	return s.approvals
}

// Evaluate classifies the command, applies the project's policy, and —
// when approval is required — blocks until an operator decides or the
// deadline cancels it. Denied outcomes fail closed.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return EvaluateResult{}, &ValidationError{Field: "command", Message: "must not be empty"}
	}
	if strings.TrimSpace(req.ProjectPath) == "" {
		return EvaluateResult{}, &ValidationError{Field: "projectPath", Message: "must not be empty"}
	}

	cmd := classify.Classify(req.Command)
	projectSettings := s.settings.Get(ctx, req.ProjectPath)
	decision := policy.Decide(cmd, projectSettings, req.WorktreeID != "")

	cmd.RiskLevel = decision.RiskLevel
	cmd.RequiresApproval = decision.RequiresApproval

	result := EvaluateResult{Classification: cmd}

	if decision.RequiresApproval && s.worktreeGranted(req) {
		result.Allowed = true
		result.FinalCommand = cmd.Original
		s.record(ctx, &result, req, audit.CommandAllowed, "")
		return result, nil
	}

	if !decision.RequiresApproval {
		result.Allowed = true
		if decision.UseRewrite {
			result.FinalCommand = cmd.RewrittenCommand
			s.record(ctx, &result, req, audit.CommandRewritten, "")
		} else {
			result.FinalCommand = cmd.Original
			s.record(ctx, &result, req, audit.CommandAllowed, "")
		}
		return result, nil
	}

	return s.evaluateWithApproval(ctx, req, cmd, decision)
}

func (s *Service) evaluateWithApproval(ctx context.Context, req EvaluateRequest, cmd classify.Command, decision policy.Decision) (EvaluateResult, error) {
	result := EvaluateResult{Classification: cmd}

	s.record(ctx, &result, req, audit.ApprovalRequested, "")

	outcome := s.approvals.RequestApproval(ctx, approval.Request{
		FeatureID:   req.FeatureID,
		WorktreeID:  req.WorktreeID,
		ProjectPath: req.ProjectPath,
		Command:     cmd,
		Options:     decision.Options,
	})
	result.Decision = outcome.Action

	switch outcome.Action {
	case policy.ActionProceedSafe:
		if cmd.RewrittenCommand != "" {
			result.Allowed = true
			result.FinalCommand = cmd.RewrittenCommand
			s.record(ctx, &result, req, audit.CommandRewritten, outcome.Action)
		} else {
			s.record(ctx, &result, req, audit.CommandBlocked, outcome.Action)
		}

	case policy.ActionAllowOnce:
		result.Allowed = true
		result.FinalCommand = cmd.Original
		s.record(ctx, &result, req, audit.ApprovalGranted, outcome.Action)

	case policy.ActionAllowWorktree:
		result.Allowed = true
		result.FinalCommand = cmd.Original
		s.grantWorktree(req)
		s.record(ctx, &result, req, audit.ApprovalGranted, outcome.Action)

	case policy.ActionAllowProject:
		result.Allowed = true
		result.FinalCommand = cmd.Original
		// rememberChoice is only honored for allow-project; without it the
		// grant behaves like allow-once.
		if outcome.RememberChoice {
			if err := s.settings.SetAllowInstallScripts(ctx, req.ProjectPath, true); err != nil {
				logging.Error().
					Err(err).
					Str("projectPath", req.ProjectPath).
					Msg("failed to persist allow-project grant")
			} else {
				s.record(ctx, &result, req, audit.PolicyChanged, outcome.Action)
			}
		}
		s.record(ctx, &result, req, audit.ApprovalGranted, outcome.Action)

	default:
		// cancel, timeout, or shutdown: fail closed.
		if outcome.TimedOut {
			s.record(ctx, &result, req, audit.CommandBlocked, policy.ActionCancel)
		} else {
			s.record(ctx, &result, req, audit.ApprovalDenied, policy.ActionCancel)
		}
	}

	return result, nil
}

func worktreeKey(req EvaluateRequest) string {
	return req.ProjectPath + "\x00" + req.WorktreeID
}

func (s *Service) worktreeGranted(req EvaluateRequest) bool {
	if req.WorktreeID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worktreeGrants[worktreeKey(req)]
}

func (s *Service) grantWorktree(req EvaluateRequest) {
	if req.WorktreeID == "" {
		return
	}
	s.mu.Lock()
	s.worktreeGrants[worktreeKey(req)] = true
	s.mu.Unlock()
}

// record writes an audit entry and mirrors it into the result. Audit
// failures are swallowed inside the logger; evaluation never depends on
// them.
func (s *Service) record(ctx context.Context, result *EvaluateResult, req EvaluateRequest, eventType audit.EventType, action policy.Action) {
	if !s.settings.Get(ctx, req.ProjectPath).EnableAuditLog {
		return
	}
	entry := audit.Entry{
		ProjectPath: req.ProjectPath,
		WorktreeID:  req.WorktreeID,
		FeatureID:   req.FeatureID,
		EventType:   eventType,
		Command:     &result.Classification,
		Decision:    action,
	}
	result.AuditEntries = append(result.AuditEntries, s.audit.Record(ctx, entry))
}
