package policy

import (
	"github.com/opencode-ai/cmdgate/internal/classify"
)

// Action is a decision an operator (or the engine itself) can take on a
// blocked command.
type Action string

const (
	ActionProceedSafe   Action = "proceed-safe"
	ActionAllowOnce     Action = "allow-once"
	ActionAllowWorktree Action = "allow-worktree"
	ActionAllowProject  Action = "allow-project"
	ActionCancel        Action = "cancel"
)

// Option is one choice presented in the approval dialog.
type Option struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Description   string `json:"description"`
	Action        Action `json:"action"`
	IsDefault     bool   `json:"isDefault,omitempty"`
	IsRecommended bool   `json:"isRecommended,omitempty"`
}

// Decision is the policy verdict for a classified command.
type Decision struct {
	RiskLevel        classify.RiskLevel `json:"riskLevel"`
	RequiresApproval bool               `json:"requiresApproval"`
	// UseRewrite means the rewritten command should run instead of the
	// original when the command is allowed without approval.
	UseRewrite bool     `json:"useRewrite"`
	Options    []Option `json:"options,omitempty"`
}

// Decide applies the per-project policy to a classified command.
// hasWorktree controls whether a worktree-scoped grant option is offered.
func Decide(cmd classify.Command, settings NpmSecuritySettings, hasWorktree bool) Decision {
	settings = ValidateAndCorrect(settings)

	var d Decision
	switch cmd.Type {
	case classify.TypeOther:
		d = Decision{RiskLevel: classify.RiskLow}

	case classify.TypeInstall:
		d = decideInstall(cmd, settings)

	case classify.TypeHighRiskExecute:
		// Download-and-run stays high risk even when policy waives the
		// approval. AllowInstallScripts is not an exemption here: that
		// flag governs install lifecycle scripts, not executing
		// arbitrary packages.
		exempt := settings.DependencyInstallPolicy == PolicyAllow ||
			settings.PackageAllowed(cmd.TargetPackage)
		d = Decision{RiskLevel: classify.RiskHigh, RequiresApproval: !exempt}

	case classify.TypeScriptRun:
		d = Decision{
			RiskLevel:        classify.RiskMedium,
			RequiresApproval: settings.DependencyInstallPolicy == PolicyStrict,
		}

	default:
		// Unknown types fail closed.
		d = Decision{RiskLevel: classify.RiskHigh, RequiresApproval: true}
	}

	if d.RequiresApproval {
		d.Options = buildOptions(cmd, hasWorktree)
	}
	return d
}

func decideInstall(cmd classify.Command, settings NpmSecuritySettings) Decision {
	if settings.AllowInstallScripts || settings.DependencyInstallPolicy == PolicyAllow {
		return Decision{RiskLevel: classify.RiskLow}
	}

	hasRewrite := cmd.RewrittenCommand != ""

	if hasRewrite && settings.DependencyInstallPolicy == PolicyStrict {
		// Disabling lifecycle scripts is enough; no need to block the
		// whole install.
		return Decision{RiskLevel: classify.RiskLow, UseRewrite: true}
	}

	// prompt always asks, and strict with no rewrite has nothing safe
	// to fall back to.
	return Decision{RiskLevel: classify.RiskMedium, RequiresApproval: true}
}

// buildOptions constructs the approval dialog choices. proceed-safe is
// always first and is the recommended default: it runs the rewritten
// command when one exists and denies otherwise.
func buildOptions(cmd classify.Command, hasWorktree bool) []Option {
	safeDesc := "Deny the command"
	if cmd.RewrittenCommand != "" {
		safeDesc = "Run with lifecycle scripts disabled"
	}

	opts := []Option{
		{
			ID:            "proceed-safe",
			Label:         "Proceed safely",
			Description:   safeDesc,
			Action:        ActionProceedSafe,
			IsDefault:     true,
			IsRecommended: true,
		},
		{
			ID:          "allow-once",
			Label:       "Allow once",
			Description: "Run the original command this one time",
			Action:      ActionAllowOnce,
		},
	}

	if hasWorktree {
		opts = append(opts, Option{
			ID:          "allow-worktree",
			Label:       "Allow for this worktree",
			Description: "Run the original command and remember for this worktree until restart",
			Action:      ActionAllowWorktree,
		})
	}

	opts = append(opts,
		Option{
			ID:          "allow-project",
			Label:       "Always allow for this project",
			Description: "Run the original command and permit install scripts for this project",
			Action:      ActionAllowProject,
		},
		Option{
			ID:          "cancel",
			Label:       "Cancel",
			Description: "Deny the command",
			Action:      ActionCancel,
		},
	)
	return opts
}
