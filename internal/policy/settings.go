// Package policy holds the per-project npm security settings and the
// engine that grades classified commands against them.
package policy

import "github.com/bmatcuk/doublestar/v4"

// InstallPolicy controls how dependency installs are handled.
type InstallPolicy string

const (
	PolicyStrict InstallPolicy = "strict"
	PolicyPrompt InstallPolicy = "prompt"
	PolicyAllow  InstallPolicy = "allow"
)

// DefaultRetentionDays is how long audit entries are kept by default.
const DefaultRetentionDays = 30

// NpmSecuritySettings is the per-project security policy.
type NpmSecuritySettings struct {
	DependencyInstallPolicy   InstallPolicy `json:"dependencyInstallPolicy"`
	AllowInstallScripts       bool          `json:"allowInstallScripts"`
	AllowedPackagesForRebuild []string      `json:"allowedPackagesForRebuild"`
	EnableAuditLog            bool          `json:"enableAuditLog"`
	AuditLogRetentionDays     int           `json:"auditLogRetentionDays"`
}

// DefaultSettings returns the strict-mode defaults.
func DefaultSettings() NpmSecuritySettings {
	return NpmSecuritySettings{
		DependencyInstallPolicy:   PolicyStrict,
		AllowInstallScripts:       false,
		AllowedPackagesForRebuild: []string{},
		EnableAuditLog:            true,
		AuditLogRetentionDays:     DefaultRetentionDays,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	DependencyInstallPolicy   *InstallPolicy `json:"dependencyInstallPolicy,omitempty"`
	AllowInstallScripts       *bool          `json:"allowInstallScripts,omitempty"`
	AllowedPackagesForRebuild *[]string      `json:"allowedPackagesForRebuild,omitempty"`
	EnableAuditLog            *bool          `json:"enableAuditLog,omitempty"`
	AuditLogRetentionDays     *int           `json:"auditLogRetentionDays,omitempty"`
}

// ValidateAndCorrect normalizes a settings object, replacing any field that
// is absent or outside its declared enum/range with the strict default.
// It is total: it never fails, so the engine always sees well-formed settings.
func ValidateAndCorrect(candidate NpmSecuritySettings) NpmSecuritySettings {
	out := candidate

	switch out.DependencyInstallPolicy {
	case PolicyStrict, PolicyPrompt, PolicyAllow:
	default:
		out.DependencyInstallPolicy = PolicyStrict
	}

	if out.AllowedPackagesForRebuild == nil {
		out.AllowedPackagesForRebuild = []string{}
	}

	if out.AuditLogRetentionDays <= 0 {
		out.AuditLogRetentionDays = DefaultRetentionDays
	}

	return out
}

// ApplyPatch merges a patch into base and normalizes the result.
func ApplyPatch(base NpmSecuritySettings, patch SettingsPatch) NpmSecuritySettings {
	out := base
	if patch.DependencyInstallPolicy != nil {
		out.DependencyInstallPolicy = *patch.DependencyInstallPolicy
	}
	if patch.AllowInstallScripts != nil {
		out.AllowInstallScripts = *patch.AllowInstallScripts
	}
	if patch.AllowedPackagesForRebuild != nil {
		out.AllowedPackagesForRebuild = *patch.AllowedPackagesForRebuild
	}
	if patch.EnableAuditLog != nil {
		out.EnableAuditLog = *patch.EnableAuditLog
	}
	if patch.AuditLogRetentionDays != nil {
		out.AuditLogRetentionDays = *patch.AuditLogRetentionDays
	}
	return ValidateAndCorrect(out)
}

// PackageAllowed reports whether pkg matches an entry in the rebuild
// allowlist. Entries may be doublestar globs, so "@myorg/*" covers every
// package in a scope.
func (s NpmSecuritySettings) PackageAllowed(pkg string) bool {
	if pkg == "" {
		return false
	}
	for _, pattern := range s.AllowedPackagesForRebuild {
		if pattern == pkg {
			return true
		}
		if ok, err := doublestar.Match(pattern, pkg); err == nil && ok {
			return true
		}
	}
	return false
}
