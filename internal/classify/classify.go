// Package classify turns raw agent shell commands into structured
// package-manager command classifications.
package classify

import (
	"strings"
)

// PackageManager identifies the package manager a command invokes.
type PackageManager string

const (
	ManagerNpm     PackageManager = "npm"
	ManagerPnpm    PackageManager = "pnpm"
	ManagerYarn    PackageManager = "yarn"
	ManagerBun     PackageManager = "bun"
	ManagerUnknown PackageManager = "unknown"
)

// CommandType is the risk-relevant category of a command.
type CommandType string

const (
	TypeInstall         CommandType = "install"
	TypeHighRiskExecute CommandType = "high-risk-execute"
	TypeScriptRun       CommandType = "script-run"
	TypeOther           CommandType = "other"
)

// RiskLevel grades how dangerous a command is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Command is the classification of a single evaluated command.
// PackageManager and Type are fully determined by the command text;
// RiskLevel and RequiresApproval are finalized by the policy engine.
type Command struct {
	Original          string         `json:"original"`
	PackageManager    PackageManager `json:"packageManager"`
	Type              CommandType    `json:"type"`
	IsInstallCommand  bool           `json:"isInstallCommand"`
	IsHighRiskExecute bool           `json:"isHighRiskExecute"`
	RewrittenCommand  string         `json:"rewrittenCommand,omitempty"`
	TargetPackage     string         `json:"targetPackage,omitempty"`
	ScriptName        string         `json:"scriptName,omitempty"`
	RiskLevel         RiskLevel      `json:"riskLevel"`
	RequiresApproval  bool           `json:"requiresApproval"`
}

// executeAliases are standalone commands that download and run a package
// without installing it first.
var executeAliases = map[string]PackageManager{
	"npx":  ManagerNpm,
	"pnpx": ManagerPnpm,
	"bunx": ManagerBun,
}

// managers maps leading tokens to package managers.
var managers = map[string]PackageManager{
	"npm":  ManagerNpm,
	"pnpm": ManagerPnpm,
	"yarn": ManagerYarn,
	"bun":  ManagerBun,
}

// Classify classifies a raw command string. It is total: unparseable or
// empty input classifies as {unknown, other} and is never an error.
func Classify(command string) Command {
	cmd := Command{
		Original:       command,
		PackageManager: ManagerUnknown,
		Type:           TypeOther,
		RiskLevel:      RiskLow,
	}

	calls, err := ParseShellCommand(command)
	if err != nil || len(calls) == 0 {
		return cmd
	}

	// A compound command ("cd x && npm install") is graded by its riskiest
	// segment so chaining cannot hide an install behind a benign prefix.
	best := classifyCall(calls[0])
	for _, call := range calls[1:] {
		if c := classifyCall(call); typeSeverity(c.Type) > typeSeverity(best.Type) {
			best = c
		}
	}

	cmd.PackageManager = best.PackageManager
	cmd.Type = best.Type
	cmd.TargetPackage = best.TargetPackage
	cmd.ScriptName = best.ScriptName
	cmd.IsInstallCommand = cmd.Type == TypeInstall
	cmd.IsHighRiskExecute = cmd.Type == TypeHighRiskExecute
	cmd.RiskLevel = provisionalRisk(cmd.Type)

	// Safe rewrites only apply to single simple commands; rewriting one
	// segment of a compound command could change the meaning of the rest.
	if cmd.IsInstallCommand && len(calls) == 1 {
		cmd.RewrittenCommand = safeRewrite(command, best)
	}

	return cmd
}

// segment is the classification of one simple command in a shell line.
type segment struct {
	PackageManager PackageManager
	Type           CommandType
	TargetPackage  string
	ScriptName     string
}

func classifyCall(call ShellCall) segment {
	seg := segment{PackageManager: ManagerUnknown, Type: TypeOther}

	if pm, ok := executeAliases[call.Name]; ok {
		seg.PackageManager = pm
		seg.Type = TypeHighRiskExecute
		seg.TargetPackage = firstPackageArg(call.Args)
		return seg
	}

	pm, ok := managers[call.Name]
	if !ok {
		return seg
	}
	seg.PackageManager = pm

	sub := call.Subcommand
	switch pm {
	case ManagerNpm:
		switch sub {
		case "install", "i", "ci", "add":
			seg.Type = TypeInstall
		case "exec", "x":
			seg.Type = TypeHighRiskExecute
			seg.TargetPackage = firstPackageArg(argsAfter(call, sub))
		case "run", "run-script":
			seg.Type = TypeScriptRun
			seg.ScriptName = firstPackageArg(argsAfter(call, sub))
		}
	case ManagerPnpm:
		switch sub {
		case "install", "i", "add":
			seg.Type = TypeInstall
		case "dlx", "exec", "x":
			seg.Type = TypeHighRiskExecute
			seg.TargetPackage = firstPackageArg(argsAfter(call, sub))
		case "run":
			seg.Type = TypeScriptRun
			seg.ScriptName = firstPackageArg(argsAfter(call, sub))
		}
	case ManagerYarn:
		switch sub {
		case "install", "add":
			seg.Type = TypeInstall
		case "":
			// Bare "yarn" installs the whole dependency tree.
			seg.Type = TypeInstall
		case "dlx", "exec":
			seg.Type = TypeHighRiskExecute
			seg.TargetPackage = firstPackageArg(argsAfter(call, sub))
		case "run":
			seg.Type = TypeScriptRun
			seg.ScriptName = firstPackageArg(argsAfter(call, sub))
		}
	case ManagerBun:
		switch sub {
		case "install", "i", "add":
			seg.Type = TypeInstall
		case "x":
			seg.Type = TypeHighRiskExecute
			seg.TargetPackage = firstPackageArg(argsAfter(call, sub))
		case "run":
			seg.Type = TypeScriptRun
			seg.ScriptName = firstPackageArg(argsAfter(call, sub))
		}
	}
	return seg
}

func typeSeverity(t CommandType) int {
	switch t {
	case TypeHighRiskExecute:
		return 3
	case TypeInstall:
		return 2
	case TypeScriptRun:
		return 1
	default:
		return 0
	}
}

// provisionalRisk grades a command by its type alone. The policy engine
// overrides this once settings are known.
func provisionalRisk(t CommandType) RiskLevel {
	switch t {
	case TypeHighRiskExecute:
		return RiskHigh
	case TypeInstall, TypeScriptRun:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ignoreScriptsFlag disables lifecycle scripts for the managers that
// support it. Yarn classic has no equivalent, so yarn installs get no
// rewrite and fall through to the approval path under strict policy.
var ignoreScriptsFlag = map[PackageManager]string{
	ManagerNpm:  "--ignore-scripts",
	ManagerPnpm: "--ignore-scripts",
	ManagerBun:  "--ignore-scripts",
}

// safeRewrite returns an equivalent install command with lifecycle scripts
// disabled, or "" when no such rewrite exists.
func safeRewrite(original string, seg segment) string {
	flag, ok := ignoreScriptsFlag[seg.PackageManager]
	if !ok {
		return ""
	}
	if strings.Contains(original, flag) {
		// Scripts are already disabled; the command is its own safe form.
		return original
	}
	return strings.TrimRight(original, " \t") + " " + flag
}

// argsAfter returns the arguments that follow the subcommand token.
func argsAfter(call ShellCall, sub string) []string {
	for i, a := range call.Args {
		if a == sub {
			return call.Args[i+1:]
		}
	}
	return nil
}

// firstPackageArg returns the first argument that is not a flag, with any
// version suffix ("pkg@1.2.3") stripped.
func firstPackageArg(args []string) string {
	for _, a := range args {
		if a == "" || strings.HasPrefix(a, "-") {
			continue
		}
		return stripVersion(a)
	}
	return ""
}

// stripVersion removes a trailing @version from a package spec while
// preserving scoped package names like @scope/pkg.
func stripVersion(spec string) string {
	at := strings.LastIndex(spec, "@")
	if at > 0 {
		return spec[:at]
	}
	return spec
}
