package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Install(t *testing.T) {
	tests := []struct {
		name    string
		command string
		pm      PackageManager
		rewrite string
	}{
		{"npm install", "npm install", ManagerNpm, "npm install --ignore-scripts"},
		{"npm i shorthand", "npm i lodash", ManagerNpm, "npm i lodash --ignore-scripts"},
		{"npm ci", "npm ci", ManagerNpm, "npm ci --ignore-scripts"},
		{"pnpm add", "pnpm add express", ManagerPnpm, "pnpm add express --ignore-scripts"},
		{"bun install", "bun install", ManagerBun, "bun install --ignore-scripts"},
		{"yarn add has no rewrite", "yarn add react", ManagerYarn, ""},
		{"bare yarn installs", "yarn", ManagerYarn, ""},
		{"env prefix", "CI=1 npm install", ManagerNpm, "CI=1 npm install --ignore-scripts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Classify(tt.command)
			assert.Equal(t, TypeInstall, cmd.Type)
			assert.Equal(t, tt.pm, cmd.PackageManager)
			assert.True(t, cmd.IsInstallCommand)
			assert.False(t, cmd.IsHighRiskExecute)
			assert.Equal(t, tt.rewrite, cmd.RewrittenCommand)
			assert.Equal(t, RiskMedium, cmd.RiskLevel)
		})
	}
}

func TestClassify_HighRiskExecute(t *testing.T) {
	tests := []struct {
		name    string
		command string
		pm      PackageManager
		target  string
	}{
		{"npx", "npx some-package", ManagerNpm, "some-package"},
		{"npx with yes flag", "npx -y create-react-app myapp", ManagerNpm, "create-react-app"},
		{"npx pinned version", "npx esbuild@0.19.0", ManagerNpm, "esbuild"},
		{"npx scoped package", "npx @angular/cli new app", ManagerNpm, "@angular/cli"},
		{"npm exec", "npm exec cowsay hello", ManagerNpm, "cowsay"},
		{"pnpm dlx", "pnpm dlx create-vite", ManagerPnpm, "create-vite"},
		{"yarn dlx", "yarn dlx degit user/repo", ManagerYarn, "degit"},
		{"bunx", "bunx prettier --write .", ManagerBun, "prettier"},
		{"bun x", "bun x eslint .", ManagerBun, "eslint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Classify(tt.command)
			assert.Equal(t, TypeHighRiskExecute, cmd.Type)
			assert.Equal(t, tt.pm, cmd.PackageManager)
			assert.Equal(t, tt.target, cmd.TargetPackage)
			assert.True(t, cmd.IsHighRiskExecute)
			assert.Equal(t, RiskHigh, cmd.RiskLevel)
			assert.Empty(t, cmd.RewrittenCommand)
		})
	}
}

func TestClassify_ScriptRun(t *testing.T) {
	tests := []struct {
		command string
		script  string
	}{
		{"npm run build", "build"},
		{"npm run-script lint", "lint"},
		{"pnpm run test:unit", "test:unit"},
		{"yarn run dev", "dev"},
		{"bun run start", "start"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cmd := Classify(tt.command)
			assert.Equal(t, TypeScriptRun, cmd.Type)
			assert.Equal(t, tt.script, cmd.ScriptName)
			assert.Equal(t, RiskMedium, cmd.RiskLevel)
		})
	}
}

func TestClassify_Other(t *testing.T) {
	for _, command := range []string{
		"ls -la",
		"git status",
		"npm config list",
		"npm view lodash",
		"cargo build",
		"pip install requests",
	} {
		t.Run(command, func(t *testing.T) {
			cmd := Classify(command)
			assert.Equal(t, TypeOther, cmd.Type)
			assert.Equal(t, RiskLow, cmd.RiskLevel)
			assert.False(t, cmd.IsInstallCommand)
			assert.False(t, cmd.IsHighRiskExecute)
		})
	}
}

func TestClassify_Malformed(t *testing.T) {
	// Never panics, never misclassifies garbage as install or execute.
	for _, command := range []string{"", "   ", "((( broken", "npm install $(", "'unclosed"} {
		t.Run("input "+command, func(t *testing.T) {
			cmd := Classify(command)
			assert.Equal(t, TypeOther, cmd.Type)
			assert.Equal(t, ManagerUnknown, cmd.PackageManager)
			assert.Equal(t, RiskLow, cmd.RiskLevel)
		})
	}
}

func TestClassify_CompoundTakesRiskiestSegment(t *testing.T) {
	cmd := Classify("cd app && npm install")
	assert.Equal(t, TypeInstall, cmd.Type)
	assert.Equal(t, ManagerNpm, cmd.PackageManager)
	// No rewrite for compound commands.
	assert.Empty(t, cmd.RewrittenCommand)

	cmd = Classify("npm install; npx evil-package")
	assert.Equal(t, TypeHighRiskExecute, cmd.Type)
	assert.Equal(t, "evil-package", cmd.TargetPackage)
}

func TestClassify_AlreadyIgnoringScripts(t *testing.T) {
	cmd := Classify("npm install --ignore-scripts")
	assert.Equal(t, TypeInstall, cmd.Type)
	assert.Equal(t, cmd.Original, cmd.RewrittenCommand)
}

func TestClassify_Deterministic(t *testing.T) {
	for _, command := range []string{"npm install", "npx pkg", "yarn", "ls", ""} {
		first := Classify(command)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Classify(command))
		}
	}
}

func TestParseShellCommand(t *testing.T) {
	calls, err := ParseShellCommand("npm install -D typescript")
	assert.NoError(t, err)
	if assert.Len(t, calls, 1) {
		assert.Equal(t, "npm", calls[0].Name)
		assert.Equal(t, "install", calls[0].Subcommand)
		assert.Equal(t, []string{"install", "-D", "typescript"}, calls[0].Args)
	}

	calls, err = ParseShellCommand("echo hi | grep h && ls")
	assert.NoError(t, err)
	assert.Len(t, calls, 3)
}
