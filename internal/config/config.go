// Package config provides configuration loading and path management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config holds cmdgate server configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port int `json:"port" yaml:"port"`
	// Hostname the HTTP server binds to.
	Hostname string `json:"hostname" yaml:"hostname"`
	// DataDir is where settings and the audit trail are stored.
	// Defaults to the XDG data directory.
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// LogLevel is the minimum log level (DEBUG|INFO|WARN|ERROR).
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	// WebhookURL, when set, receives approval requests as POSTs.
	WebhookURL string `json:"webhookURL" yaml:"webhookURL"`
	// ApprovalTimeoutSeconds overrides the decision deadline. Zero keeps
	// the default of five minutes.
	ApprovalTimeoutSeconds int `json:"approvalTimeoutSeconds" yaml:"approvalTimeoutSeconds"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Port:     7317,
		Hostname: "127.0.0.1",
		DataDir:  GetPaths().StoragePath(),
		LogLevel: "INFO",
	}
}

// Load builds configuration from (in priority order):
//  1. defaults
//  2. global config (~/.config/cmdgate/cmdgate.{json,jsonc,yaml})
//  3. project config (<directory>/.cmdgate/cmdgate.{json,jsonc,yaml})
//  4. CMDGATE_* environment variables
func Load(directory string) (*Config, error) {
	cfg := Default()

	globalDir := GetPaths().Config
	loadFirst(cfg, []string{
		filepath.Join(globalDir, "cmdgate.json"),
		filepath.Join(globalDir, "cmdgate.jsonc"),
		filepath.Join(globalDir, "cmdgate.yaml"),
	})

	if directory != "" {
		projectDir := filepath.Join(directory, ".cmdgate")
		loadFirst(cfg, []string{
			filepath.Join(projectDir, "cmdgate.json"),
			filepath.Join(projectDir, "cmdgate.jsonc"),
			filepath.Join(projectDir, "cmdgate.yaml"),
		})
	}

	applyEnv(cfg, loadEnvFile(directory))
	applyEnv(cfg, envLookup)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// loadEnvFile reads <directory>/.env without touching the process
// environment. A missing or unreadable file yields no overrides.
func loadEnvFile(directory string) func(string) string {
	if directory == "" {
		return func(string) string { return "" }
	}
	vars, err := godotenv.Read(filepath.Join(directory, ".env"))
	if err != nil {
		return func(string) string { return "" }
	}
	return func(key string) string { return vars[key] }
}

func envLookup(key string) string {
	return os.Getenv(key)
}

// loadFirst merges the first config file that exists among candidates.
func loadFirst(cfg *Config, candidates []string) {
	for _, path := range candidates {
		if err := loadFile(cfg, path); err == nil {
			return
		}
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var loaded Config
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(jsonc.ToJSON(data), &loaded); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	merge(cfg, &loaded)
	return nil
}

func merge(dst, src *Config) {
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.WebhookURL != "" {
		dst.WebhookURL = src.WebhookURL
	}
	if src.ApprovalTimeoutSeconds != 0 {
		dst.ApprovalTimeoutSeconds = src.ApprovalTimeoutSeconds
	}
}

// applyEnv applies CMDGATE_* overrides from the given lookup, which is
// either the process environment or a project .env file.
func applyEnv(cfg *Config, lookup func(string) string) {
	if v := lookup("CMDGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := lookup("CMDGATE_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := lookup("CMDGATE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := lookup("CMDGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := lookup("CMDGATE_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := lookup("CMDGATE_APPROVAL_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.ApprovalTimeoutSeconds = secs
		}
	}
}
