// Package project derives stable identifiers for the projects whose
// commands cmdgate governs. Settings and audit entries are keyed by
// these identifiers on disk.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// ID returns a stable identifier for a project path. The path is
// normalized first so "/a/b" and "/a/b/" key the same project.
func ID(projectPath string) string {
	abs, err := filepath.Abs(filepath.Clean(projectPath))
	if err != nil {
		abs = filepath.Clean(projectPath)
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}
