// pkg/workspace/workspace.go
// Package workspace lays out the on-disk scan output tree: one root
// directory holding one subdirectory per target, each with a nuclei
// subdirectory for secondary scan output.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reconductor/reconductor/pkg/config"
	"github.com/reconductor/reconductor/pkg/netutil"
)

// Prepare ensures the output root exists and returns its absolute path.
func Prepare(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("output directory not set")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return "", fmt.Errorf("create output root: %w", err)
	}
	return absRoot, nil
}

// TargetDir returns the directory a target's artifacts live in. The target
// string is sanitized so CIDR and IP punctuation stay filesystem-safe.
func TargetDir(root, target string) string {
	return filepath.Join(root, netutil.SanitizeTargetName(target))
}

// PrepareTarget creates a target's directory and its nuclei subdirectory,
// returning the target directory path. It is safe to call for a target that
// already has a directory from a previous run.
func PrepareTarget(root, target string) (string, error) {
	dir := TargetDir(root, target)
	if err := os.MkdirAll(filepath.Join(dir, config.NucleiDir), 0o750); err != nil {
		return "", fmt.Errorf("create target directory for %s: %w", target, err)
	}
	return dir, nil
}
