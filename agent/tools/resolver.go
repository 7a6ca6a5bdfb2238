// Package tools implements the tool registry and pluggable execution
// environment used by the agent session loop: tool
// definitions plus a handler, a local filesystem/shell Environment, and
// output truncation shared by every built-in tool.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves a workspace-relative path to an absolute path,
// rejecting any path that escapes the workspace root.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path within the resolver's root.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("tools: path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("tools: resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("tools: resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("tools: resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("tools: path %q escapes workspace", path)
	}
	return targetAbs, nil
}
