package handler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentflowhq/agentrt/pipeline"
)

// stageDir returns <logsRoot>/<nodeID>, creating it if necessary.
func stageDir(logsRoot, nodeID string) (string, error) {
	dir := filepath.Join(logsRoot, nodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: create stage directory %q: %w", dir, err)
	}
	return dir, nil
}

// writeStageFiles writes prompt.md, response.md, and status.json under
// <logsRoot>/<nodeID>, the on-disk trail every LLM-backed handler leaves
// behind for a human (or the resume path) to inspect.
func writeStageFiles(logsRoot, nodeID, prompt, response string, outcome pipeline.Outcome) error {
	dir, err := stageDir(logsRoot, nodeID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "prompt.md"), []byte(prompt), 0o644); err != nil {
		return fmt.Errorf("pipeline: write prompt.md: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "response.md"), []byte(response), 0o644); err != nil {
		return fmt.Errorf("pipeline: write response.md: %w", err)
	}
	encoded, err := json.MarshalIndent(outcome.ToStatusJSON(), "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: encode status.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status.json"), encoded, 0o644); err != nil {
		return fmt.Errorf("pipeline: write status.json: %w", err)
	}
	return nil
}

// expandGoal replaces every "$goal" occurrence in prompt with the graph's
// goal attribute.
func expandGoal(prompt, goal string) string {
	return strings.ReplaceAll(prompt, "$goal", goal)
}

// withPreamble prepends the Engine's fidelity-resolved handoff text, when
// present, to prompt.
func withPreamble(prompt string, pctx *pipeline.Context) string {
	v, ok := pctx.Get(pipeline.KeyPreamble)
	if !ok {
		return prompt
	}
	preamble, ok := v.(string)
	if !ok || preamble == "" {
		return prompt
	}
	return preamble + "\n\n" + prompt
}

// withLastResponse merges a 200-char-truncated copy of response into an
// Outcome's context updates under last_response, the convention Codergen
// and CodingAgent both follow.
func withLastResponse(o pipeline.Outcome, response string, limit int) pipeline.Outcome {
	if o.ContextUpdates == nil {
		o.ContextUpdates = map[string]any{}
	}
	o.ContextUpdates[pipeline.KeyLastResponse] = truncateString(response, limit)
	return o
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
