package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Checkpoint is a JSON snapshot of execution state, written with snake_case
// keys.
type Checkpoint struct {
	Timestamp      time.Time      `json:"timestamp"`
	CurrentNode    string         `json:"current_node"`
	CompletedNodes []string       `json:"completed_nodes"`
	NodeRetries    map[string]int `json:"node_retries"`
	Context        map[string]any `json:"context"`
	Logs           []string       `json:"logs"`
}

// NewCheckpoint builds a Checkpoint, taking defensive copies of
// completedNodes, nodeRetries, ctx, and logs so later mutation of the
// caller's collections does not affect the checkpoint.
func NewCheckpoint(currentNode string, completedNodes []string, nodeRetries map[string]int, ctx map[string]any, logs []string) *Checkpoint {
	cn := make([]string, len(completedNodes))
	copy(cn, completedNodes)

	nr := make(map[string]int, len(nodeRetries))
	for k, v := range nodeRetries {
		nr[k] = v
	}

	c := make(map[string]any, len(ctx))
	for k, v := range ctx {
		c[k] = v
	}

	l := make([]string, len(logs))
	copy(l, logs)

	return &Checkpoint{
		Timestamp:      time.Now(),
		CurrentNode:    currentNode,
		CompletedNodes: cn,
		NodeRetries:    nr,
		Context:        c,
		Logs:           l,
	}
}

// Validate checks that a Checkpoint's completed_nodes and logs are arrays
// (non-nil slices). Whether current_node was present is checked while
// decoding, by DecodeCheckpoint.
func (c *Checkpoint) Validate() error {
	if c.CompletedNodes == nil {
		return fmt.Errorf("pipeline: checkpoint missing completed_nodes array")
	}
	if c.Logs == nil {
		return fmt.Errorf("pipeline: checkpoint missing logs array")
	}
	return nil
}

// DecodeCheckpoint parses raw JSON into a Checkpoint, validating its shape:
// current_node must be present as a string and completed_nodes/logs must be
// present as arrays (a checkpoint that omits them or sets them to null is
// rejected). Omitted node_retries/context default to empty maps.
func DecodeCheckpoint(raw []byte) (*Checkpoint, error) {
	var decoded struct {
		Timestamp      time.Time      `json:"timestamp"`
		CurrentNode    *string        `json:"current_node"`
		CompletedNodes []string       `json:"completed_nodes"`
		NodeRetries    map[string]int `json:"node_retries"`
		Context        map[string]any `json:"context"`
		Logs           []string       `json:"logs"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("pipeline: decode checkpoint: %w", err)
	}
	if decoded.CurrentNode == nil {
		return nil, fmt.Errorf("pipeline: checkpoint missing current_node string")
	}
	if decoded.CompletedNodes == nil {
		return nil, fmt.Errorf("pipeline: checkpoint missing completed_nodes array")
	}
	if decoded.Logs == nil {
		return nil, fmt.Errorf("pipeline: checkpoint missing logs array")
	}
	c := &Checkpoint{
		Timestamp:      decoded.Timestamp,
		CurrentNode:    *decoded.CurrentNode,
		CompletedNodes: decoded.CompletedNodes,
		NodeRetries:    decoded.NodeRetries,
		Context:        decoded.Context,
		Logs:           decoded.Logs,
	}
	if c.NodeRetries == nil {
		c.NodeRetries = map[string]int{}
	}
	if c.Context == nil {
		c.Context = map[string]any{}
	}
	return c, nil
}

// CheckpointStore persists and loads a Checkpoint for a given run. The
// engine has no default: with a nil EngineOptions.CheckpointStore it saves
// no checkpoint. pipeline/checkpoint.FileStore is a file-backed
// implementation; pipeline/checkpoint.RedisStore is an alternate backing
// for deployments running multiple engine workers against shared state.
type CheckpointStore interface {
	Save(ctx context.Context, runID string, cp *Checkpoint) error
	Load(ctx context.Context, runID string) (*Checkpoint, error)
}
