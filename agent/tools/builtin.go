package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentflowhq/agentrt/provider/model"
)

// RegisterBuiltins registers the shell/read/write tools backed by env into
// r. Handlers return their full, untruncated output — the agent session
// loop applies output truncation uniformly to every tool result before it
// reaches the model, so tool implementations need not duplicate
// that policy.
func RegisterBuiltins(r *Registry, env Environment) error {
	for _, t := range []Tool{
		shellTool(env),
		readFileTool(env),
		writeFileTool(env),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func shellTool(env Environment) Tool {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":     map[string]any{"type": "string", "description": "Shell command to run via /bin/sh -c."},
			"cwd":         map[string]any{"type": "string", "description": "Working directory, relative to the workspace root."},
			"timeout_sec": map[string]any{"type": "integer", "description": "Maximum seconds to allow the command to run.", "minimum": 0},
		},
		"required": []string{"command"},
	})
	return Tool{
		Definition: model.ToolDefinition{
			Name:        "shell",
			Description: "Run a shell command in the workspace and return its stdout/stderr/exit code.",
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			var in struct {
				Command    string `json:"command"`
				Cwd        string `json:"cwd"`
				TimeoutSec int    `json:"timeout_sec"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
			}
			timeout := time.Duration(in.TimeoutSec) * time.Second
			res, err := env.Run(ctx, in.Command, in.Cwd, nil, "", timeout)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			text := fmt.Sprintf("exit_code=%d\n--- stdout ---\n%s\n--- stderr ---\n%s", res.ExitCode, res.Stdout, res.Stderr)
			return Result{Content: []model.Part{model.TextPart{Text: text}}, IsError: res.ExitCode != 0}, nil
		},
	}
}

func readFileTool(env Environment) Tool {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":      map[string]any{"type": "string", "description": "Path to the file, relative to the workspace root."},
			"offset":    map[string]any{"type": "integer", "description": "Byte offset to start reading from.", "minimum": 0},
			"max_bytes": map[string]any{"type": "integer", "description": "Maximum bytes to read.", "minimum": 0},
		},
		"required": []string{"path"},
	})
	return Tool{
		Definition: model.ToolDefinition{
			Name:        "read_file",
			Description: "Read a file from the workspace with an optional byte offset and limit.",
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			var in struct {
				Path     string `json:"path"`
				Offset   int64  `json:"offset"`
				MaxBytes int64  `json:"max_bytes"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
			}
			data, truncated, err := env.ReadFile(ctx, in.Path, in.Offset, in.MaxBytes)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			text := string(data)
			if truncated {
				text += "\n[truncated: more data available past max_bytes/offset]"
			}
			return TextResult(text), nil
		},
	}
}

func writeFileTool(env Environment) Tool {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Path to the file, relative to the workspace root."},
			"content": map[string]any{"type": "string", "description": "Content to write."},
			"append":  map[string]any{"type": "boolean", "description": "Append instead of overwriting."},
		},
		"required": []string{"path", "content"},
	})
	return Tool{
		Definition: model.ToolDefinition{
			Name:        "write_file",
			Description: "Write (or append to) a file in the workspace.",
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			var in struct {
				Path    string `json:"path"`
				Content string `json:"content"`
				Append  bool   `json:"append"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
			}
			if err := env.WriteFile(ctx, in.Path, []byte(in.Content), in.Append); err != nil {
				return ErrorResult(err.Error()), nil
			}
			return TextResult(fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)), nil
		},
	}
}
