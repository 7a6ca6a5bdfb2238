// Package checkpoint provides CheckpointStore implementations: a
// file-backed default and a Redis-backed alternate for engine deployments
// that share state across multiple workers.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentflowhq/agentrt/pipeline"
)

// FileStore persists one checkpoint per run as
// <baseDir>/<runID>/checkpoint.json, writing atomically via a temp file
// plus rename so a crash mid-write never leaves a corrupt checkpoint
// behind.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore returns a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.baseDir, runID, "checkpoint.json")
}

// Save writes cp to disk, creating parent directories as needed.
func (s *FileStore) Save(_ context.Context, runID string, cp *pipeline.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	path := s.path(runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: rename temp file: %w", err)
	}
	return nil
}

// Load reads the checkpoint for runID, if one exists.
func (s *FileStore) Load(_ context.Context, runID string) (*pipeline.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}
	return pipeline.DecodeCheckpoint(raw)
}
