package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentflowhq/agentrt/pipeline"
)

// RedisStore persists checkpoints in Redis under <prefix><runID>, for
// engine deployments running multiple workers against shared state
// instead of a local filesystem.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore using client, namespacing keys under
// prefix (e.g. "agentrt:checkpoint:").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(runID string) string {
	return s.prefix + runID
}

// Save writes cp to Redis with no expiry; callers that want retention
// limits should configure one externally (e.g. via Redis maxmemory
// policy) rather than relying on a TTL here, since a checkpoint must
// survive until the run either completes or is explicitly cleaned up.
func (s *RedisStore) Save(ctx context.Context, runID string, cp *pipeline.Checkpoint) error {
	encoded, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(runID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("checkpoint: redis set: %w", err)
	}
	return nil
}

// Load reads the checkpoint for runID, if one exists.
func (s *RedisStore) Load(ctx context.Context, runID string) (*pipeline.Checkpoint, error) {
	raw, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: redis get: %w", err)
	}
	return pipeline.DecodeCheckpoint(raw)
}
