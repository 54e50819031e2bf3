package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// RedisTier shares artifacts between gateway instances.
type RedisTier struct {
	client *redis.Client
}

func NewRedisTier(redisURL string) (*RedisTier, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisTier{client: redis.NewClient(opt)}, nil
}

func NewRedisTierFromClient(client *redis.Client) *RedisTier {
	return &RedisTier{client: client}
}

func (t *RedisTier) key(fingerprint string) string {
	return fmt.Sprintf("artifact:%s", fingerprint)
}

func (t *RedisTier) Get(ctx context.Context, fingerprint string) (models.ArtifactResult, bool, error) {
	data, err := t.client.Get(ctx, t.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ArtifactResult{}, false, nil
	}
	if err != nil {
		return models.ArtifactResult{}, false, err
	}

	var art models.ArtifactResult
	if err := json.Unmarshal(data, &art); err != nil {
		return models.ArtifactResult{}, false, fmt.Errorf("decode cached artifact: %w", err)
	}
	return art, true, nil
}

func (t *RedisTier) Set(ctx context.Context, fingerprint string, art models.ArtifactResult, ttl time.Duration) error {
	data, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return t.client.Set(ctx, t.key(fingerprint), data, ttl).Err()
}

func (t *RedisTier) Close() error {
	return t.client.Close()
}
