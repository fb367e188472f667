package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"Leviosa/backend/go/internal/models"
)

// Registry records metadata about stored uploads.
type Registry interface {
	Put(ctx context.Context, info models.UploadInfo) error
	// Get returns models.ErrNotFound when nothing is recorded for name.
	Get(ctx context.Context, name string) (models.UploadInfo, error)
}

const uploadKeyPrefix = "leviosa:upload:"

// RedisRegistry stores upload metadata as JSON strings with an expiry.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry creates a registry. ttl <= 0 keeps entries forever.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisRegistry{client: client, ttl: ttl}
}

func (r *RedisRegistry) Put(ctx context.Context, info models.UploadInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, uploadKeyPrefix+info.Filename, data, r.ttl).Err()
}

func (r *RedisRegistry) Get(ctx context.Context, name string) (models.UploadInfo, error) {
	var info models.UploadInfo
	data, err := r.client.Get(ctx, uploadKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return info, fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("corrupt upload record %s: %w", name, err)
	}
	return info, nil
}

// MemoryRegistry is the in-process fallback used when Redis is not configured.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]models.UploadInfo
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]models.UploadInfo)}
}

func (m *MemoryRegistry) Put(_ context.Context, info models.UploadInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[info.Filename] = info
	return nil
}

func (m *MemoryRegistry) Get(_ context.Context, name string) (models.UploadInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.entries[name]
	if !ok {
		return models.UploadInfo{}, fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	return info, nil
}
