package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvanfai123/moving-service-sub001/models"
)

// IdempotencyStore caches confirmation results by payment and intent
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*models.ConfirmResult, bool, error)
	// Put stores the result unless the key is already present
	Put(ctx context.Context, key string, result *models.ConfirmResult) error
}

func confirmKey(paymentID, intentID string) string {
	return "confirm:" + paymentID + ":" + intentID
}

// RedisIdempotencyStore keeps results in Redis so every instance sees them
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*models.ConfirmResult, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result models.ConfirmResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, result *models.ConfirmResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, key, data, s.ttl).Err()
}

type memoryEntry struct {
	result    models.ConfirmResult
	expiresAt time.Time
}

// MemoryIdempotencyStore is the process-local fallback used without Redis
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (*models.ConfirmResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.ttl > 0 && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	result := e.result
	return &result, true, nil
}

func (s *MemoryIdempotencyStore) Put(_ context.Context, key string, result *models.ConfirmResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && (s.ttl <= 0 || time.Now().Before(e.expiresAt)) {
		return nil
	}
	s.entries[key] = memoryEntry{result: *result, expiresAt: time.Now().Add(s.ttl)}
	return nil
}
