package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JSONStore keeps values of type T as JSON under "<prefix>:<id>".
type JSONStore[T any] struct {
	cache  *PGCache
	prefix string
	ttl    time.Duration
}

func NewJSONStore[T any](cache *PGCache, prefix string, ttl time.Duration) *JSONStore[T] {
	return &JSONStore[T]{cache: cache, prefix: prefix, ttl: ttl}
}

func (s *JSONStore[T]) key(id string) string {
	return s.prefix + ":" + id
}

// Save writes v and resets its TTL.
func (s *JSONStore[T]) Save(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.prefix, err)
	}
	return s.cache.Set(ctx, s.key(id), data, s.ttl)
}

// Load returns ErrCacheMiss for unknown and expired ids.
func (s *JSONStore[T]) Load(ctx context.Context, id string) (*T, error) {
	data, err := s.cache.Get(ctx, s.key(id))
	if errors.Is(err, ErrCacheExpired) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", s.prefix, err)
	}
	return &v, nil
}

func (s *JSONStore[T]) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, s.key(id))
}
