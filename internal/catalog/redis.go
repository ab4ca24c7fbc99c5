package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore держит товары в Redis, общий кеш для нескольких инстансов.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func productKey(id string) string {
	return fmt.Sprintf("catalog:product:%s", id)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Product, bool, error) {
	data, err := s.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("decode cached product %s: %w", id, err)
	}
	return &p, true, nil
}

func (s *RedisStore) Set(ctx context.Context, p *Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, productKey(p.ID), data, s.ttl).Err()
}
