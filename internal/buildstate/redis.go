package buildstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/order-reconciler/internal/domain"
)

// RedisRepository stores the state as a JSON string under StateKey.
type RedisRepository struct {
	client *redis.Client
	key    string
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client, key: StateKey}
}

func (r *RedisRepository) Load(ctx context.Context) (*domain.BuildState, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load build state: %w", err)
	}
	return decodeState(raw)
}

func (r *RedisRepository) Save(ctx context.Context, s *domain.BuildState) error {
	raw, err := encodeState(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save build state: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("delete build state: %w", err)
	}
	return nil
}

// RedisOrderIndex keeps committed order keys in a Redis set.
type RedisOrderIndex struct {
	client *redis.Client
	key    string
}

func NewRedisOrderIndex(client *redis.Client) *RedisOrderIndex {
	return &RedisOrderIndex{client: client, key: SeenOrdersKey}
}

func (x *RedisOrderIndex) Contains(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(keys) == 0 {
		return out, nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	flags, err := x.client.SMIsMember(ctx, x.key, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("check seen orders: %w", err)
	}
	for i, ok := range flags {
		if ok {
			out[keys[i]] = true
		}
	}
	return out, nil
}

func (x *RedisOrderIndex) Add(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := x.client.SAdd(ctx, x.key, members...).Err(); err != nil {
		return fmt.Errorf("record seen orders: %w", err)
	}
	return nil
}

func (x *RedisOrderIndex) Reset(ctx context.Context) error {
	if err := x.client.Del(ctx, x.key).Err(); err != nil {
		return fmt.Errorf("reset seen orders: %w", err)
	}
	return nil
}
