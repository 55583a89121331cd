package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps connectivity failures.
var ErrRedisUnavailable = errors.New("vault: redis unavailable")

// Redis is a Vault shared by every console replica.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis vault. Keys are namespaced under prefix.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "medstore"
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) credsKey(workspace string) string {
	return r.prefix + ":creds:" + workspace
}

func (r *Redis) claimKey(key string) string {
	return r.prefix + ":claim:" + key
}

func (r *Redis) Load(ctx context.Context, workspace string) (Credentials, error) {
	values, err := r.rdb.HGetAll(ctx, r.credsKey(workspace)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return Credentials(values), nil
}

func (r *Redis) Save(ctx context.Context, workspace string, creds Credentials) error {
	key := r.credsKey(workspace)
	if len(creds) == 0 {
		return r.Delete(ctx, workspace)
	}

	fields := make(map[string]interface{}, len(creds))
	for name, value := range creds {
		fields[name] = value
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, workspace string) error {
	if err := r.rdb.Del(ctx, r.credsKey(workspace)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *Redis) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.claimKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.claimKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
