package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"wavely/internal/observability"

	"github.com/redis/go-redis/v9"
)

// family is the key prefix before the first colon, used as a metric label.
func family(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// GetJSON decodes the value at key into dest. found is false on a miss and
// when Redis is off.
func GetJSON(ctx context.Context, key string, dest any) (found bool, err error) {
	if client == nil {
		return false, nil
	}
	raw, err := client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A stale shape from an older build is treated as a miss and dropped.
		client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON stores v at key for ttl.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, raw, ttl).Err()
}

// Aside serves key from Redis when it can. On a miss it calls fetch, which
// must fill dest, and stores the result. Redis failures degrade to fetch;
// only fetch errors reach the caller.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	fam := family(key)
	found, err := GetJSON(ctx, key, dest)
	if found {
		observability.CacheLookups.WithLabelValues(fam, "hit").Inc()
		return nil
	}
	result := "miss"
	if err != nil {
		result = "error"
	}
	observability.CacheLookups.WithLabelValues(fam, result).Inc()

	if err := fetch(); err != nil {
		return err
	}
	_ = SetJSON(ctx, key, dest, ttl)
	return nil
}
