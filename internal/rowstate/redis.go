package rowstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry shares row state between API replicas. Each kind is one
// hash; its fields are "action:id" counters.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry connects to redisURL and verifies the connection.
func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisRegistryWithClient(client), nil
}

// NewRedisRegistryWithClient creates a registry from an existing client
func NewRedisRegistryWithClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		prefix: "rowstate:",
		// A crashed replica can leave counters behind; the hash expires
		// once no action has started for this long.
		ttl: 10 * time.Minute,
	}
}

func (r *RedisRegistry) key(kind string) string {
	return r.prefix + kind
}

func (r *RedisRegistry) Begin(ctx context.Context, kind string, id uint, action Action) error {
	key := r.key(kind)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field(action, id), 1)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("begin %s %s: %w", kind, field(action, id), err)
	}
	return nil
}

// endScript decrements a counter and removes it at zero in one step, so a
// concurrent Begin can never be deleted.
var endScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

func (r *RedisRegistry) End(ctx context.Context, kind string, id uint, action Action) error {
	f := field(action, id)
	if err := endScript.Run(ctx, r.client, []string{r.key(kind)}, f).Err(); err != nil {
		return fmt.Errorf("end %s %s: %w", kind, f, err)
	}
	return nil
}

func (r *RedisRegistry) InFlight(ctx context.Context, kind string) ([]Entry, error) {
	values, err := r.client.HGetAll(ctx, r.key(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s row state: %w", kind, err)
	}
	entries := make([]Entry, 0, len(values))
	for f, raw := range values {
		count, err := strconv.Atoi(raw)
		if err != nil || count <= 0 {
			continue
		}
		action, id, err := parseField(f)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{ID: id, Action: action, Count: count})
	}
	sortEntries(entries)
	return entries, nil
}

// Close closes the Redis connection
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
