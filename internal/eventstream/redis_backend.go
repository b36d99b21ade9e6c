package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/agentmail-core/agentmail/internal/tlsutil"
	"github.com/redis/go-redis/v9"
)

// RedisBackend mirrors published events into a Redis sorted set (score =
// seq), giving multiple dashboard processes a shared view of the event
// log instead of each holding its own disjoint in-memory ring. Events reach
// it only through explicit Mirror calls; Stream.Publish does not call
// Mirror. The in-process Stream remains the source of truth for sequence
// assignment, since Redis has no
// stake in which process produced an event. Modelled on
// RedisMessageStore's key-prefix and pipelined-write conventions.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisBackendConfig configures the shared mirror.
type RedisBackendConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL bounds how long a project's mirrored set is retained; zero means
	// no expiry is set (relies on retention/cleanup elsewhere).
	TTL time.Duration
	// TLS enables a hardened TLS connection to Redis, for deployments where
	// the mirror isn't reached over a trusted loopback/VPC link.
	TLS bool
}

// NewRedisBackend dials Redis and verifies connectivity with a short-lived
// ping, matching the fail-fast construction style of RedisMessageStore.
func NewRedisBackend(cfg RedisBackendConfig) (*RedisBackend, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("eventstream: connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agentmail:events:"
	}
	return &RedisBackend{client: client, keyPrefix: prefix, ttl: cfg.TTL}, nil
}

// Close releases the underlying Redis connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) setKey(projectID int64) string {
	return b.keyPrefix + strconv.FormatInt(projectID, 10)
}

// Mirror writes ev into the project's sorted set under its sequence
// number and returns any Redis error. Stream.Publish does not call it.
func (b *RedisBackend) Mirror(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	key := b.setKey(ev.ProjectID)
	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ev.Seq), Member: data})
	if b.ttl > 0 {
		pipe.Expire(ctx, key, b.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Since returns every mirrored event for projectID with seq > sinceSeq,
// oldest first, capped at limit (0 means no cap).
func (b *RedisBackend) Since(ctx context.Context, projectID, sinceSeq int64, limit int) ([]Event, error) {
	key := b.setKey(projectID)
	members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(sinceSeq+1, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(members))
	for _, m := range members {
		var ev Event
		if err := json.Unmarshal([]byte(m), &ev); err != nil {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
