package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumikids/tutorflow/types"
)

// RedisStoreConfig configures the Redis-backed conversation store.
type RedisStoreConfig struct {
	Addr      string        `yaml:"addr" json:"addr"`
	Password  string        `yaml:"password" json:"password"`
	DB        int           `yaml:"db" json:"db"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	// SessionCap bounds messages retained per session; 0 uses the default.
	SessionCap int `yaml:"session_cap" json:"session_cap"`
}

// RedisStore keeps each session's history in a Redis list of JSON-encoded
// messages. Suitable for multi-instance deployments where sessions move
// between processes.
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	ttl        time.Duration
	sessionCap int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg), nil
}

// NewRedisStoreWithClient wraps an existing client; tests use this with a
// miniredis-backed client.
func NewRedisStoreWithClient(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tutorflow:"
	}
	sessionCap := cfg.SessionCap
	if sessionCap <= 0 {
		sessionCap = defaultSessionCap
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  prefix,
		ttl:        ttl,
		sessionCap: sessionCap,
	}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks store health.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.keyPrefix + "history:" + sessionID
}

func (s *RedisStore) History(ctx context.Context, sessionID string, limit int) ([]types.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.sessionKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}

	messages := make([]types.Message, 0, len(raw))
	for _, item := range raw {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode session message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, messages ...types.Message) error {
	if len(messages) == 0 {
		return nil
	}

	key := s.sessionKey(sessionID)
	encoded := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode session message: %w", err)
		}
		encoded = append(encoded, data)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, encoded...)
	pipe.LTrim(ctx, key, int64(-s.sessionCap), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session history: %w", err)
	}
	return nil
}
