package threads

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "steward:thread:"

type RedisConfig struct {
	Addr     string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password string        `json:"password" yaml:"password" mapstructure:"password"`
	DB       int           `json:"db" yaml:"db" mapstructure:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	// KeyPrefix namespaces thread keys; defaults to "steward:thread:".
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key-prefix"`
}

// RedisStore keeps each thread as one JSON value whose expiry is reset on save.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Addr)
	}
	return NewRedisStoreFromClient(client, cfg), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + threadID
}

func (s *RedisStore) Load(ctx context.Context, threadID string) ([]engine.Message, error) {
	raw, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load thread %s", threadID)
	}
	var msgs []engine.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, errors.Wrapf(err, "decode thread %s", threadID)
	}
	return msgs, nil
}

func (s *RedisStore) Save(ctx context.Context, threadID string, messages []engine.Message) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return errors.Wrapf(err, "encode thread %s", threadID)
	}
	if err := s.client.Set(ctx, s.key(threadID), raw, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save thread %s", threadID)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return errors.Wrapf(err, "delete thread %s", threadID)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
