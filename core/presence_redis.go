package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisPresenceConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisPresence keeps the presence refcounts in Redis so that multiple
// gateway processes agree on who is online. Layout:
//
//	{prefix}:online  SET<user_id>   users with at least one live connection
//	{prefix}:refs    HASH user_id -> connection count across all processes
type RedisPresence struct {
	client *redis.Client
	prefix string
}

func NewRedisPresence(cfg RedisPresenceConfig) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "presence"
	}
	return &RedisPresence{client: client, prefix: prefix}, nil
}

func (p *RedisPresence) onlineKey() string {
	return p.prefix + ":online"
}

func (p *RedisPresence) refsKey() string {
	return p.prefix + ":refs"
}

func (p *RedisPresence) Connect(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.HIncrBy(ctx, p.refsKey(), userID, 1).Result()
	if err != nil {
		return false, fmt.Errorf("incr presence ref: %w", err)
	}
	if n != 1 {
		return false, nil
	}
	if err := p.client.SAdd(ctx, p.onlineKey(), userID).Err(); err != nil {
		return false, fmt.Errorf("add to online set: %w", err)
	}
	return true, nil
}

func (p *RedisPresence) Disconnect(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.HIncrBy(ctx, p.refsKey(), userID, -1).Result()
	if err != nil {
		return false, fmt.Errorf("decr presence ref: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	pipe := p.client.TxPipeline()
	pipe.HDel(ctx, p.refsKey(), userID)
	pipe.SRem(ctx, p.onlineKey(), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove from online set: %w", err)
	}
	return true, nil
}

func (p *RedisPresence) Snapshot(ctx context.Context) ([]string, error) {
	users, err := p.client.SMembers(ctx, p.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read online set: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}
