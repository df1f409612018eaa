package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "carlisting:session:"

// RedisStore 基于 Redis 的会话存储，多实例部署时共享登录状态
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 会话存储，addr 可带 redis:// 前缀
func NewRedisStore(addr, password string, db int) *RedisStore {
	addr = strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client}
}

// NewRedisStoreWithClient 使用已有客户端
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(token string) string {
	return redisKeyPrefix + token
}

// Ping 检查 Redis 连通性
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get 读取会话
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Set 保存会话，键的 TTL 与会话有效期一致
func (s *RedisStore) Set(ctx context.Context, session *Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Expire 删除会话
func (s *RedisStore) Expire(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
