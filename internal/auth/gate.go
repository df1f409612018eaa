// Package auth 实现单管理员登录的会话闸门。
//
// 登录成功后签发一个随机令牌（通过 Cookie 携带），会话从签发时刻起固定有效
// TTL 时长，不会因访问而续期。凭据校验与会话存储都以接口注入。
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionTTL 默认会话有效期
const DefaultSessionTTL = 2 * time.Hour

var (
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrForbidden 缺少会话或会话已过期
	ErrForbidden = errors.New("login required")
	// ErrSessionNotFound 存储中没有该令牌
	ErrSessionNotFound = errors.New("session not found")
)

// CredentialVerifier 校验登录凭据
type CredentialVerifier interface {
	Verify(username, password string) bool
}

// StaticCredentials 由配置提供的一组固定用户名密码
type StaticCredentials struct {
	Username string
	Password string
}

// Verify 明文比较（恒定时间）
func (s StaticCredentials) Verify(username, password string) bool {
	if s.Username == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.Password)) == 1
	return userOK && passOK
}

// Session 登录会话
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired 会话在 now 时刻是否已过期
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore 会话存储
type SessionStore interface {
	Get(ctx context.Context, token string) (*Session, error)
	Set(ctx context.Context, session *Session, ttl time.Duration) error
	Expire(ctx context.Context, token string) error
}

// Gate 会话闸门
type Gate struct {
	logger   *zap.Logger
	verifier CredentialVerifier
	store    SessionStore
	ttl      time.Duration
	now      func() time.Time
}

// NewGate 创建会话闸门，ttl <= 0 时使用 DefaultSessionTTL
func NewGate(logger *zap.Logger, verifier CredentialVerifier, store SessionStore, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Gate{
		logger:   logger,
		verifier: verifier,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL 会话有效期
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Login 校验凭据并签发会话
func (g *Gate) Login(ctx context.Context, username, password string) (*Session, error) {
	if !g.verifier.Verify(username, password) {
		g.logger.Warn("Login rejected", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	now := g.now()
	session := &Session{
		Token:     uuid.NewString(),
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.store.Set(ctx, session, g.ttl); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	g.logger.Info("Admin logged in", zap.String("username", username), zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// Logout 注销会话，令牌为空或不存在时什么也不做
func (g *Gate) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := g.store.Expire(ctx, token); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

// Require 要求一个有效会话，否则返回 ErrForbidden。
// 存储本身出错时返回包装后的存储错误。
func (g *Gate) Require(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrForbidden
	}

	session, err := g.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if session.Expired(g.now()) {
		if err := g.store.Expire(ctx, token); err != nil {
			g.logger.Warn("Failed to drop expired session", zap.Error(err))
		}
		return nil, ErrForbidden
	}

	return session, nil
}
