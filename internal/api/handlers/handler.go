package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/carlisting/internal/apperr"
	"github.com/langchou/carlisting/internal/auth"
	"github.com/langchou/carlisting/internal/service"
	"github.com/langchou/carlisting/pkg/ws"
)

// SessionCookie 会话 cookie 名称
const SessionCookie = "carlisting_session"

// Pinger 健康检查用的数据库探测
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options HTTP 层的可调参数
type Options struct {
	CookieSecure   bool
	MaxUploadBytes int64
	CORSOrigins    []string      // 为空时回显任意 Origin
	PingTimeout    time.Duration // 健康检查探测数据库的超时
}

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	listing  *service.ListingService
	gate     *auth.Gate
	db       Pinger
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
	opts     Options
}

// NewHandler 创建处理器，wsHub 为 nil 时不注册 /ws
func NewHandler(
	logger *zap.Logger,
	listing *service.ListingService,
	gate *auth.Gate,
	db Pinger,
	wsHub *ws.Hub,
	opts Options,
) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}

	h := &Handler{
		logger:  logger,
		listing: listing,
		gate:    gate,
		db:      db,
		wsHub:   wsHub,
		opts:    opts,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return h.originAllowed(r.Header.Get("Origin"))
		},
	}
	return h
}

// respondError 按错误类别输出 {"error": msg}，非 *apperr.Error 一律 500
func (h *Handler) respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		h.logger.Error("Unhandled error", zap.Error(err), zap.String("path", c.FullPath()))
		appErr = apperr.Store(err)
	}
	c.AbortWithStatusJSON(appErr.Kind.Status(), gin.H{"error": appErr.Message})
}

// originAllowed 未配置白名单时接受任意来源
func (h *Handler) originAllowed(origin string) bool {
	if origin == "" || len(h.opts.CORSOrigins) == 0 {
		return true
	}
	for _, o := range h.opts.CORSOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
