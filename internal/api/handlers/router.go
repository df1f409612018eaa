package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carlisting/pkg/ws"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 健康检查，带不带结尾斜杠都可以
		api.GET("/health", h.HealthCheck)
		api.GET("/health/", h.HealthCheck)

		// 登录
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)
		api.GET("/session", h.SessionStatus)

		// 车辆，读公开，写需要登录
		api.GET("/cars", h.ListCars)
		api.GET("/cars/:id", h.GetCar)

		write := api.Group("/cars", h.RequireSession())
		write.POST("", h.CreateCar)
		write.PUT("/:id", h.UpdateCar)
		write.DELETE("/:id", h.DeleteCar)
	}

	// WebSocket
	if h.wsHub != nil {
		r.GET("/ws", h.HandleWebSocket)
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	if !client.Register() {
		conn.Close()
		return
	}

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查，数据库不可用时仍返回 200
func (h *Handler) HealthCheck(c *gin.Context) {
	dbOK := false
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.PingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Database ping failed", zap.Error(err))
		} else {
			dbOK = true
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"db": dbOK,
	})
}
