package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carlisting/internal/auth"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login 登录
// POST /api/login，JSON 或表单提交 username/password
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		// 无法解析的请求体按凭据错误处理
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid username or password"})
		return
	}

	session, err := h.gate.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid username or password"})
			return
		}
		h.logger.Error("Failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}

	h.setSessionCookie(c, session.Token, int(h.gate.TTL().Seconds()))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login successful"})
}

// Logout 退出登录，未登录时同样成功
func (h *Handler) Logout(c *gin.Context) {
	if token, err := c.Cookie(SessionCookie); err == nil {
		if err := h.gate.Logout(c.Request.Context(), token); err != nil {
			h.logger.Warn("Failed to expire session", zap.Error(err))
		}
	}

	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

// SessionStatus 前端查询是否已登录
func (h *Handler) SessionStatus(c *gin.Context) {
	loggedIn := false
	if token, err := c.Cookie(SessionCookie); err == nil {
		_, err := h.gate.Require(c.Request.Context(), token)
		loggedIn = err == nil
	}
	c.JSON(http.StatusOK, gin.H{"logged_in": loggedIn})
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, value, maxAge, "/", "", h.opts.CookieSecure, true)
}
