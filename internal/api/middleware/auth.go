package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/journal_server/internal/pkg/jwt"
	"github.com/qs3c/journal_server/internal/pkg/response"
)

const (
	UserIDKey     = "userID"
	OperatorIDKey = "operatorID"
)

// bearerToken 从 Authorization 头中取出 token
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.AuthError(c, "请提供认证信息")
		return "", false
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		response.AuthError(c, "认证格式错误")
		return "", false
	}
	return tokenString, true
}

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// AdminAuth 管理端认证，仅接受 admin scope 的 token（计费回调、优惠码管理）
func AdminAuth(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Abort()
			return
		}

		claims, err := jwt.ParseAdminToken(tokenString, adminSecret)
		if err != nil {
			response.PermissionError(c, "需要管理员权限")
			c.Abort()
			return
		}

		c.Set(OperatorIDKey, claims.UserID)
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// GetOperatorID 从上下文获取管理员 ID
func GetOperatorID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(OperatorIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
