package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/utils"
)

// 上下文键
const (
	ContextOperator = "operator"
	ContextRole     = "role"
)

// AuthMiddleware JWT认证中间件
//
// jwt 为 nil 时不校验令牌，所有请求视为操作者。
type AuthMiddleware struct {
	jwt *utils.JWTManager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwt *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Enabled 是否启用了认证
func (m *AuthMiddleware) Enabled() bool {
	return m.jwt != nil
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.jwt == nil {
			c.Set(ContextRole, utils.RoleOperator)
			c.Next()
			return
		}

		token := m.extractToken(c)
		if token == "" {
			abortWith(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			abortWith(c, err)
			return
		}

		c.Set(ContextOperator, claims.Operator)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole 需要特定角色，须放在 RequireAuth 之后
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := GetRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "INSUFFICIENT_PERMISSION",
			"message": "权限不足",
		})
		c.Abort()
	}
}

// extractToken 从请求中提取令牌
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	// 1. Authorization Header (Bearer Token)
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// 2. X-Access-Token Header
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. Query参数（浏览器WebSocket无法设置Header）
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

func abortWith(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrAuthentication)
	}
	c.JSON(appErr.HTTPStatus(), gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
	})
	c.Abort()
}

// GetOperator 从上下文获取操作者
func GetOperator(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ContextOperator); exists {
		if name, ok := v.(string); ok {
			return name, true
		}
	}
	return "", false
}

// GetRole 从上下文获取角色
func GetRole(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ContextRole); exists {
		if r, ok := v.(string); ok {
			return r, true
		}
	}
	return "", false
}

// RequestLogger 记录请求日志
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
