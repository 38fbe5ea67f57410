package middleware

import (
	"strings"

	"alumnigate/pkg/jwt"
	"alumnigate/pkg/response"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
	contextClaims = "claims"
)

// AuthMiddleware 认证中间件
type AuthMiddleware struct {
	jwtManager *jwt.JWTManager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwtManager *jwt.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// RequireLogin 校验 Bearer 令牌并把调用方写入上下文
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "缺少或格式错误的认证头")
			c.Abort()
			return
		}

		claims, err := m.jwtManager.VerifyToken(raw)
		if err != nil {
			response.Unauthorized(c, "Token无效或已过期")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(contextClaims, claims)
		c.Next()
	}
}

// RequireRole 限定调用方角色，需在 RequireLogin 之后使用
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	denied := "权限不足：需要 " + strings.Join(roles, "/") + " 角色"

	return func(c *gin.Context) {
		claims := Caller(c)
		if claims == nil {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}
		if !allowed[claims.Role] {
			response.Forbidden(c, denied)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Caller 当前请求的调用方，未认证时为 nil
func Caller(c *gin.Context) *jwt.JWTClaims {
	v, ok := c.Get(contextClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*jwt.JWTClaims)
	return claims
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
