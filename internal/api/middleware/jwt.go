package middleware

import (
	"net/http"
	"strings"

	"skillcamp/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// Auth 校验 Bearer 令牌并将 userID 与 role 写入上下文。
func Auth(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			c.Abort()
			return
		}

		principal, err := issuer.Verify(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("userID", int(principal.UserID))
		c.Set("role", strings.TrimSpace(strings.ToLower(principal.Role)))
		c.Next()
	}
}

// RequireRoles 限制只有指定角色可以访问。
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[strings.TrimSpace(strings.ToLower(r))] = true
	}
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		roleStr, ok := role.(string)
		if !ok || !allowed[roleStr] {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
