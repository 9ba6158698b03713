package httpmiddleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"linkzip.local/internal/platform/auth"
)

// parseBearer Authorization: Bearer <token>，格式不对返回空串
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthRequired 校验 JWT，身份写进 request context
func AuthRequired(ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			AbortWithError(c, http.StatusUnauthorized, "missing authorization header")
			return
		}
		token := parseBearer(header)
		if token == "" {
			AbortWithError(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		id, err := ts.Verify(token)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.GetIdentity(c.Request.Context())
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		if id.Role != role {
			AbortWithError(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

// TokenMatcher 校验路径里的管理 token。配置了 bcrypt hash 时只认 hash。
type TokenMatcher struct {
	token []byte
	hash  []byte
}

func NewTokenMatcher(token, hash string) *TokenMatcher {
	m := &TokenMatcher{}
	if hash != "" {
		m.hash = []byte(hash)
	} else {
		m.token = []byte(token)
	}
	return m
}

func (m *TokenMatcher) Match(candidate string) bool {
	if candidate == "" {
		return false
	}
	if m.hash != nil {
		return bcrypt.CompareHashAndPassword(m.hash, []byte(candidate)) == nil
	}
	if len(m.token) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(m.token, []byte(candidate)) == 1
}

// AdminToken 路由参数 param 里的 token 不匹配时 401
func AdminToken(m *TokenMatcher, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Match(c.Param(param)) {
			AbortWithError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}
