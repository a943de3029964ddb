package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const contextAccountKey = "account_id"

// defaultAccount is the tenant used when the caller does not name one.
const defaultAccount = "default"

// auth enforces the configured API token and resolves the tenant from the
// X-Account-ID header. An empty configured token disables authentication.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIToken != "" {
			header := strings.TrimSpace(c.GetHeader("Authorization"))

			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			if strings.TrimSpace(strings.TrimPrefix(header, prefix)) != s.cfg.APIToken {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}

		account := strings.TrimSpace(c.GetHeader("X-Account-ID"))
		if account == "" {
			account = defaultAccount
		}
		c.Set(contextAccountKey, account)
		c.Next()
	}
}

func accountFromContext(c *gin.Context) string {
	if account, ok := c.Get(contextAccountKey); ok {
		if s, ok := account.(string); ok {
			return s
		}
	}
	return defaultAccount
}
