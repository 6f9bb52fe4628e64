package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"notifyhub/internal/common"

	"github.com/gin-gonic/gin"
)

// Auth returns middleware that validates an API key against configured keys.
// The key may come from the X-API-Key header, an Authorization bearer token or
// a token query parameter, in that order. An empty key list disables auth.
func Auth(validKeys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(validKeys) == 0 {
			c.Next()
			return
		}

		apiKey := extractKey(c)
		if apiKey == "" {
			common.Error(c, http.StatusUnauthorized, "missing API key")
			c.Abort()
			return
		}

		if !isValidKey(apiKey, validKeys) {
			common.Error(c, http.StatusUnauthorized, "invalid API key")
			c.Abort()
			return
		}

		c.Next()
	}
}

func extractKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("token")
}

// isValidKey checks the provided key against the list of valid keys using constant-time comparison.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}
