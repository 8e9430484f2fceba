package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// requireLocalClient refuses requests that carry an Origin header or lack the
// install token. Writes must be JSON.
func requireLocalClient(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			logger.Warn("rejected browser request",
				zap.String("origin", origin),
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cross-origin requests are not allowed"})
			return
		}

		if !validToken(token, c.GetHeader("Authorization")) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid api token"})
			return
		}

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut:
			if c.ContentType() != gin.MIMEJSON {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be application/json"})
				return
			}
		}
		c.Next()
	}
}

func validToken(want, header string) bool {
	if want == "" || !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	got := strings.TrimPrefix(header, bearerPrefix)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
