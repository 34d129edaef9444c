package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware grants the review dashboard access to the API. Allowed
// origins come from configuration; an entry is an exact origin, a bare
// "*", or a subdomain wildcard such as https://*.shelfmatch.io.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		c.Writer.Header().Add("Vary", "Origin")

		if origin != "" && isAllowedOrigin(origin, allowedOrigins) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "3600")
		}

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// isAllowedOrigin checks if the origin matches any configured pattern
func isAllowedOrigin(origin string, allowedOrigins []string) bool {
	for _, pattern := range allowedOrigins {
		if originMatches(origin, pattern) {
			return true
		}
	}
	return false
}

// originMatches reports whether origin satisfies one pattern. The scheme
// must match exactly; a host of "*" matches any host and a host starting
// with "*." matches any subdomain (never the apex domain itself).
func originMatches(origin, pattern string) bool {
	if pattern == "*" {
		return true
	}

	scheme, host, ok := strings.Cut(pattern, "://")
	if !ok {
		return false
	}
	originScheme, originHost, ok := strings.Cut(origin, "://")
	if !ok || originScheme != scheme {
		return false
	}

	switch {
	case host == "*":
		return true
	case strings.HasPrefix(host, "*."):
		return strings.HasSuffix(originHost, host[1:])
	default:
		return originHost == host
	}
}

// LoggerMiddleware logs requests (simple version for now)
func LoggerMiddleware() gin.HandlerFunc {
	return gin.Logger()
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}
