package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows the POS frontend (served from another origin during
// development) to call the API. Retry-After is exposed so the frontend can
// back off when the rate limiter trips; X-Request-ID so it can correlate a
// sale across retries.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
