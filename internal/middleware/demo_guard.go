package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProtectDemoFamily rejects mutating requests for demo families so the
// shared demo calendar stays in its seeded state. Reads pass through.
func ProtectDemoFamily() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		family, exists := GetFamily(c)
		if exists && family.Demo {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "The demo family is read-only",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
