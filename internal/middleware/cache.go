package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// CacheControl lets the respondent's browser reuse a response for
// maxAgeSeconds without sharing it with intermediaries.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}

// NoStore marks responses that change on every call, like session state.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
