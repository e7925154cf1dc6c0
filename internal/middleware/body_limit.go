package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultBodyBytes bounds ordinary JSON requests.
	DefaultBodyBytes = 1 << 20
	// LoginBodyBytes bounds credential requests.
	LoginBodyBytes = 16 << 10
	// ImportBodyBytes bounds config import documents.
	ImportBodyBytes = 8 << 20
)

// BodySizeLimit limits the request body to maxBytes. Requests announcing a
// larger body are rejected before any handler runs.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
