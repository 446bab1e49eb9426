// Package middleware provides HTTP middleware for the article API.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PayloadLimitErrorResponse represents the JSON response for payload too large errors.
type PayloadLimitErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	MaxBytes int64  `json:"maxBytes"`
}

// IsPayloadTooLarge reports whether err came from reading past the body limit.
func IsPayloadTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// PayloadLimit returns a middleware that limits the request body size.
//
// A declared Content-Length over the limit is rejected before the handler
// runs. Otherwise the body is wrapped with http.MaxBytesReader; a handler that
// hits the limit should record the read error with c.Error and write nothing,
// and the middleware answers 413.
func PayloadLimit(maxBytes int64, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			logOversizedRequest(logger, c, c.Request.ContentLength, maxBytes)
			respondPayloadTooLarge(c, maxBytes)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()

		if c.Writer.Written() {
			return
		}
		for _, ginErr := range c.Errors {
			if IsPayloadTooLarge(ginErr.Err) {
				logOversizedRequest(logger, c, -1, maxBytes)
				respondPayloadTooLarge(c, maxBytes)
				return
			}
		}
	}
}

func logOversizedRequest(logger zerolog.Logger, c *gin.Context, attemptedSize, maxBytes int64) {
	logger.Warn().
		Str("clientIP", c.ClientIP()).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int64("attemptedSize", attemptedSize).
		Int64("maxBytes", maxBytes).
		Msg("oversized request rejected")
}

func respondPayloadTooLarge(c *gin.Context, maxBytes int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, PayloadLimitErrorResponse{
		Error:    "payloadTooLarge",
		Message:  "request body exceeds the maximum allowed size",
		MaxBytes: maxBytes,
	})
}
