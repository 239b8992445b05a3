package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns each request an id and hangs a request-scoped
// logger off the request context, so every log line downstream carries the id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)

		logger := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()
	}
}

// CORSMiddleware allows cross-origin requests from the configured origins.
// An empty list or a "*" entry allows any origin.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, "+requestIDHeader)
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggingMiddleware writes one line per request through the request-scoped
// logger installed by RequestIDMiddleware. Server errors log at error level.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger := zerolog.Ctx(c.Request.Context())
		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", strings.Join(c.Errors.Errors(), "; "))
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("API request")
	}
}
