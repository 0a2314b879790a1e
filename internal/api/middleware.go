package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"socialmetrics/internal/logging"
	"socialmetrics/internal/response"
)

const (
	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-ID"
)

var errUnauthorized = errors.New("missing or invalid API key")

// Authorizer decides whether a request may query profiles.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// StaticKeys accepts requests carrying one of a fixed set of X-API-Key values.
// With no keys configured every request is allowed.
type StaticKeys struct {
	keys [][]byte
}

func NewStaticKeys(keys []string) *StaticKeys {
	s := &StaticKeys{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s.keys = append(s.keys, []byte(k))
		}
	}
	return s
}

func (s *StaticKeys) Authorize(r *http.Request) error {
	if len(s.keys) == 0 {
		return nil
	}
	got := []byte(r.Header.Get(apiKeyHeader))
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare(got, k) == 1 {
			return nil
		}
	}
	return errUnauthorized
}

func isPublicRoute(path string) bool {
	return path == "/health" || path == "/metrics"
}

func AuthMiddleware(a Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a == nil || isPublicRoute(c.Request.URL.Path) {
			c.Next()
			return
		}
		if err := a.Authorize(c.Request); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.NewError(http.StatusUnauthorized, err))
			return
		}
		c.Next()
	}
}

func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// RequestIDMiddleware propagates the caller's X-Request-ID or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Info("request", map[string]any{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"took_ms":    time.Since(start).Milliseconds(),
		})
	}
}
