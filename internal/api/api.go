// Package api exposes the query service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"socialmetrics/internal/logging"
	"socialmetrics/internal/metrics"
	"socialmetrics/internal/model"
	"socialmetrics/internal/response"
)

var errBadParameter = errors.New("bad query parameter")

// Queries is the query service behind the HTTP surface.
type Queries interface {
	Live(ctx context.Context, profileID string, forceRefresh bool) (response.Live, error)
	History(ctx context.Context, profileID string, from, to *time.Time) (response.History, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Queries Queries
	Store   Pinger
	Auth    Authorizer
}

// NewRouter wires middleware and routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), AccessLogMiddleware(), SecurityHeadersMiddleware(), AuthMiddleware(h.Auth))
	r.GET("/health", h.HealthCheckHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/twitter/:username", h.ProfileHandler)
	return r
}

func (h *Handler) ProfileHandler(c *gin.Context) {
	ctx := c.Request.Context()
	username := c.Param("username")

	useCache, err := boolParam(c, "cache", true)
	if err != nil {
		h.fail(c, err)
		return
	}
	wantHistory, err := boolParam(c, "history", false)
	if err != nil {
		h.fail(c, err)
		return
	}

	if wantHistory {
		from, err := dateParam(c, "from")
		if err != nil {
			h.fail(c, err)
			return
		}
		to, err := dateParam(c, "to")
		if err != nil {
			h.fail(c, err)
			return
		}
		body, err := h.Queries.History(ctx, username, from, to)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, body)
		return
	}

	body, err := h.Queries.Live(ctx, username, !useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "failure", "details": "store not initialized"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "failure", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("query failed", map[string]any{
			"request_id": c.GetString("request_id"),
			"path":       c.Request.URL.Path,
			"status":     status,
			"error":      err,
		})
	}
	body := response.NewError(status, err)
	if status == http.StatusInternalServerError {
		body.Error = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, body)
}

// StatusFor maps a query error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrInvalidProfile), errors.Is(err, errBadParameter):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrMalformedUpstreamData):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrUpstreamUnavailable), errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func boolParam(c *gin.Context, name string, def bool) (bool, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", errBadParameter, name, v)
	}
	return b, nil
}

func dateParam(c *gin.Context, name string) (*time.Time, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q is not YYYY-MM-DD", model.ErrInvalidRange, name, v)
	}
	return &d, nil
}

// Serve runs the HTTP server until ctx ends, then drains in-flight requests.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.Info("listening", map[string]any{"addr": addr})
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
