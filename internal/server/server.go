// Package server exposes token exchange, form listing and export downloads
// over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/happyhackingspace/formflat/internal/apperr"
	"github.com/happyhackingspace/formflat/internal/export"
	"github.com/happyhackingspace/formflat/internal/kobo"
	"github.com/happyhackingspace/formflat/internal/options"
)

// Config wires the server to the upstream API and the export settings.
type Config struct {
	Client        *kobo.Client
	Options       options.Options
	DefaultFormat export.Format
	StaticDir     string
}

// Server wraps the gin engine.
type Server struct {
	Engine *gin.Engine
	cfg    Config
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Client == nil {
		cfg.Client = kobo.New("")
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = export.FormatXLSX
	}
	s := &Server{Engine: gin.New(), cfg: cfg}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.Engine
	r.Use(gin.Recovery(), RequestLogger())

	r.GET("/health", s.health)
	r.POST("/fetch-token", s.fetchToken)
	r.POST("/fetch-forms", s.fetchForms)
	r.POST("/download-data/:pk", s.downloadData)

	if s.cfg.StaticDir != "" {
		r.Static("/static", s.cfg.StaticDir)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(s.cfg.StaticDir, "index.html"))
		})
	}
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			slog.Error("HTTP request", fields...)
		case status >= 400:
			slog.Warn("HTTP request", fields...)
		default:
			slog.Info("HTTP request", fields...)
		}
	}
}

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError under an "error" key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Error codes.
const (
	CodeBadRequest = "bad_request"
	CodeAuth       = "auth_failed"
	CodeSourceData = "source_data"
	CodeInternal   = "internal"
)

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondJobError maps a job error to its status.
func respondJobError(c *gin.Context, err error) {
	switch {
	case apperr.IsAuth(err):
		respondError(c, http.StatusUnauthorized, CodeAuth, err)
	case apperr.IsSourceData(err):
		respondError(c, http.StatusBadGateway, CodeSourceData, err)
	default:
		slog.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
	}
}
