// Package server exposes the bridge over HTTP.
//
//	GET  /export   - export a collection as a file download or stored artifact
//	POST /import   - import an uploaded file or stored artifact
//	GET  /health   - liveness
//	GET  /version  - build identity
//	GET  /config   - effective configuration, secrets omitted
//	GET  /metrics  - Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schemabounce/waterfall-bridge/config"
	"github.com/schemabounce/waterfall-bridge/rpc"
)

// Options wires a Server.
type Options struct {
	Bridge rpc.Bridge
	Config *config.Config
	// Gatherer serves /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer
	Logger   hclog.Logger
}

// Server is the HTTP surface of the bridge.
type Server struct {
	bridge rpc.Bridge
	config *config.Config
	logger hclog.Logger
	engine *gin.Engine
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	s := &Server{
		bridge: opts.Bridge,
		config: opts.Config,
		logger: opts.Logger,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.MaxMultipartMemory = opts.Config.Server.MaxUploadBytes

	s.engine.GET("/health", s.health)
	s.engine.GET("/version", s.version)
	s.engine.GET("/config", s.effectiveConfig)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	s.engine.GET("/export", s.export)
	s.engine.POST("/import", s.importFile)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
