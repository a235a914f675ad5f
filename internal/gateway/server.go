// Package gateway wires the JSON-RPC engine, session manager, tool
// router, and virtual-MCP executor behind gin's HTTP surface (§6),
// grounded on the teacher's internal/core/server.go (route registration,
// middleware chain) retargeted from the teacher's proxy-config routes to
// this gateway's two bundle-addressed endpoints.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/jsonrpc"
	"github.com/aci-labs/mcp-gateway/internal/router"
	"github.com/aci-labs/mcp-gateway/internal/session"
	"github.com/aci-labs/mcp-gateway/internal/virtualmcp"
	"github.com/aci-labs/mcp-gateway/pkg/i18n"
	"github.com/aci-labs/mcp-gateway/pkg/metrics"
)

// Server wires the gateway's HTTP surface: the per-bundle MCP endpoint
// and the virtual-MCP endpoint (§6).
type Server struct {
	logger     *zap.Logger
	port       int
	router     *gin.Engine
	store      catalog.Store
	sessions   *session.Manager
	tools      *router.Router
	virtual    *virtualmcp.Executor
	rpc        *jsonrpc.Engine
	metrics    *metrics.Metrics
	translator *i18n.Translator
}

func NewServer(logger *zap.Logger, port int, store catalog.Store, sessions *session.Manager, tools *router.Router, virtual *virtualmcp.Executor, m *metrics.Metrics, translator *i18n.Translator) *Server {
	s := &Server{
		logger:     logger.Named("gateway"),
		port:       port,
		router:     gin.New(),
		store:      store,
		sessions:   sessions,
		tools:      tools,
		virtual:    virtual,
		metrics:    m,
		translator: translator,
	}
	s.rpc = buildEngine(s)

	s.router.Use(otelgin.Middleware("mcp-gateway"))
	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.recoveryMiddleware())
	if m != nil {
		s.router.Use(m.Middleware())
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.router.POST("/mcp", s.handleMCPPost)
	s.router.GET("/mcp", s.handleMCPGet)
	s.router.DELETE("/mcp", s.handleMCPDelete)

	s.router.POST("/virtual/mcp", s.handleVirtualMCPPost)
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the gin engine for tests (httptest.NewServer-style
// wiring without binding a real port).
func (s *Server) Handler() http.Handler { return s.router }
