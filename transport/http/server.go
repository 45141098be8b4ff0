package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/agent/ports"
	"github.com/layer-3/agent/rpc"
	"github.com/layer-3/agent/service"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig configures the HTTP runtime
type ServerConfig struct {
	HeaderName  string // carries the bearer token, Authorization when empty
	DocsEnabled bool
	DocsPath    string
	Docs        DocsInfo

	CORSOrigins []string // all origins when empty

	Agent        rpc.AgentInfo
	Transactions ports.TransactionChecker
	Logger       *zap.Logger
}

// Server serves a frozen route table over HTTP
type Server struct {
	table        *rpc.Table
	auth         *service.AuthService
	headerName   string
	agent        rpc.AgentInfo
	transactions ports.TransactionChecker
	logger       *zap.Logger

	docs     *openapi3.T
	docsPath string
	engine  *gin.Engine
	handler http.Handler
}

// NewServer freezes table and builds the HTTP handler serving it
func NewServer(table *rpc.Table, authService *service.AuthService, cfg ServerConfig) (*Server, error) {
	table.Freeze()
	useJSONFieldNames()

	s := &Server{
		table:        table,
		auth:         authService,
		headerName:   cfg.HeaderName,
		agent:        cfg.Agent,
		transactions: cfg.Transactions,
		logger:       cfg.Logger,
	}
	if s.headerName == "" {
		s.headerName = "Authorization"
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.Use(RequestLogger(s.logger), Recovery(s.logger))

	if cfg.DocsEnabled {
		docsPath, err := rpc.NormalizeName(cfg.DocsPath)
		if err != nil {
			return nil, fmt.Errorf("docs path: %w", err)
		}
		if table.Has(docsPath) {
			return nil, fmt.Errorf("%w: docs path %s is a method", rpc.ErrDuplicateRoute, docsPath)
		}
		s.docs, err = BuildDocs(table.Routes(), cfg.Docs)
		if err != nil {
			return nil, err
		}
		s.docsPath = docsPath
		engine.GET(docsPath, s.serveDocs)
	}

	engine.NoRoute(s.Dispatch)
	s.engine = engine

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(engine)

	return s, nil
}

// Handler returns the CORS wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Docs returns the generated API document, nil when docs are disabled
func (s *Server) Docs() *openapi3.T {
	return s.docs
}

func (s *Server) serveDocs(c *gin.Context) {
	c.JSON(http.StatusOK, s.docs)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}
