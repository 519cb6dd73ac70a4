package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"subforge/internal/artifacts"
	"subforge/internal/config"
	"subforge/internal/logging"
	"subforge/internal/telemetry"
	"subforge/internal/workflow"
)

// ReadinessFunc reports dependency health for /healthz.
type ReadinessFunc func(ctx context.Context) []DependencyStatus

// Server is the HTTP front end for a workflow manager.
type Server struct {
	cfg       *config.Config
	manager   *workflow.Manager
	local     *artifacts.Local
	readiness ReadinessFunc
	logger    *slog.Logger
	engine    *gin.Engine

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithLocalArtifacts serves files published by the local artifact store at
// /artifacts/:job/:name.
func WithLocalArtifacts(local *artifacts.Local) Option {
	return func(s *Server) { s.local = local }
}

// WithReadiness adds dependency checks to /healthz.
func WithReadiness(fn ReadinessFunc) Option {
	return func(s *Server) { s.readiness = fn }
}

// New builds the router. Call Start to listen or use Handler directly.
func New(cfg *config.Config, manager *workflow.Manager, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("api server requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		manager: manager,
		logger:  logging.NewComponentLogger(logger, "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName(s.cfg)))
	r.Use(cors.New(corsConfig(s.cfg.Server.AllowedOrigins)))
	r.Use(requestID())
	r.Use(accessLog(s.logger))

	r.GET("/healthz", s.handleHealth)
	if s.local != nil {
		r.GET("/artifacts/:job/:name", s.handleArtifact)
	}

	v1 := r.Group("/api/v1")
	v1.Use(bearerAuth(s.cfg.Server.Token))
	v1.Use(userIdentity())
	{
		v1.POST("/subtitles", s.handleSubtitles)

		jobs := v1.Group("/jobs")
		jobs.POST("", s.handleSubmit)
		jobs.GET("", s.handleListJobs)
		jobs.GET("/:id", s.handleGetJob)
		jobs.POST("/:id/cancel", s.handleCancelJob)
		jobs.DELETE("/:id", s.handlePurgeJob)
		jobs.GET("/:id/events", s.handleEvents)
	}
	return r
}

func serviceName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.Telemetry.ServiceName); name != "" {
		return name
	}
	return telemetry.InstrumentationName
}

func corsConfig(origins []string) cors.Config {
	conf := cors.DefaultConfig()
	conf.AllowHeaders = append(conf.AllowHeaders, "Authorization", headerUserID, headerRequestID)
	conf.ExposeHeaders = []string{headerRequestID}
	if len(origins) == 0 {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	return conf
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on server.bind and serves until Shutdown or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Server.Bind)
	if bind == "" {
		return errors.New("api server: server.bind is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// Synchronous jobs hold the response open for the whole run.
		WriteTimeout: s.cfg.JobTimeout() + time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_serve_failed"),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
