// Package server exposes the dialogue and Q&A services over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spigell/talentflow/internal/dialogue"
	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/qna"
	"github.com/spigell/talentflow/internal/scoring"
	"go.uber.org/zap"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 10 * time.Second
)

type Config struct {
	Addr         string   `mapstructure:"addr"`
	AllowOrigins []string `mapstructure:"allow-origins"`
	Debug        bool     `mapstructure:"debug"`
}

type Deps struct {
	QnA      *qna.Service
	Dialogue *dialogue.Engine
	Scoring  *scoring.Engine
	// TreesDir is re-read by the reload endpoint. Empty means the builtin trees.
	TreesDir string
	Logger   *zap.Logger
}

type Server struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	router *gin.Engine
}

func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.QnA == nil:
		return nil, errors.New("qna service is required")
	case deps.Dialogue == nil:
		return nil, errors.New("dialogue engine is required")
	case deps.Scoring == nil:
		return nil, errors.New("scoring engine is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named(deps.Logger, "http"),
	}
	s.router = s.routes()

	return s, nil
}

func (s *Server) routes() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(s.cfg.AllowOrigins))

	router.GET("/healthz", s.health)

	api := router.Group("/api/v1")
	{
		api.GET("/qna/trees", s.trees)
		api.GET("/qna/users/:user_id/next", s.nextQuestion)
		api.GET("/qna/users/:user_id/traits", s.traits)
		api.GET("/qna/users/:user_id/traits/:attribute/explain", s.explain)
		api.POST("/jobs/:job_id/requirements", s.requirements)
		api.POST("/matching/score", s.score)
		api.POST("/admin/trees/reload", s.reload)
	}

	chat := api.Group("/chat")
	chat.Use(identity())
	chat.POST("/router", s.chat)

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight turns.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
