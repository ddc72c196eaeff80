package http

import (
	"net/http"

	"custodia/internal/config"
	"custodia/internal/domain"
	"custodia/internal/infra/db"
	"custodia/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg config.Config
	r   *gin.Engine

	store *db.Store

	register  *usecase.RegisterMedia
	pipeline  *usecase.SignPending
	reconcile *usecase.ReconcileProofs

	ledger   domain.Ledger
	custody  domain.CustodyEventRepository
	attempts domain.AnchorAttemptRepository

	adminAPIKey string
}

type ServerDeps struct {
	Store       *db.Store
	Register    *usecase.RegisterMedia
	Pipeline    *usecase.SignPending
	Reconcile   *usecase.ReconcileProofs
	Ledger      domain.Ledger
	Custody     domain.CustodyEventRepository
	Attempts    domain.AnchorAttemptRepository
	AdminAPIKey string
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		store:       deps.Store,
		register:    deps.Register,
		pipeline:    deps.Pipeline,
		reconcile:   deps.Reconcile,
		ledger:      deps.Ledger,
		custody:     deps.Custody,
		attempts:    deps.Attempts,
		adminAPIKey: deps.AdminAPIKey,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.GET("/media/:id", s.handleGetMedia)

		v1.POST("/media", s.handleRegisterMedia)
		v1.POST("/pipeline/runs", s.handleRunPipeline)
		v1.POST("/reconcile/runs", s.handleRunReconcile)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown route")
	})
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}
