package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/ledger/config"
	"example.com/backstage/services/ledger/handlers"
	"example.com/backstage/services/ledger/projections"
	"example.com/backstage/services/ledger/utils"
)

// Server is the HTTP server for the API
type Server struct {
	cfg        config.Config
	router     *gin.Engine
	httpServer *http.Server
	commands   *handlers.AccountHandler
	queries    *handlers.QueryService
	worker     *projections.Worker
}

// NewServer creates a new API server
func NewServer(cfg config.Config, commands *handlers.AccountHandler, queries *handlers.QueryService, worker *projections.Worker) *Server {
	server := &Server{
		cfg:      cfg,
		router:   gin.New(),
		commands: commands,
		queries:  queries,
		worker:   worker,
	}

	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		utils.RegisterCustomValidations(engine)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware adds middleware to the router
func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	if s.cfg.CorsEnabled {
		s.router.Use(CORSMiddleware(s.cfg.CorsOrigins))
	}
	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware())
}

// setupRoutes defines the API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	v1 := s.router.Group("/api/v1")

	accountRoutes := v1.Group("/accounts")
	{
		accountRoutes.POST("", s.createAccount)
		accountRoutes.POST("/:id/deposit", s.deposit)
		accountRoutes.POST("/:id/withdraw", s.withdraw)
		accountRoutes.GET("", s.listAccounts)
		accountRoutes.GET("/:id", s.getAccount)
		accountRoutes.GET("/:id/balance", s.getBalance)
		accountRoutes.GET("/:id/history", s.getHistory)
	}

	v1.POST("/transfers", s.transfer)

	transactionRoutes := v1.Group("/transactions")
	{
		transactionRoutes.GET("/user/:userID", s.getTransactionsByUser)
		transactionRoutes.GET("/correlation/:correlationID", s.getTransactionsByCorrelation)
	}

	adminRoutes := v1.Group("/admin")
	{
		adminRoutes.POST("/replay", s.replayEvents)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTPServerAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTPServerTimeout,
		WriteTimeout: s.cfg.HTTPServerTimeout,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.HTTPServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
