// Package api exposes the medication engine over HTTP and WebSocket.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/avelar-dev/medikit/internal/backup"
	"github.com/avelar-dev/medikit/internal/config"
	"github.com/avelar-dev/medikit/internal/ledger"
	"github.com/avelar-dev/medikit/internal/lookup"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/metrics"
	"github.com/avelar-dev/medikit/internal/reconcile"
)

// Server handles HTTP API and WebSocket
type Server struct {
	app        *fiber.App
	config     *config.Config
	repo       *medication.Repository
	reconciler *reconcile.Reconciler
	ledger     *ledger.Ledger
	history    *ledger.History
	lookup     *lookup.Client
	backup     *backup.Service
	hub        *Hub
	logger     *zap.Logger
	loc        *time.Location
}

// Deps bundles the wired components the server fronts.
type Deps struct {
	Repo       *medication.Repository
	Reconciler *reconcile.Reconciler
	Ledger     *ledger.Ledger
	History    *ledger.History
	Lookup     *lookup.Client
	Backup     *backup.Service
	Metrics    *metrics.Metrics
	Location   *time.Location
}

// New creates a new API server
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}

	s := &Server{
		app:        app,
		config:     cfg,
		repo:       deps.Repo,
		reconciler: deps.Reconciler,
		ledger:     deps.Ledger,
		history:    deps.History,
		lookup:     deps.Lookup,
		backup:     deps.Backup,
		hub:        NewHub(logger),
		logger:     logger,
		loc:        loc,
	}

	s.setupRoutes(deps.Metrics)
	return s
}

// Hub returns the WebSocket alert hub so it can be registered as a
// delivery sink.
func (s *Server) Hub() *Hub { return s.hub }

// App exposes the underlying fiber app for in-process testing.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) setupRoutes(m *metrics.Metrics) {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	api := s.app.Group("/api")
	api.Post("/auth/login", s.handleLogin)

	protected := api.Use(s.authMiddleware())

	// Medications
	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Put("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)

	// Regimen
	protected.Put("/medications/:id/rule", s.handleApplyRule)
	protected.Post("/medications/:id/repair", s.handleRepairMedication)
	protected.Get("/maintenance/stale", s.handleListStale)
	protected.Post("/maintenance/repair", s.handleRepairAll)

	// Doses
	protected.Get("/doses", s.handleListDoses)
	protected.Put("/doses/:id/:index", s.handleSetDoseStatus)
	protected.Delete("/doses/:id/:index", s.handleResetDoseStatus)
	protected.Get("/adherence", s.handleAdherence)
	protected.Get("/medications/:id/history", s.handleDoseHistory)

	// Drug registry
	protected.Get("/lookup/code/:code", s.handleLookupByCode)
	protected.Get("/lookup/search", s.handleSearch)
	protected.Get("/lookup/leaflet", s.handleLeaflet)

	// Backup
	protected.Get("/backup/export", s.handleExport)
	protected.Post("/backup/import", s.handleImport)

	// WebSocket alert stream
	s.app.Get("/ws/alerts", websocket.New(s.hub.handleConn))
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if s.config.Security.PIN == "" || req.PIN != s.config.Security.PIN {
		return c.Status(401).JSON(fiber.Map{"error": "wrong PIN"})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "default",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(7 * 24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}
	return c.JSON(fiber.Map{"token": tokenString})
}

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}
		return c.Next()
	}
}
