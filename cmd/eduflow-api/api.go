// Package main provides the eduflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dandpb/jung-edu-app-sub012/pkg/engine"
	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/dandpb/jung-edu-app-sub012/pkg/registry"
	"github.com/dandpb/jung-edu-app-sub012/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	locks       persistence.LockRepository
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	engineCfg   engine.Config
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persist persistence.Persistence,
	locks persistence.LockRepository,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	engineCfg engine.Config,
) *API {
	return &API{
		logger:      logger,
		persistence: persist,
		locks:       locks,
		registry:    reg,
		eventBus:    eventBus,
		engineCfg:   engineCfg,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	eng := engine.NewEngine(a.logger, a.persistence, a.locks, a.registry, a.eventBus, a.engineCfg)
	handlers := web.NewAPIHandlers(a.logger, eng, a.persistence, a.eventBus, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Eduflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)

	// Execution endpoints:
	w.Post("/:id/executions", handlers.StartExecution)
	w.Get("/:id/executions", handlers.ListExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/result", handlers.GetExecutionResult)
	e.Get("/:id/history", handlers.GetExecutionHistory)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
