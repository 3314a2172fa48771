// Package main provides the Dataflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/dataflow/pkg/registry"
	"github.com/dukex/dataflow/pkg/web"
	"github.com/dukex/dataflow/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger    *slog.Logger
	workspace *workspace.Workspace
	registry  *registry.Registry
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	workspace *workspace.Workspace,
	registry *registry.Registry,
) *API {
	return &API{
		logger:    logger,
		workspace: workspace,
		registry:  registry,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workspace, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dataflow API")
	})

	handlers.Register(app)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting Dataflow API", "port", port)

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
