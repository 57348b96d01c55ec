// Package main provides the rivet API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/rivetflow/rivet/pkg/eventbus"
	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/registry"
	"github.com/rivetflow/rivet/pkg/services"
	"github.com/rivetflow/rivet/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry)
	executionService := services.NewExecution(a.logger, a.persistence, a.eventBus)
	webhookService := services.NewWebhook(a.persistence)

	handlers := web.NewAPIHandlers(workflowService, executionService, webhookService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Rivet API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/validate", handlers.ValidateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)
	w.Post("/:id/webhooks", handlers.CreateWebhookBinding)
	w.Get("/:id/webhooks", handlers.GetWebhookBindings)
	w.Delete("/:id/webhooks/:bindingId", handlers.DeleteWebhookBinding)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/terminate", handlers.TerminateExecution)

	app.All("/webhooks/*", handlers.WebhookIngress)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
