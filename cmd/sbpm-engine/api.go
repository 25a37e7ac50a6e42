package main

import (
	"log/slog"
	"time"

	"github.com/dukex/sbpm/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger         *slog.Logger
	engine         web.Engine
	validate       *validator.Validate
	requestTimeout time.Duration
}

func NewAPI(logger *slog.Logger, engine web.Engine, requestTimeout time.Duration) *API {
	return &API{
		logger:         logger,
		engine:         engine,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		requestTimeout: requestTimeout,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.engine.Store().EventLogRepository(), a.validate, a.requestTimeout)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("sbpm engine")
	})

	web.Routes(app, handlers)

	return app
}
