package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/ws"
)

type Dependencies struct {
	Sessions handler.SessionRegistry
	// Hub serves /sessions/:id/ws; nil disables the endpoint
	Hub *ws.Hub
	// RateLimitMax is requests per minute per session, 0 uses the default
	RateLimitMax int
	ReadyChecks  map[string]handler.ReadinessCheck
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "facecheck API",
		BodyLimit:    handler.BodyLimit,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept," + middleware.ClientIDHeader,
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var checks map[string]handler.ReadinessCheck
	if r.deps != nil {
		checks = r.deps.ReadyChecks
	}
	healthHandler := handler.NewHealthHandler(checks)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil || r.deps.Sessions == nil {
		return
	}

	v1 := r.app.Group("/v1")

	limits := middleware.DefaultRateLimiterConfig()
	if r.deps.RateLimitMax > 0 {
		limits.Max = r.deps.RateLimitMax
	}
	limits.PerEndpoint = middleware.InferenceRateLimits(limits.Max)
	r.rateLimiter = middleware.NewRateLimiter(limits)
	v1.Use(r.rateLimiter.Handler())

	sessionHandler := handler.NewSessionHandler(r.deps.Sessions, r.logger)

	v1.Post("/sessions", sessionHandler.Create)
	v1.Get("/sessions/:id", sessionHandler.Get)
	v1.Delete("/sessions/:id", sessionHandler.Delete)
	v1.Patch("/sessions/:id/selection", sessionHandler.UpdateSelection)
	v1.Put("/sessions/:id/api-url", sessionHandler.SetAPIURL)
	v1.Post("/sessions/:id/refresh", sessionHandler.Refresh)
	v1.Put("/sessions/:id/tab", sessionHandler.SwitchTab)
	v1.Put("/sessions/:id/images/:slot", sessionHandler.SetImage)
	v1.Delete("/sessions/:id/images/:slot", sessionHandler.ClearImage)
	v1.Post("/sessions/:id/compare", sessionHandler.Compare)
	v1.Post("/sessions/:id/liveness", sessionHandler.Liveness)
	v1.Post("/sessions/:id/analyze", sessionHandler.Analyze)

	if r.deps.Hub != nil {
		v1.Get("/sessions/:id/ws", ws.UpgradeMiddleware(), sessionHandler.Watch, ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
