package api

import (
	"context"
	"log/slog"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/giovannifil-64/DeVisu/internal/api/docs"
	"github.com/giovannifil-64/DeVisu/internal/api/handler"
	"github.com/giovannifil-64/DeVisu/internal/api/middleware"
	"github.com/giovannifil-64/DeVisu/internal/ws"
)

type Dependencies struct {
	Kiosk     handler.KioskService
	Sessions  handler.SessionStore
	Attempts  handler.AttemptLimiter
	Extractor handler.Extractor
	// Users and Nearest are nil when identities live in a remote store.
	Users   handler.UserRepository
	Nearest handler.NearestFinder
	// Stats is nil when the attempt audit trail is not available.
	Stats handler.StatsReader
	Hub   *ws.Hub
	// Ready lists the dependencies checked by /ready.
	Ready       map[string]handler.Pinger
	KioskConfig handler.KioskConfig
	// RequestLimit caps requests per client IP per minute on /v1.
	RequestLimit int
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	cancelHub   context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "DeVisu Kiosk",
		BodyLimit:    12 * 1024 * 1024,
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
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var ready map[string]handler.Pinger
	if r.deps != nil {
		ready = r.deps.Ready
	}
	healthHandler := handler.NewHealthHandler(ready)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	if r.deps.Users != nil {
		usersHandler := handler.NewUsersHandler(r.deps.Users, r.logger)
		users := r.app.Group("/api/users")
		users.Get("/", usersHandler.List)
		users.Post("/", usersHandler.Create)
		users.Get("/by_otp/:otp", usersHandler.GetByOTP)
		users.Get("/:id", usersHandler.Get)
		users.Put("/:id", usersHandler.Update)
		users.Delete("/:id", usersHandler.Delete)
	}

	v1 := r.app.Group("/v1")

	limiterConfig := middleware.DefaultRateLimiterConfig()
	if r.deps.RequestLimit > 0 {
		limiterConfig.Max = r.deps.RequestLimit
	}
	r.rateLimiter = middleware.NewRateLimiter(limiterConfig)

	kioskHandler := handler.NewKioskHandler(
		r.deps.Kiosk,
		r.deps.Sessions,
		r.deps.Attempts,
		r.deps.Extractor,
		r.deps.Nearest,
		r.deps.KioskConfig,
		r.logger,
	)

	kiosk := v1.Group("/kiosk", r.rateLimiter.Handler())
	kiosk.Post("/enroll", kioskHandler.Enroll)
	kiosk.Post("/verify", kioskHandler.Verify)
	kiosk.Post("/delete", kioskHandler.Delete)
	kiosk.Post("/sessions", kioskHandler.CreateSession)
	kiosk.Get("/sessions/:id", kioskHandler.GetSession)
	kiosk.Post("/sessions/:id/complete", kioskHandler.CompleteSession)
	kiosk.Post("/extract", kioskHandler.Extract)
	kiosk.Post("/nearest", kioskHandler.Nearest)

	if r.deps.Stats != nil {
		kiosk.Get("/stats", handler.NewStatsHandler(r.deps.Stats).Stats)
	}

	if r.deps.Hub != nil {
		hubCtx, hubCancel := context.WithCancel(context.Background())
		r.cancelHub = hubCancel
		go r.deps.Hub.Run(hubCtx)

		// ?session=<id> narrows the stream to one kiosk session
		v1.Get("/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.cancelHub != nil {
		r.cancelHub()
	}

	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
