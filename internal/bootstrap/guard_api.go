package bootstrap

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"guard_server/adapter/in/http"
	"guard_server/infra/middleware"
	"guard_server/pkg/logger"
)

// NewAPI builds the fiber app on top of deps. The returned cleanup stops the
// rate limiter.
func NewAPI(deps *Dependencies) (*fiber.App, func()) {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             2 * 1024 * 1024,
		ReadBufferSize:        16384,
		ServerHeader:          "",
		DisableDefaultDate:    true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	// SSE responses are streamed and must not be buffered for compression
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := allowOrigins != "" && allowOrigins != "*"
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	http.NewHealthHandler().
		WithRedis(deps.Redis).
		WithPostgres(deps.DB).
		WithMongo(deps.MongoDB).
		Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret, middleware.NewRevocations(deps.Redis)))

	classifyLimiter := middleware.NewRateLimiter(cfg.ClassifyRateLimit, time.Minute)
	api.Use("/classify", classifyLimiter.Handler())

	http.NewClassifyHandler(deps.Dispatcher, deps.Coordinator, 0).Register(api)
	http.NewSettingsHandler(deps.SettingsStore, deps.Coordinator).WithDefaults(deps.Config.DefaultSettings()).Register(api)

	scanHandler := http.NewScanHandler(deps.Inbox, deps.Coordinator)
	if deps.Producer != nil {
		scanHandler.WithQueue(deps.Producer)
	}
	scanHandler.Register(api)

	http.NewStatsHandler(deps.Dispatcher, deps.ResultCache, deps.Coordinator, deps.Renderer).Register(api)
	http.NewSSEHandler(deps.SSEHub, deps.Log).Register(api)

	logger.Info("API routes registered")
	return app, classifyLimiter.Stop
}
