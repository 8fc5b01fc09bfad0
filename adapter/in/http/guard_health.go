package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name  string
	check CheckFunc
}

type HealthHandler struct {
	checks  []namedCheck
	timeout time.Duration
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{timeout: 5 * time.Second}
}

// AddCheck registers a readiness check. A nil check reports "not configured".
func (h *HealthHandler) AddCheck(name string, check CheckFunc) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
	return h
}

// WithPostgres adds a Postgres readiness check.
func (h *HealthHandler) WithPostgres(db *pgxpool.Pool) *HealthHandler {
	if db == nil {
		return h.AddCheck("postgres", nil)
	}
	return h.AddCheck("postgres", db.Ping)
}

// WithRedis adds a Redis readiness check.
func (h *HealthHandler) WithRedis(client *redis.Client) *HealthHandler {
	if client == nil {
		return h.AddCheck("redis", nil)
	}
	return h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// WithMongo adds a MongoDB readiness check.
func (h *HealthHandler) WithMongo(client *mongo.Client) *HealthHandler {
	if client == nil {
		return h.AddCheck("mongodb", nil)
	}
	return h.AddCheck("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
}

func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready runs every check concurrently under one deadline and answers 503
// if any configured dependency fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(requestContext(c), h.timeout)
	defer cancel()

	results := make([]string, len(h.checks))
	var failed atomic.Bool
	var g errgroup.Group
	for i, nc := range h.checks {
		if nc.check == nil {
			results[i] = "not configured"
			continue
		}
		i, nc := i, nc
		g.Go(func() error {
			if err := nc.check(ctx); err != nil {
				results[i] = "unhealthy: " + err.Error()
				failed.Store(true)
				return nil
			}
			results[i] = "healthy"
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]string, len(h.checks))
	for i, nc := range h.checks {
		checks[nc.name] = results[i]
	}

	status, code := "ready", fiber.StatusOK
	if failed.Load() {
		status, code = "not ready", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
