package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"guard_server/config"
	"guard_server/internal/bootstrap"
	"guard_server/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "run mode: api, worker or all")
	flag.Parse()
	runAPI := *mode == "api" || *mode == "all"
	runWorker := *mode == "worker" || *mode == "all"
	if !runAPI && !runWorker {
		logger.Fatal("unknown mode %q", *mode)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "guard-" + *mode,
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("no .env file, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		logger.Fatal("init dependencies: %v", err)
	}
	defer cleanup()

	deps.Coordinator.Start(ctx)
	defer deps.Coordinator.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if runWorker {
		w := bootstrap.NewWorker(deps)
		g.Go(func() error { return w.Run(gctx) })
	}
	if runAPI {
		serveAPI(gctx, g, deps)
	}

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error: %v", err)
		return
	}
	logger.Info("stopped")
}

// serveAPI listens until ctx is done, then drains in-flight requests.
func serveAPI(ctx context.Context, g *errgroup.Group, deps *bootstrap.Dependencies) {
	app, stopLimiter := bootstrap.NewAPI(deps)
	addr := ":" + deps.Config.Port

	g.Go(func() error {
		logger.Info("api listening on %s", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		defer stopLimiter()
		<-ctx.Done()
		logger.Info("api draining (timeout %v)", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}
