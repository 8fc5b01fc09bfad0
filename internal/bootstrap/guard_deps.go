package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"guard_server/adapter/out/memory"
	"guard_server/adapter/out/messaging"
	"guard_server/adapter/out/mongodb"
	"guard_server/adapter/out/persistence"
	"guard_server/adapter/out/realtime"
	"guard_server/config"
	"guard_server/core/port/out"
	"guard_server/core/service/classification"
	"guard_server/core/service/common"
	"guard_server/core/service/scan"
	"guard_server/infra/database"
	"guard_server/pkg/cache"
	"guard_server/pkg/crypto"
	"guard_server/pkg/logger"
	"guard_server/pkg/ratelimit"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Log     zerolog.Logger

	// Stores
	Inbox         *memory.UnitInbox
	SettingsStore out.SettingsStore
	Recorder      out.DecisionRecorder

	// Classification
	ResultCache *common.ResultCache
	Limiter     *ratelimit.IntervalLimiter
	Remote      out.RemoteClassifier
	Dispatcher  *classification.Dispatcher

	// Rendering and events
	Renderer *realtime.SSERenderer
	SSEHub   *realtime.SSEHub
	Producer *messaging.RedisProducer

	Coordinator *scan.Coordinator
}

// NewDependencies connects the configured stores and wires the classification
// pipeline. Every external store is optional; without them the guard runs
// fully in memory.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config: cfg,
		Log:    logger.Default().Zerolog(),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Redis
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL, database.RedisOptions{
			PoolSize:    cfg.RedisPoolSize,
			StreamBlock: time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		})
		if err != nil {
			return fail(err)
		}
		deps.Redis = client
		cleanups = append(cleanups, func() { client.Close() })
		logger.Info("Redis connected")
	}

	// PostgreSQL (pgxpool for the audit log, sqlx for settings)
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			return fail(err)
		}
		deps.DB = db
		cleanups = append(cleanups, db.Close)

		sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		deps.SQLDB = sqlDB
		cleanups = append(cleanups, func() { sqlDB.Close() })
	}

	// MongoDB
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			return fail(err)
		}
		deps.MongoDB = client
		cleanups = append(cleanups, func() { client.Disconnect(context.Background()) })
		logger.Info("MongoDB connected")
	}

	if err := deps.initStores(ctx); err != nil {
		return fail(err)
	}
	deps.initClassification()

	// Rendering
	deps.Renderer = realtime.NewSSERenderer(deps.Log)
	deps.SSEHub = realtime.NewSSEHub(deps.Renderer)

	if deps.Redis != nil {
		deps.Producer = messaging.NewRedisProducer(deps.Redis, messaging.ProducerConfig{
			UnitStream:     cfg.UnitStream,
			DecisionStream: cfg.DecisionStream,
			MaxLen:         100000,
		})
	}

	initial, err := deps.SettingsStore.Get(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to load stored settings, using defaults")
		initial = cfg.DefaultSettings()
	}

	scanDeps := scan.Deps{
		Source:     deps.Inbox,
		Classifier: deps.Dispatcher,
		Renderer:   deps.Renderer,
	}
	if deps.Recorder != nil {
		scanDeps.Recorder = deps.Recorder
	}
	if deps.Producer != nil {
		scanDeps.Publisher = deps.Producer
	}
	deps.Coordinator = scan.NewCoordinator(scanDeps, initial, &scan.Config{
		Debounce:      cfg.ScanDebounce,
		SweepInterval: cfg.ScanSweepInterval,
		Concurrency:   cfg.ScanConcurrency,
		MaxLabels:     scan.DefaultConfig().MaxLabels,
	})
	deps.Inbox.OnEvict(deps.Coordinator.Forget)

	return deps, cleanup, nil
}

func (d *Dependencies) initStores(ctx context.Context) error {
	cfg := d.Config
	d.Inbox = memory.NewUnitInbox(cfg.InboxLimit)

	if d.SQLDB != nil {
		adapter := persistence.NewSettingsAdapter(d.SQLDB, persistence.DefaultProfile, cfg.DefaultSettings())
		if err := adapter.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("settings schema: %w", err)
		}
		if cfg.SettingsEncryptionKey != "" {
			enc, err := crypto.NewEncryptor([]byte(cfg.SettingsEncryptionKey))
			if err != nil {
				return fmt.Errorf("settings encryptor: %w", err)
			}
			adapter.WithEncryptor(enc)
		}
		d.SettingsStore = adapter
	} else {
		d.SettingsStore = memory.NewSettingsStore(cfg.DefaultSettings())
	}

	store := cfg.DecisionStore
	if store == "" {
		switch {
		case d.DB != nil:
			store = "postgres"
		case d.MongoDB != nil:
			store = "mongo"
		default:
			store = "none"
		}
	}

	switch store {
	case "postgres":
		if d.DB == nil {
			return fmt.Errorf("DECISION_STORE=postgres requires DATABASE_URL")
		}
		adapter := persistence.NewDecisionAdapter(d.DB)
		if err := adapter.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("decision schema: %w", err)
		}
		d.Recorder = adapter
	case "mongo", "mongodb":
		if d.MongoDB == nil {
			return fmt.Errorf("DECISION_STORE=mongo requires MONGODB_URL")
		}
		adapter := mongodb.NewDecisionAdapter(d.MongoDB.Database(cfg.MongoDBName), 0)
		if err := adapter.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("decision indexes: %w", err)
		}
		d.Recorder = adapter
	case "none":
	default:
		return fmt.Errorf("unknown DECISION_STORE %q", store)
	}

	logger.Info("Decision store: %s", store)
	return nil
}

func (d *Dependencies) initClassification() {
	cfg := d.Config

	var l2 *cache.RedisCache
	if d.Redis != nil {
		l2 = cache.NewRedisCache(d.Redis, common.DefaultResultCacheConfig().KeyPrefix)
	}
	d.ResultCache = common.NewResultCache(&common.ResultCacheConfig{
		MaxEntries: cfg.CacheSize,
		TTL:        cfg.CacheTTL,
		KeyPrefix:  common.DefaultResultCacheConfig().KeyPrefix,
	}, l2)

	var gate ratelimit.Gate
	if cfg.RateLimitShared && d.Redis != nil {
		gate = ratelimit.NewRedisGate(d.Redis, "", cfg.RemoteMinInterval)
	}
	d.Limiter = ratelimit.NewIntervalLimiter(cfg.RemoteMinInterval, gate)

	switch cfg.ClassifierBackend {
	case "openai":
		d.Remote = classification.NewOpenAIClassifier(classification.OpenAIClassifierConfig{
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	default:
		if cfg.ClassifierURL != "" {
			d.Remote = classification.NewHTTPClassifier(classification.HTTPClassifierConfig{
				Endpoint: cfg.ClassifierURL,
				Timeout:  cfg.RemoteTimeout,
			})
		}
	}
	if d.Remote == nil {
		logger.Info("No remote classifier configured, heuristic only")
	}

	d.Dispatcher = classification.NewDispatcher(classification.DispatcherDeps{
		Heuristic: classification.NewHeuristicClassifier(nil),
		Remote:    d.Remote,
		Cache:     d.ResultCache,
		Limiter:   d.Limiter,
	}, &classification.DispatcherConfig{RemoteTimeout: cfg.RemoteTimeout})
}
