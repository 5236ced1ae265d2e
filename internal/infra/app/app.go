package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/core/port"
	"github.com/arklim/rbac-engine/internal/infra/config"
	"github.com/arklim/rbac-engine/internal/infra/database"
	kafkainfra "github.com/arklim/rbac-engine/internal/infra/kafka"
	"github.com/arklim/rbac-engine/internal/infra/logger"
	redisinfra "github.com/arklim/rbac-engine/internal/infra/redis"
	"github.com/arklim/rbac-engine/internal/infra/security"
	"github.com/arklim/rbac-engine/internal/infra/telemetry"
	postgresrepo "github.com/arklim/rbac-engine/internal/repository/postgres"
	redisrepo "github.com/arklim/rbac-engine/internal/repository/redis"
	"github.com/arklim/rbac-engine/internal/transport/http/routes"
	"github.com/arklim/rbac-engine/internal/usecase"
)

// Application wires configuration, storage, messaging, and the HTTP engine.
type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	publisher port.EventPublisher
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	var redisClient *redisinfra.Client
	var sessionCache port.SessionCache
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		sessionCache = redisrepo.NewSessionCache(redisClient.Client())
	} else {
		log.Info("redis disabled, sessions will not be persisted")
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewPublisher(producer, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	engineMetrics, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init engine metrics: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	hierarchy := usecase.NewHierarchyService(repos.Roles, log)
	separation := usecase.NewSeparationChecker(repos.SDSets, hierarchy, log)

	accessService := usecase.NewAccessService(
		repos.Users, repos.Roles, repos.Permissions,
		hierarchy, separation,
		security.Argon2Verifier{},
		sessionCache, eventPublisher, engineMetrics,
		log, cfg.Session.DefaultTTL,
	)
	adminService := usecase.NewAdminService(
		repos.Users, repos.Roles, repos.Permissions, repos.SDSets,
		hierarchy, separation,
		security.Argon2Verifier{},
		eventPublisher, log,
	)

	deps := routes.Dependencies{
		Config: cfg,
		Logger: log,
		Services: routes.ServiceSet{
			Access:    accessService,
			Admin:     adminService,
			Hierarchy: hierarchy,
		},
		Database: pool,
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}
	engine := routes.Register(deps)

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		publisher: eventPublisher,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.publisher != nil {
			if err := a.publisher.Close(); err != nil {
				a.logger.Warn("close event publisher", zap.Error(err))
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting RBAC API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
