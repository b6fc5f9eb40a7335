package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"iris/internal/approval"
	"iris/internal/config"
	"iris/internal/constants"
	"iris/internal/dispatch"
	"iris/internal/execution"
	"iris/internal/logger"
	"iris/internal/rule"
	"iris/pkg/bootstrap"
	"iris/pkg/circuitbreaker"
	"iris/pkg/health"
	"iris/pkg/metrics"
	"iris/pkg/middleware"
	"iris/pkg/migrations"
	"iris/pkg/ratelimit"
	"iris/pkg/retry"
	"iris/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	scheduler      *execution.Scheduler
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("rule-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "rule-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.db != nil && a.Config.Database.RunMigrations {
		if err := a.dbConnector.RunPostgresMigrations(a.db, constants.DefaultMigrationsPath); err != nil {
			return err
		}
	}

	if a.Config.Database.Redis.Host != "" {
		redisClient, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			a.Logger.WarnwCtx(ctx, "Redis connection failed, dispatch dedup disabled", "error", err)
		} else {
			a.redisClient = redisClient
		}
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "MongoDB connection failed, execution logs kept in memory", "error", err)
	} else if mongoClient != nil {
		a.mongoClient = mongoClient

		dbName := a.Config.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		if err := migrations.EnsureMongoCollection(ctx, mongoClient.Database(dbName)); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) initBroker() error {
	if a.Config.Broker.Type != "kafka" || len(a.Config.Broker.Kafka.Brokers) == 0 {
		return nil
	}

	if err := a.InitBroker(); err != nil {
		a.Logger.Warnw("Failed to create producer, rule events and kafka dispatch disabled", "error", err)
	}
	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("rule-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	ruleStore, historyStore, approvalStore, logStore := a.buildStores()

	var eventProducer *rule.EventProducer
	if a.Producer != nil && a.Config.Broker.Kafka.RuleEventTopic != "" {
		eventProducer = rule.NewEventProducer(a.Producer, a.Config.Broker.Kafka.RuleEventTopic)
		a.Logger.InfowCtx(ctx, "Rule event producer initialized", "topic", a.Config.Broker.Kafka.RuleEventTopic)
	}

	ruleOpts := []rule.ServiceOption{rule.WithLogger(a.Logger)}
	if eventProducer != nil {
		ruleOpts = append(ruleOpts, rule.WithEvents(eventProducer))
	}
	ruleService := rule.NewService(ruleStore, historyStore, ruleOpts...)

	assigner := approval.NewConfigAssigner(a.Config.Approval)
	approvalOpts := []approval.ServiceOption{
		approval.WithLogger(a.Logger),
		approval.WithMaxLevel(a.Config.Approval.MaxLevel),
	}
	if eventProducer != nil {
		approvalOpts = append(approvalOpts, approval.WithEvents(eventProducer))
	}
	approvalService := approval.NewService(approvalStore, ruleService, assigner, approvalOpts...)

	dispatcher := a.buildDispatcher(ctx)

	runner, err := execution.NewRunner(
		ruleService,
		logStore,
		execution.NewStaticPopulation(nil),
		dispatcher,
		a.Logger,
		execution.WithDefaultMode(a.Config.Engine.EvaluationMode),
		execution.WithConcurrency(a.Config.Engine.BatchConcurrency),
		execution.WithFailureThreshold(a.Config.Engine.FailureThreshold),
	)
	if err != nil {
		return err
	}

	if a.Config.Scheduler.Enabled {
		a.scheduler = execution.NewScheduler(ruleService, runner, a.Logger)
	}

	rule.NewHandler(ruleService, a.Logger).RegisterRoutes(router)
	approval.NewHandler(approvalService, a.Logger).RegisterRoutes(router)
	execution.NewHandler(runner, a.Logger).RegisterRoutes(router)

	metrics.RegisterRuleMetrics()
	metrics.RegisterExecutionMetrics()
	metrics.RegisterApprovalMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterInfraMetrics()

	healthRegistry := health.NewCheckerRegistry()
	if a.db != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	}
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

// buildStores picks persistent implementations when the backing stores are
// configured and falls back to in-memory ones otherwise.
func (a *App) buildStores() (rule.Store, rule.HistoryStore, approval.Store, execution.LogStore) {
	var (
		ruleStore     rule.Store
		historyStore  rule.HistoryStore
		approvalStore approval.Store
		logStore      execution.LogStore
	)

	if a.db != nil {
		ruleStore = rule.NewPostgresStore(a.db)
		historyStore = rule.NewPostgresHistoryStore(a.db)
		approvalStore = approval.NewPostgresStore(a.db)
	} else {
		ruleStore = rule.NewMemoryStore()
		historyStore = rule.NewMemoryHistoryStore()
		approvalStore = approval.NewMemoryStore()
	}

	if a.mongoClient != nil {
		dbName := a.Config.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		logStore = execution.NewMongoLogStore(a.mongoClient.Database(dbName))
	} else {
		logStore = execution.NewMemoryLogStore()
	}

	return ruleStore, historyStore, approvalStore, logStore
}

func (a *App) buildDispatcher(ctx context.Context) *dispatch.Dispatcher {
	var sink dispatch.Sink
	if a.Producer != nil && a.Config.Broker.Kafka.DispatchTopic != "" {
		sink = dispatch.NewKafkaSink(a.Producer, a.Config.Broker.Kafka.DispatchTopic)
		a.Logger.InfowCtx(ctx, "Kafka dispatch sink initialized", "topic", a.Config.Broker.Kafka.DispatchTopic)
	} else {
		sink = dispatch.NewLogSink(a.Logger)
	}

	opts := []dispatch.Option{
		dispatch.WithDedupTTL(a.Config.Engine.DispatchDedupTTL),
	}

	if a.redisClient != nil {
		opts = append(opts, dispatch.WithGuard(dispatch.NewRedisGuard(a.redisClient)))
	}

	if a.Config.CircuitBreaker.Enabled {
		cbConfig := circuitbreaker.DefaultConfig("dispatch")
		if a.Config.CircuitBreaker.MaxRequests > 0 {
			cbConfig.MaxRequests = a.Config.CircuitBreaker.MaxRequests
		}
		if a.Config.CircuitBreaker.Interval > 0 {
			cbConfig.Interval = a.Config.CircuitBreaker.Interval
		}
		if a.Config.CircuitBreaker.Timeout > 0 {
			cbConfig.Timeout = a.Config.CircuitBreaker.Timeout
		}
		if a.Config.CircuitBreaker.FailureRatio > 0 {
			failureRatio := a.Config.CircuitBreaker.FailureRatio
			minRequests := a.Config.CircuitBreaker.MinRequests
			cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= minRequests && ratio >= failureRatio
			}
		}
		opts = append(opts, dispatch.WithBreaker(circuitbreaker.NewWrapper(cbConfig)))
	}

	policy := retry.DefaultPolicy()
	if a.Config.Engine.DispatchMaxRetries > 0 {
		policy.MaxAttempts = a.Config.Engine.DispatchMaxRetries
	}
	opts = append(opts, dispatch.WithRetryPolicy(policy))

	return dispatch.NewDispatcher(sink, a.Logger, opts...)
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: a.router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Start(ctx)
		a.Logger.InfowCtx(ctx, "Scheduler started")
	}

	errChan := make(chan error, 1)
	go func() {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
