package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"synapse/internal/broker"
	"synapse/internal/bus"
	"synapse/internal/config"
	"synapse/internal/constants"
	"synapse/internal/inbox"
	"synapse/internal/logger"
	"synapse/internal/monitor"
	"synapse/internal/outbox"
	"synapse/internal/topology"
	"synapse/internal/validator"
	"synapse/pkg/bootstrap"
	"synapse/pkg/circuitbreaker"
	errs "synapse/pkg/errors"
	"synapse/pkg/health"
	"synapse/pkg/metrics"
	"synapse/pkg/middleware"
	"synapse/pkg/ratelimit"
	"synapse/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	db    *sql.DB
	redis *redis.Client

	topo      *topology.Manager
	store     outbox.Store
	breakers  *circuitbreaker.Registry
	monitor   *monitor.Monitor
	publisher *bus.Publisher
	drainer   *bus.Drainer

	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("bus-service")
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

	if err := a.initStore(); err != nil {
		return fmt.Errorf("failed to initialize outbox store: %w", err)
	}

	if err := a.InitTransport(); err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}

	a.initPipeline()

	tp, err := tracing.Init(a.Config.Tracing, "bus-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterBusMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterOutboxMetrics()
	metrics.RegisterTransportMetrics()
	metrics.RegisterMonitorMetrics()

	if err := a.startConsumers(ctx); err != nil {
		return fmt.Errorf("failed to start consumers: %w", err)
	}

	a.initHTTPServer()

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	return nil
}

func (a *App) initStore() error {
	store, err := outbox.New(outbox.Config{
		Backend:       a.Config.Outbox.Backend,
		SQLitePath:    a.Config.Outbox.SQLitePath,
		LeaseDuration: a.Config.Outbox.LeaseDuration,
	}, a.db)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

func (a *App) initPipeline() {
	a.topo = topology.NewManager()

	breakerCfg := circuitbreaker.Config{
		FailureThreshold: a.Config.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  a.Config.CircuitBreaker.RecoveryTimeout,
		IsFailure:        errs.IsTransport,
	}
	if breakerCfg.FailureThreshold == 0 {
		breakerCfg.FailureThreshold = constants.DefaultFailureThreshold
	}
	if breakerCfg.RecoveryTimeout <= 0 {
		breakerCfg.RecoveryTimeout = constants.DefaultRecoveryTimeout
	}
	a.breakers = circuitbreaker.NewRegistry(breakerCfg)

	a.monitor = monitor.New(monitor.Config{RingCapacity: a.Config.Monitor.RingCapacity}, a.Logger)

	a.publisher = bus.NewPublisher(a.Transport, a.breakers, a.store, a.monitor, validator.New(), a.Logger)

	a.drainer = bus.NewDrainer(a.store, a.Transport, a.breakers, a.monitor, bus.DrainerConfig{
		Interval:      a.Config.Outbox.Drainer.Interval,
		BatchSize:     a.Config.Outbox.Drainer.BatchSize,
		RatePerSecond: a.Config.Outbox.Drainer.RatePerSecond,
		Burst:         a.Config.Outbox.Drainer.Burst,
		PurgeAfter:    a.Config.Outbox.Drainer.PurgeAfter,
	}, a.Logger)
}

// startConsumers attaches the diagnostic "monitor" consumer of each
// stream that defines one, guarded against duplicate deliveries when
// the inbox is enabled.
func (a *App) startConsumers(ctx context.Context) error {
	handler := func(ctx context.Context, subject string, payload []byte) error {
		a.Logger.DebugwCtx(ctx, "Message observed",
			"subject", subject,
			"bytes", len(payload),
		)
		return nil
	}

	wrapped := broker.Handler(handler)
	if a.Config.Inbox.Enabled && a.redis != nil {
		guard := inbox.NewGuard(inbox.NewRedisRepository(a.redis), a.Config.Inbox.TTL, a.Logger)
		wrapped = guard.Wrap(handler)
	}

	for _, streamName := range a.topo.StreamNames() {
		consumer, err := a.topo.GetConsumerConfig(streamName, "monitor")
		if err != nil {
			continue // stream has no monitor consumer
		}

		if err := a.Transport.Subscribe(ctx, consumer.FilterSubject, wrapped); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", consumer.FilterSubject, err)
		}
	}

	return nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	healthRegistry := health.NewCheckerRegistry()
	if a.db != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	}
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	healthRegistry.Register(health.NewBreakerChecker(a.breakers))
	healthRegistry.Register(health.NewBacklogChecker(a.store, 0))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/stats", func(c *gin.Context) {
		backlog := -1
		if count, err := a.store.PendingCount(c.Request.Context()); err == nil {
			backlog = count
		}
		c.JSON(http.StatusOK, gin.H{
			"monitor":        a.monitor.Snapshot(),
			"breakers":       a.breakers.States(),
			"outbox_backlog": backlog,
		})
	})

	router.GET("/topology/streams/:name", func(c *gin.Context) {
		cfg, err := a.topo.GetStreamConfig(c.Param("name"))
		if err != nil {
			c.JSON(errs.ToHTTPStatus(err), errs.ToErrorResponse(err))
			return
		}
		c.JSON(http.StatusOK, cfg)
	})

	router.GET("/topology/streams/:name/consumers/:consumer", func(c *gin.Context) {
		cfg, err := a.topo.GetConsumerConfig(c.Param("name"), c.Param("consumer"))
		if err != nil {
			c.JSON(errs.ToHTTPStatus(err), errs.ToErrorResponse(err))
			return
		}
		c.JSON(http.StatusOK, cfg)
	})

	router.POST("/publish/:subject", ratelimit.Middleware(ratelimit.DefaultConfig()), func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		if err := a.publisher.Publish(c.Request.Context(), c.Param("subject"), raw); err != nil {
			c.JSON(errs.ToHTTPStatus(err), errs.ToErrorResponse(err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	sampleInterval := a.Config.Monitor.SampleInterval
	if sampleInterval <= 0 {
		sampleInterval = constants.DefaultSampleInterval
	}
	a.monitor.Start(sampleInterval)

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Outbox drainer starting")
		if err := a.drainer.Run(gCtx); err != nil && gCtx.Err() == nil {
			return fmt.Errorf("drainer error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Errorw("HTTP server shutdown error", "error", err)
	}

	a.monitor.Stop()

	return a.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		var errors []error

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errors = append(errors, fmt.Errorf("store close error: %w", err))
			}
		}

		errors = append(errors, a.dbConnector.ShutdownDatabases(a.redis, a.db)...)

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errors = append(errors, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		return errors
	})
}
