package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/batchlog"
	registryrepo "github.com/Ramsey-B/fern/internal/repositories/registry"
	"github.com/Ramsey-B/fern/internal/repositories/stagingnode"
	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

func main() {
	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("fern exited with error")
		os.Exit(1)
	}
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// app holds the backing clients brought up by the startup sequence
type app struct {
	db          database.DB
	sqlDB       *sqlx.DB
	redis       *redis.Client
	graph       *graph.Client
	auditSink   audit.Sink
	kafkaSink   *audit.KafkaSink
	tracerClose func(ctx context.Context) error
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	a := &app{auditSink: audit.NoopSink{}}

	boot := startup.New(logger, cfg.StartupMaxAttempts, time.Second)
	boot.Add(startup.Func{
		Name: "tracing",
		StartFn: func(ctx context.Context) error {
			otlp := tracing.OTLPConfig{Protocol: cfg.OTLPProtocol, Insecure: cfg.OTLPInsecure, Timeout: 10 * time.Second}
			if cfg.OTLPEnabled {
				otlp.Endpoint = cfg.OTLPEndpoint
			}
			tp, err := tracing.NewProvider(ctx, cfg.AppName, otlp)
			if err != nil {
				return err
			}
			a.tracerClose = tp.Shutdown
			return nil
		},
		StopFn: func(ctx context.Context) error { return a.tracerClose(ctx) },
	})
	boot.Add(startup.Func{
		Name: "postgres",
		StartFn: func(ctx context.Context) error {
			db, sqlDB, err := database.Connect(ctx, database.Config{
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				User:            cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}
			a.db, a.sqlDB = db, sqlDB
			return nil
		},
		StopFn: func(context.Context) error { return a.db.Close() },
	})
	boot.Add(startup.Func{
		Name:  "migrations",
		Needs: []string{"postgres"},
		StartFn: func(context.Context) error {
			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             cfg.DatabaseMigrationVersion,
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return migrations.MigratePostgres(a.sqlDB.DB, cfg.DatabaseName)
		},
	})
	if cfg.RedisEnabled {
		boot.Add(startup.Func{
			Name: "redis",
			StartFn: func(ctx context.Context) error {
				rdb, err := lock.NewRedisClient(ctx, lock.RedisConfig{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				a.redis = rdb
				return nil
			},
			StopFn: func(context.Context) error { return a.redis.Close() },
		})
	}
	if cfg.KafkaEnabled {
		boot.Add(startup.Func{
			Name: "kafka",
			StartFn: func(context.Context) error {
				a.kafkaSink = audit.NewKafkaSink(audit.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaAuditTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: cfg.KafkaBatchTimeout,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				a.auditSink = a.kafkaSink
				return nil
			},
			StopFn: func(context.Context) error { return a.kafkaSink.Close() },
		})
	}
	if cfg.GraphEnabled {
		boot.Add(startup.Func{
			Name: "graph",
			StartFn: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphHost,
					Port:     cfg.GraphPort,
					Username: cfg.GraphUsername,
					Password: cfg.GraphPassword,
				}, logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				a.graph = client
				return nil
			},
			StopFn: func(ctx context.Context) error { return a.graph.Close(ctx) },
		})
	}

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()

	e, checker, err := newServer(ctx, cfg, logger, a)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting %s on port %d", cfg.AppName, cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	checker.SetReady(true)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.IntakeBatchTimeout+5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newServer(ctx context.Context, cfg *config.Config, logger ectologger.Logger, a *app) (*echo.Echo, *health.Checker, error) {
	registry := registryrepo.NewRepository(a.db, logger)
	staging := stagingnode.NewRepository(a.db, logger)

	backends := server.Backends{
		Registry:   registry,
		Staging:    staging,
		Batches:    batchlog.NewRepository(a.db, logger),
		Transactor: a.db,
		AuditSink:  a.auditSink,
		Probes:     []health.Probe{health.DatabaseProbe(a.sqlDB)},
	}
	if a.redis != nil {
		backends.Locker = lock.NewRedis(a.redis, logger, cfg.LockKeyPrefix, cfg.LockTTL, cfg.LockWaitTimeout)
		backends.Probes = append(backends.Probes, health.RedisProbe(a.redis))
	}
	if a.graph != nil {
		backends.Projector = graph.NewTopologyProjector(a.graph, logger)
		backends.Probes = append(backends.Probes, health.GraphProbe(a.graph))
	}
	if cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return nil, nil, err
		}
		backends.Verifier = verifier
	}

	srv := server.New(cfg, logger, backends)
	return srv.Echo, srv.Health, nil
}
