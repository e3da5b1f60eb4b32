// Package server assembles the intake service and its HTTP surface from already-connected backends
package server

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/decisions"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/intake"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/middleware"
	batchroutes "github.com/Ramsey-B/fern/pkg/routes/batch"
	decisionroutes "github.com/Ramsey-B/fern/pkg/routes/decision"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	registryroutes "github.com/Ramsey-B/fern/pkg/routes/registry"
	"github.com/Ramsey-B/fern/pkg/store"
)

// Backends are the stores and side channels the service runs on. Nil Locker, Projector and
// AuditSink fall back to an in-process lock, no projection and no audit events.
type Backends struct {
	Registry   store.RegistryStore
	Staging    store.StagingStore
	Batches    store.BatchLogStore
	Transactor store.Transactor
	Locker     lock.Locker
	Projector  graph.Projector
	AuditSink  audit.Sink
	Probes     []health.Probe
	// Verifier enables bearer-token authentication on the API group
	Verifier middleware.TokenVerifier
}

type Server struct {
	Echo    *echo.Echo
	Health  *health.Checker
	Service *intake.Service
}

func New(cfg *config.Config, logger ectologger.Logger, b Backends) *Server {
	if b.Locker == nil {
		b.Locker = lock.NewLocal()
	}

	emitter := audit.NewEmitter(b.AuditSink, logger)

	engineConfig := matching.DefaultConfig()
	if cfg.MatchMinConfidence > 0 {
		engineConfig.MinConfidence = cfg.MatchMinConfidence
	}
	if cfg.MatchMaxMatches > 0 {
		engineConfig.MaxMatches = cfg.MatchMaxMatches
	}
	if cfg.MatchMergeThreshold > 0 {
		engineConfig.MergeExistingThreshold = cfg.MatchMergeThreshold
	}

	service := intake.NewService(
		b.Registry,
		b.Staging,
		batch.NewManager(b.Batches, b.Staging, b.Transactor, emitter, logger),
		decisions.NewProcessor(b.Registry, b.Staging, b.Transactor, b.Locker, b.Projector, emitter, logger, decisions.Config{
			Concurrency: cfg.DecisionWorkerCount,
			MaxAttempts: cfg.DecisionMaxAttempts,
		}),
		matching.NewEngine(logger, engineConfig),
		logger,
		intake.Config{Concurrency: cfg.IntakeWorkerCount, BatchTimeout: cfg.IntakeBatchTimeout},
	)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	if len(cfg.AllowOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{AllowOrigins: cfg.AllowOrigins}))
	}
	if cfg.HttpServerBodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(cfg.HttpServerBodyLimit))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(cfg.Version, b.Probes...)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if b.Verifier != nil {
		api.Use(middleware.Authentication(logger, b.Verifier))
	}

	batchroutes.NewHandler(service).Register(api)
	decisionroutes.NewHandler(service).Register(api)
	registryroutes.NewHandler(service).Register(api)

	return &Server{Echo: e, Health: checker, Service: service}
}
