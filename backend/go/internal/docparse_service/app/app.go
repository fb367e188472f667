// Package app wires the document parsing components from configuration.
// Both the HTTP service and the MCP tool server build their dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Leviosa/backend/go/internal/aggregator"
	"Leviosa/backend/go/internal/config"
	"Leviosa/backend/go/internal/database/kafka"
	"Leviosa/backend/go/internal/database/minio"
	"Leviosa/backend/go/internal/database/redis"
	"Leviosa/backend/go/internal/detection"
	"Leviosa/backend/go/internal/docparse_service/publisher"
	"Leviosa/backend/go/internal/docparse_service/service"
	"Leviosa/backend/go/internal/docparse_service/store"
	"Leviosa/backend/go/internal/llm"
	"Leviosa/backend/go/internal/markdown"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/internal/prompt"
	pkghttp "Leviosa/backend/go/pkg/http"
	"Leviosa/backend/go/pkg/logger"
)

// App holds the constructed components and the hooks needed to release them.
type App struct {
	Service     *service.DocumentService
	Connections *service.ConnectionManager
	// Checks holds the backend probes reported by /healthz, keyed by backend name.
	Checks  map[string]func(context.Context) error
	closers []func() error
}

// Build constructs every component described by cfg. Optional backends
// (Redis, Kafka, the generation credential) degrade to in-process fallbacks when absent.
func Build(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*App, error) {
	a := &App{
		Connections: service.NewConnectionManager(),
		Checks:      make(map[string]func(context.Context) error),
	}

	uploads, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == "minio" {
		a.Checks["minio"] = minio.HealthCheck
	}

	var registry store.Registry
	if cfg.Databases.Redis.Address != "" {
		rdb, err := redis.GetClient(&cfg.Databases.Redis)
		if err != nil {
			return nil, err
		}
		registry = store.NewRedisRegistry(rdb, config.Duration(cfg.Databases.Redis.TTL, 24*time.Hour))
		a.closers = append(a.closers, redis.Close)
		a.Checks["redis"] = redis.HealthCheck
	} else {
		log.Info("Redis not configured, upload metadata kept in memory")
		registry = store.NewMemoryRegistry()
	}

	detectClient, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker, config.Duration(cfg.Detection.Timeout, 300*time.Second), log)
	if err != nil {
		return nil, err
	}
	engine, err := detection.New(cfg.Detection, detectClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection engine: %w", err)
	}
	agg := aggregator.New(engine,
		aggregator.NewPdftoppmRasterizer(cfg.Pipeline.DPI, log),
		aggregator.WithMaxPages(cfg.Pipeline.MaxPages),
		aggregator.WithLogger(log),
	)

	llmClient, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker, config.Duration(cfg.LLM.Timeout, 120*time.Second), log)
	if err != nil {
		return nil, err
	}
	gen, err := llm.NewClient(ctx, cfg.LLM, llmClient)
	switch {
	case errors.Is(err, models.ErrMissingCredential):
		log.Warn("No LLM API key configured, markdown falls back to raw text")
		gen = nil
	case err != nil:
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	if closer, ok := gen.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}
	pipeline := markdown.NewPipeline(gen, prompt.NewLoader(cfg.Pipeline.PromptDir), log)

	var pub service.EventPublisher = publisher.Nop{}
	if len(cfg.Databases.Kafka.Brokers) > 0 {
		kc, err := kafka.GetClient(&cfg.Databases.Kafka)
		if err != nil {
			return nil, err
		}
		pub = publisher.NewEventPublisherWithWriter(kc.Writer, log)
		// The service closes the writer; only the admin connection is left here.
		a.closers = append(a.closers, kc.Conn.Close)
		a.Checks["kafka"] = kc.HealthCheck
	}

	a.Service = service.NewDocumentService(uploads, registry, agg, pipeline, pub, log)
	return a, nil
}

func buildStore(cfg *config.AppConfig) (store.UploadStore, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return store.NewLocalStore(cfg.Storage.UploadDir)
	case "minio":
		client, err := minio.GetClient(&cfg.Databases.MinIO)
		if err != nil {
			return nil, err
		}
		return store.NewMinIOStore(client, cfg.Databases.MinIO.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// Close closes live sockets, the event publisher and the backing clients.
func (a *App) Close() error {
	a.Connections.CloseAll()
	var errs []error
	if err := a.Service.Close(); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
