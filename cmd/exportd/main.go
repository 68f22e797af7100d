// Command exportd serves the export job API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/engine"
	"github.com/artisthq/exportd/internal/metrics"
	"github.com/artisthq/exportd/internal/repository"
	"github.com/artisthq/exportd/internal/server"
	"github.com/artisthq/exportd/internal/source"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := openJobStore(ctx, cfg, log)
	if err != nil {
		log.Error("open job store", "driver", cfg.JobStore.Driver, "err", err)
		os.Exit(1)
	}
	defer cleanup()

	store, err := source.NewSQLiteStore(cfg.Export.DataDBPath)
	if err != nil {
		log.Error("open data store", "path", cfg.Export.DataDBPath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	artifacts, err := engine.NewArtifactStore(cfg.Export.ArtifactDir)
	if err != nil {
		log.Error("open artifact store", "dir", cfg.Export.ArtifactDir, "err", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	sources := make(map[constants.ExportType]source.DataSource)
	for _, t := range constants.AllExportTypes() {
		sources[t] = store
	}

	eng := engine.New(repo, sources, artifacts, collector, log, engine.Config{
		ChunkSize:        cfg.Export.ChunkSize,
		MaxJobsPerCaller: cfg.Export.MaxJobsPerCaller,
		JobTimeout:       cfg.Export.JobTimeout,
	})

	var auth server.Authorizer
	if cfg.Server.APIKeys == "" {
		log.Warn("API_KEYS not set, serving anonymous callers with a strict privacy floor")
		auth = server.AnonymousAuthorizer{}
	} else {
		auth, err = server.ParseAPIKeys(cfg.Server.APIKeys)
		if err != nil {
			log.Error("parse API_KEYS", "err", err)
			os.Exit(1)
		}
	}

	router := server.NewRouter(eng, auth, collector.Registry(), log)
	srv := server.New(cfg.Server.HTTPAddr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		return eng.RunJanitor(gctx, cfg.Export.ArtifactRetention, cfg.Export.JanitorInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "err", err)
		}
		return eng.Close(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("exportd stopped", "err", err)
		os.Exit(1)
	}
	log.Info("exportd stopped")
}

// openJobStore selects the job registry backend from configuration.
func openJobStore(ctx context.Context, cfg *common.Config, log *slog.Logger) (repository.ExportJobRepository, func(), error) {
	switch cfg.JobStore.Driver {
	case "sqlite":
		repo, err := repository.NewSQLiteJobRepository(cfg.JobStore.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	case "postgres":
		pool, err := repository.OpenPool(ctx, cfg.JobStore, log)
		if err != nil {
			return nil, nil, err
		}
		if err := repository.HealthCheck(ctx, pool, cfg.JobStore.DialTimeout); err != nil {
			pool.Close()
			return nil, nil, err
		}
		repo, err := repository.NewPostgresJobRepository(ctx, pool, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	default:
		return repository.NewMemoryJobRepository(log), func() {}, nil
	}
}
