package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"search-crawler/internal/config"
	"search-crawler/internal/crawler"
	"search-crawler/internal/hostman"
	"search-crawler/internal/logging"
	"search-crawler/internal/parser"
	"search-crawler/internal/storage"
)

// run crawls, ranks and persists. It returns the first error that should
// fail the process; a cancelled crawl still persists what it indexed.
func run(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger, err := logging.New(cfg.Logging, logOut)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.Addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts, err := crawler.OptionsFromConfig(cfg.Crawl)
	if err != nil {
		return err
	}
	fetcher := crawler.NewHTTPFetcher(cfg.Crawl.UserAgent, cfg.Crawl.FetchTimeout.Duration, cfg.Crawl.MaxBodyBytes).
		WithLogger(logger)
	robots := hostman.New(hostman.Options{
		UserAgent:       cfg.Crawl.UserAgent,
		AgentToken:      cfg.Robots.AgentToken,
		Timeout:         cfg.Robots.Timeout.Duration,
		DelayMin:        cfg.Robots.DelayMin.Duration,
		DelayMax:        cfg.Robots.DelayMax.Duration,
		RequestsPerHost: cfg.Robots.RequestsPerHost,
		Cache:           cfg.Robots.Cache,
		Client:          fetcher.Client(),
		Logger:          logger,
	})

	engine, err := crawler.New(opts, crawler.Deps{
		Politeness: robots,
		Fetcher:    fetcher,
		Consumer:   parser.NewTextConsumer(cfg.Index.DescriptionLength),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	res, runErr := engine.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		logger.Warn("crawl interrupted, saving partial index", "pages", res.Pages)
	}

	ix := engine.Index()
	ix.ComputeRanks(cfg.Index.Damping, cfg.Index.RankIterations)
	snap := ix.Snapshot()

	// Persisting must not be cut short by the signal that ended the crawl.
	saveCtx := context.WithoutCancel(ctx)
	sink, err := openSinks(saveCtx, cfg.Output, engine.RunID(), logger)
	if err != nil {
		return err
	}
	saveErr := sink.Save(saveCtx, snap)
	if err := errors.Join(saveErr, sink.Close()); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	logger.Info("index saved",
		"documents", ix.Len(),
		"words", ix.Words(),
		"hosts", robots.Hosts(),
		"csv_dir", cfg.Output.CSVDir,
		"sqlite", cfg.Output.SQLitePath)
	return nil
}

func openSinks(ctx context.Context, out config.OutputConfig, runID string, logger *slog.Logger) (storage.Sink, error) {
	var sinks []storage.Sink
	if out.CSVDir != "" {
		sinks = append(sinks, storage.NewCSVSink(out.CSVDir))
	}
	if out.SQLitePath != "" {
		db, err := storage.OpenSQLite(ctx, out.SQLitePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, db)
	}
	mongo, err := storage.NewMongoStore(ctx, out.MongoURI, out.MongoDatabase, out.MongoCollection, runID, logger)
	if err != nil {
		_ = storage.Multi(sinks...).Close()
		return nil, err
	}
	sinks = append(sinks, mongo)
	return storage.Multi(sinks...), nil
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
