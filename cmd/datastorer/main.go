// Command datastorer loads tabular files into a CKAN DataStore.
//
// Usage:
//
//	datastorer run -manifest resources.yaml
//	datastorer run -resource <id> -file data.csv [-format csv] [-mimetype text/csv]
//	datastorer serve
//
// Settings come from the environment (and a .env file if present); see
// internal/config for the keys.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/datastorer/internal/config"
	"github.com/JonMunkholm/datastorer/internal/core"
	"github.com/JonMunkholm/datastorer/internal/datastore"
	"github.com/JonMunkholm/datastorer/internal/history"
	"github.com/JonMunkholm/datastorer/internal/logging"
	"github.com/JonMunkholm/datastorer/internal/manifest"
	"github.com/JonMunkholm/datastorer/internal/metrics"
	"github.com/JonMunkholm/datastorer/internal/web"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Load .env file if it exists; real environment variables win.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "run":
		code = runCommand(ctx, cfg, logger, os.Args[2:])
	case "serve":
		code = serveCommand(ctx, cfg, logger)
	default:
		usage()
		code = 2
	}
	stop()
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: datastorer run -manifest FILE | datastorer run -resource ID -file FILE | datastorer serve")
}

// app holds the components shared by both subcommands.
type app struct {
	pipeline *core.Pipeline
	metrics  *metrics.Metrics
	history  history.Recorder
	close    func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	client := datastore.New(cfg.CKAN.SiteURL, cfg.CKAN.APIKey, cfg.HTTP.Timeout,
		datastore.WithLogger(logger),
		datastore.WithRetry(datastore.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		}),
	)

	m := metrics.New()
	pipeline := core.NewPipeline(client, core.Options{
		ChunkSize:        cfg.Ingest.ChunkSize,
		SampleSize:       cfg.Ingest.SampleSize,
		MaxContentLength: cfg.Ingest.MaxContentLength,
	}, m, logger)

	recorder, closeHistory, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("datastorer ready",
		"ckan", cfg.CKAN.SiteURL,
		"chunk_size", cfg.Ingest.ChunkSize,
		"sample_size", cfg.Ingest.SampleSize,
		"retry_attempts", cfg.Retry.MaxAttempts,
	)
	return &app{pipeline: pipeline, metrics: m, history: recorder, close: closeHistory}, nil
}

// openHistory uses Postgres when DATABASE_URL is set, else an in-memory ring.
func openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (history.Recorder, func(), error) {
	if cfg.Database.URL == "" {
		return history.NewMemory(cfg.History.Size), func() {}, nil
	}

	pool, err := history.Connect(ctx, history.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}

	store := history.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		logger.Info("run history in postgres", "database", strings.TrimPrefix(u.Path, "/"))
	}
	return store, pool.Close, nil
}

func runCommand(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	manifestPath := fs.String("manifest", "", "YAML manifest listing resources to ingest")
	resourceID := fs.String("resource", "", "resource id for a single-file run")
	file := fs.String("file", "", "file to ingest for a single-file run")
	format := fs.String("format", "", "declared format (defaults to the file extension)")
	mimetype := fs.String("mimetype", "", "declared MIME type")
	name := fs.String("name", "", "resource name")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	resources, err := resourcesFromFlags(*manifestPath, *resourceID, *file, *format, *mimetype, *name)
	if err != nil {
		logger.Error("invalid run arguments", "error", err)
		return 2
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	jobs := buildJobs(resources, a.metrics, logger)
	logger.Info("ingesting resources", "count", len(jobs), "skipped", len(resources)-len(jobs), "parallelism", cfg.Ingest.Parallelism)

	failed := 0
	for _, out := range a.pipeline.RunAll(ctx, jobs, cfg.Ingest.Parallelism) {
		run := history.FromOutcome(out.Resource, out.Result, out.Err, out.Started, out.Finished)
		if err := a.history.Record(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("failed to record run", "resource_id", out.Resource.ID, "error", err)
		}

		if out.Err != nil {
			failed++
			logger.Error("resource failed",
				"resource_id", out.Resource.ID,
				"code", run.ErrorCode,
				"message", core.FormatUserError(out.Err),
				"error", out.Err,
			)
			continue
		}
		logger.Info("resource ingested", "resource_id", out.Resource.ID, "records", out.Result.Records)
	}

	logger.Info("run complete", "resources", len(jobs), "failed", failed)
	if failed > 0 {
		return 1
	}
	return 0
}

// resourcesFromFlags returns the manifest resources or the single resource
// described by the flags.
func resourcesFromFlags(manifestPath, resourceID, file, format, mimetype, name string) ([]core.Resource, error) {
	switch {
	case manifestPath != "" && (resourceID != "" || file != ""):
		return nil, errors.New("use either -manifest or -resource/-file, not both")
	case manifestPath != "":
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, err
		}
		return m.Resources, nil
	case resourceID == "" || file == "":
		return nil, errors.New("-resource and -file are required without -manifest")
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
	}
	if name == "" {
		name = filepath.Base(file)
	}
	return []core.Resource{{ID: resourceID, Name: name, Path: file, Format: format, MimeType: mimetype}}, nil
}

// buildJobs drops resources whose format or MIME type is not accepted.
func buildJobs(resources []core.Resource, observer core.Observer, logger *slog.Logger) []core.Job {
	jobs := make([]core.Job, 0, len(resources))
	for _, res := range resources {
		if !core.Accepts(res.MimeType, res.Format) {
			logger.Warn("skipping resource: format not accepted",
				"resource_id", res.ID, "format", res.Format, "mimetype", res.MimeType)
			observer.ResourceSkipped("format")
			continue
		}
		path := res.Path
		jobs = append(jobs, core.Job{
			Resource:    res,
			ContentType: res.MimeType,
			Open:        func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return jobs
}

func serveCommand(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	limiter := core.NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	server := web.NewServer(a.pipeline, limiter, a.history, a.metrics, logger, web.Options{
		Addr:           cfg.Server.Addr(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxUploadBytes: cfg.Ingest.MaxContentLength,
		Metrics:        a.metrics.Handler(),
	})

	if pruner, ok := a.history.(history.Pruner); ok {
		go history.StartRetention(ctx, pruner, history.RetentionConfig{
			MaxAge:   cfg.History.Retention,
			Interval: cfg.History.PruneInterval,
		}, logger)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}
	return 0
}
