package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/archive"
	"github.com/ryanm101/spielpendium/internal/bgg"
	"github.com/ryanm101/spielpendium/internal/collection"
	"github.com/ryanm101/spielpendium/internal/config"
	"github.com/ryanm101/spielpendium/internal/db"
	"github.com/ryanm101/spielpendium/internal/logging"
	"github.com/ryanm101/spielpendium/internal/metrics"
	"github.com/ryanm101/spielpendium/internal/tracing"
)

// app carries the flags and lazily opened resources shared by all commands.
type app struct {
	configFlag  string
	archiveFlag string
	metricsFile string
	out         *printer

	cfg       *config.Config
	cfgSource string
	logger    *slog.Logger

	shutdownTracing func(context.Context) error
	span            trace.Span
	cache           *db.DB
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{out: &printer{stdout: stdout, stderr: stderr}, logger: logging.Nop()}
}

func (a *app) setup(ctx context.Context) error {
	cfg, source, err := config.Load(strings.TrimSpace(a.configFlag))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.cfgSource = source

	lc := cfg.LogConfig()
	if a.out.quiet && lc.Level != "debug" {
		lc.Level = "error"
	}
	a.logger = logging.Setup(lc, a.out.stderr)

	shutdown, err := tracing.Setup(ctx, cfg.TraceConfig())
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	a.logger.Debug("configuration loaded", "source", source, "archive", a.archivePath())
	return nil
}

// startSpan opens the span covering one command invocation.
func (a *app) startSpan(ctx context.Context, command string) context.Context {
	ctx, a.span = tracing.StartSpan(ctx, command,
		tracing.WithAttributes(attribute.String("archive.path", a.archivePath())))
	return ctx
}

// close ends the command span with err and releases shared resources.
func (a *app) close(ctx context.Context, err error) {
	if a.span != nil {
		tracing.End(a.span, err)
		a.span = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logging.Warn("close cache", "error", err)
		}
		a.cache = nil
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			logging.Warn("shutdown tracing", "error", err)
		}
		a.shutdownTracing = nil
	}
	_ = logging.Close()
}

func (a *app) writeMetrics() error {
	if a.metricsFile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(a.metricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func (a *app) archivePath() string {
	if a.archiveFlag != "" {
		return a.archiveFlag
	}
	return a.cfg.GetArchivePath()
}

func (a *app) codec() *archive.Codec {
	return archive.New(archive.WithLogger(a.logger))
}

// loadStore opens the configured archive. A missing archive yields an empty
// store unless mustExist is set.
func (a *app) loadStore(mustExist bool) (*collection.Store, *changeTracker, error) {
	tracker := &changeTracker{}
	store := collection.NewStore(
		collection.WithLogger(a.logger),
		collection.WithCodec(a.codec()),
		collection.WithObserver(tracker),
	)
	path := a.archivePath()
	if err := store.Load(path); err != nil {
		if !mustExist && errors.Is(err, apperr.ErrNotFound) {
			a.logger.Info("starting new collection", "path", path)
			return store, tracker, nil
		}
		return nil, nil, err
	}
	tracker.changes = 0
	return store, tracker, nil
}

// saveStore writes the store back when the tracker saw a change.
func (a *app) saveStore(store *collection.Store, tracker *changeTracker) error {
	if tracker != nil && tracker.changes == 0 {
		a.logger.Debug("collection unchanged, not saving")
		return nil
	}
	path := a.archivePath()
	if err := store.Save(path); err != nil {
		return err
	}
	a.logger.Info("collection saved", "path", path, "records", store.Len())
	return nil
}

func (a *app) openCache(ctx context.Context) (*db.DB, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	cache, err := db.Open(ctx, a.cfg.GetCachePath())
	if err != nil {
		return nil, fmt.Errorf("open response cache: %w", err)
	}
	a.cache = cache
	return cache, nil
}

// catalog builds a catalog client. The response cache is skipped when
// useCache is false.
func (a *app) catalog(ctx context.Context, useCache bool) (*bgg.Client, error) {
	cc := a.cfg.Catalog
	fetcher := bgg.NewHTTPFetcher(cc.Timeout, bgg.WithRateLimit(cc.RateLimit, cc.Burst))
	opts := []bgg.Option{
		bgg.WithBaseURL(cc.BaseURL),
		bgg.WithFetcher(fetcher),
		bgg.WithRetryPolicy(a.cfg.RetryPolicy()),
		bgg.WithClientLogger(a.logger),
	}
	if useCache {
		cache, err := a.openCache(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bgg.WithCache(cache, a.cfg.Cache.MaxAge))
	}
	return bgg.NewClient(opts...), nil
}

// changeTracker counts store mutations so unchanged collections are not
// rewritten.
type changeTracker struct {
	changes int
}

func (t *changeTracker) RecordChanged(string, string) { t.changes++ }
func (t *changeTracker) RowsInserted(first, last int) { t.changes += last - first + 1 }
func (t *changeTracker) RowsRemoved(first, last int)  { t.changes += last - first + 1 }
func (t *changeTracker) Reset()                       { t.changes++ }

func exitCode(err error) int {
	switch apperr.Kind(err) {
	case "validation":
		return 2
	case "not_found":
		return 3
	case "corrupt_archive":
		return 4
	case "timeout", "transient_network":
		return 5
	default:
		return 1
	}
}
