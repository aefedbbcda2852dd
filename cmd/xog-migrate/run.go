package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/xog-migrate/internal/config"
	"github.com/Sternrassler/xog-migrate/pkg/client"
	"github.com/Sternrassler/xog-migrate/pkg/journal"
	"github.com/Sternrassler/xog-migrate/pkg/logging"
	"github.com/Sternrassler/xog-migrate/pkg/metrics"
	"github.com/Sternrassler/xog-migrate/pkg/migrate"
	"github.com/Sternrassler/xog-migrate/pkg/query"
	"github.com/beevik/etree"
	"github.com/redis/go-redis/v9"
)

// runMigration runs one migration of req from the source to the destination and
// prints a summary to out.
func (a *app) runMigration(ctx context.Context, out io.Writer, req query.Request) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	stopMetrics := a.serveMetrics(ctx)
	defer stopMetrics()

	src, err := client.New(a.cfg.Source.ClientConfig("source"))
	if err != nil {
		return err
	}
	dest, err := client.New(a.cfg.Destination.ClientConfig("destination"))
	if err != nil {
		return err
	}

	opts := []migrate.Option{migrate.WithLogger(logging.NewLogger(logging.ComponentMigrator).With().Str("run_id", a.runID).Logger())}

	j, closeJournal, err := a.openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()
	if j != nil {
		if err := j.Start(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Journal unavailable, continuing without it")
			j = nil
		} else {
			opts = append(opts, migrate.WithObserver(j))
		}
	}

	var pages []*etree.Element
	err = withSession(ctx, src, a.cfg.Source, func(src *client.Client) error {
		return withSession(ctx, dest, a.cfg.Destination, func(dest *client.Client) error {
			m := migrate.New(src, dest, migrate.Config{Concurrency: a.cfg.Concurrency}, opts...)
			var err error
			pages, err = m.Migrate(ctx, req, prepareWrite)
			return err
		})
	})

	if j != nil {
		if finishErr := j.Finish(context.WithoutCancel(ctx), err); finishErr != nil {
			a.logger.Warn().Err(finishErr).Msg("Failed to record run outcome")
		}
	}

	if err != nil {
		a.logger.Error().Err(err).Str("run_id", a.runID).Int("pages", len(pages)).Msg("Migration failed")
		return err
	}

	fmt.Fprintf(out, "run %s: migrated %d page(s)\n", a.runID, len(pages))
	return nil
}

// withSession runs fn on c. Endpoints configured with a username are logged
// in and out around fn; a preset session ID is used as is and left open.
func withSession(ctx context.Context, c *client.Client, ep config.Endpoint, fn func(*client.Client) error) error {
	if ep.Username == "" {
		return fn(c)
	}
	return client.WithSession(ctx, c, ep.Username, ep.Password, fn)
}

// prepareWrite turns a read page into an import request by dropping the
// XOGOutput status block the read response carries.
func prepareWrite(page *etree.Element) (*etree.Element, error) {
	out := page.Copy()
	if status := out.SelectElement("XOGOutput"); status != nil {
		out.RemoveChild(status)
	}
	return out, nil
}

// openJournal connects to Redis when a URL is configured. The returned journal
// is nil when journaling is disabled.
func (a *app) openJournal(ctx context.Context) (*journal.Journal, func(), error) {
	if a.noJournal || a.cfg.RedisURL == "" {
		return nil, func() {}, nil
	}

	rdb, err := newRedis(a.cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		a.logger.Warn().Err(err).Msg("Redis not reachable, journal disabled")
		rdb.Close()
		return nil, func() {}, nil
	}

	j := journal.New(rdb, a.runID, a.cfg.Journal(), logging.NewLogger(logging.ComponentJournal))
	return j, func() { rdb.Close() }, nil
}

func newRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// serveMetrics starts the metrics endpoint when configured and returns a
// function that stops it.
func (a *app) serveMetrics(ctx context.Context) func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger); err != nil {
			a.logger.Warn().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("Metrics server failed")
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
