package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/xog-migrate/pkg/logging"
	"github.com/Sternrassler/xog-migrate/pkg/query"
	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/beevik/etree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for migrations.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xog_migrate_pages_total",
		Help: "Pages processed by object type and stage (read, written, failed)",
	}, []string{"object_type", "stage"})

	inflightWrites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xog_migrate_inflight_writes",
		Help: "Destination writes currently in flight",
	})
)

// ErrNotAuthenticated is returned when a migration is attempted with a
// client that is not logged in.
var ErrNotAuthenticated = errors.New("client is not logged in")

// Session is the part of a XOG client the migrator needs.
type Session interface {
	Name() string
	Authenticated() bool
	Call(ctx context.Context, body *etree.Element) (*xog.Response, error)
}

// TransformFunc rewrites a source page before it is written.
type TransformFunc func(page *etree.Element) (*etree.Element, error)

// Page is one page read from the source.
type Page struct {
	ObjectType string

	// Bundle is the 1-based position of the page's bundle in the request.
	// Content pack bundles share an object type and are told apart by it.
	Bundle int

	// Index is the 1-based page number within the bundle.
	Index int
	Skip       int
	Payload    *etree.Element
}

// Observer is notified about page progress. Implementations must be safe
// for concurrent use; PageWritten is called from writer goroutines.
type Observer interface {
	PageRead(ctx context.Context, page Page)
	PageWritten(ctx context.Context, page Page, err error)
}

// Config holds migrator configuration.
type Config struct {
	// Concurrency is the maximum number of destination writes in flight.
	Concurrency int
}

// DefaultConfig returns the default migrator configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 3,
	}
}

// Migrator moves records from a source session to a destination session.
type Migrator struct {
	src      Session
	dest     Session
	config   Config
	observer Observer
	logger   zerolog.Logger
}

// Option customizes a Migrator.
type Option func(*Migrator)

// WithObserver registers an observer for page progress.
func WithObserver(o Observer) Option {
	return func(m *Migrator) {
		m.observer = o
	}
}

// WithLogger replaces the default component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// New creates a migrator from src to dest.
func New(src, dest Session, config Config, opts ...Option) *Migrator {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}

	m := &Migrator{
		src:    src,
		dest:   dest,
		config: config,
		logger: logging.NewLogger(logging.ComponentMigrator),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Migrate reads req from the source and writes every page to the destination.
//
// It returns the (transformed) pages in the order they were read, once every
// write has completed. A content pack is migrated one bundle at a time.
func (m *Migrator) Migrate(ctx context.Context, req query.Request, transform TransformFunc) ([]*etree.Element, error) {
	if !m.src.Authenticated() {
		return nil, fmt.Errorf("source %s: %w", m.src.Name(), ErrNotAuthenticated)
	}
	if !m.dest.Authenticated() {
		return nil, fmt.Errorf("destination %s: %w", m.dest.Name(), ErrNotAuthenticated)
	}

	bundles, err := query.Bundles(req)
	if err != nil {
		return nil, err
	}

	var pages []*etree.Element
	for i, b := range bundles {
		sent, err := m.migrateBundle(ctx, i+1, b, transform)
		pages = append(pages, sent...)
		if err != nil {
			return pages, err
		}
	}

	return pages, nil
}

// migrateBundle pages through one bundle.
//
// The reader goroutine acquires a window slot before each source read and
// hands the page to the dispatcher over an unbuffered channel. The dispatcher
// starts one writer per page; the writer releases the slot when its
// destination call returns. The first failure cancels the shared context so
// the reader stops and no further writes start.
func (m *Migrator) migrateBundle(ctx context.Context, bundle int, b query.Bundle, transform TransformFunc) ([]*etree.Element, error) {
	start := time.Now()
	objectType := b.Header.ObjectType

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	g, gctx := errgroup.WithContext(runCtx)
	slots := semaphore.NewWeighted(int64(m.config.Concurrency))
	pagesCh := make(chan Page)

	m.logger.Info().
		Str("object_type", objectType).
		Int("bundle", bundle).
		Int("concurrency", m.config.Concurrency).
		Msg("Starting migration")

	g.Go(func() error {
		defer close(pagesCh)
		if err := m.paginate(gctx, bundle, b, transform, slots, pagesCh); err != nil {
			abort(err)
			return err
		}
		return nil
	})

	var sent []*etree.Element
	for page := range pagesCh {
		if gctx.Err() != nil {
			slots.Release(1)
			continue
		}

		sent = append(sent, page.Payload)
		page := page
		g.Go(func() error {
			return m.write(gctx, page, slots, abort)
		})
	}

	err := g.Wait()
	if err != nil {
		if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			err = cause
		}
		m.logger.Error().
			Err(err).
			Str("object_type", objectType).
			Int("bundle", bundle).
			Int("pages", len(sent)).
			Dur("duration", time.Since(start)).
			Msg("Migration failed")
		return sent, err
	}

	m.logger.Info().
		Str("object_type", objectType).
		Int("bundle", bundle).
		Int("pages", len(sent)).
		Dur("duration", time.Since(start)).
		Msg("Migration complete")

	return sent, nil
}

// paginate reads pages in order until a response carries no Skip cursor.
// It always reads at least one page.
func (m *Migrator) paginate(ctx context.Context, bundle int, b query.Bundle, transform TransformFunc, slots *semaphore.Weighted, out chan<- Page) error {
	objectType := b.Header.ObjectType
	skip := 0

	for index := 1; ; index++ {
		if err := slots.Acquire(ctx, 1); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			slots.Release(1)
			return err
		}

		page, next, err := m.read(ctx, bundle, b, index, skip, transform)
		if err != nil {
			slots.Release(1)
			pagesTotal.WithLabelValues(objectType, "failed").Inc()
			return err
		}

		select {
		case out <- page:
		case <-ctx.Done():
			slots.Release(1)
			return ctx.Err()
		}

		if next == nil {
			return nil
		}
		skip = *next
		b = b.WithSkip(skip)
	}
}

// read performs one source call and applies the transform.
func (m *Migrator) read(ctx context.Context, bundle int, b query.Bundle, index, skip int, transform TransformFunc) (Page, *int, error) {
	objectType := b.Header.ObjectType

	el, err := b.Element()
	if err != nil {
		return Page{}, nil, err
	}

	resp, err := m.src.Call(ctx, el)
	if err != nil {
		return Page{}, nil, fmt.Errorf("read %s page %d: %w", objectType, index, err)
	}

	payload := resp.Payload
	if transform != nil {
		if payload, err = transform(payload); err != nil {
			return Page{}, nil, fmt.Errorf("transform %s page %d: %w", objectType, index, err)
		}
	}

	page := Page{ObjectType: objectType, Bundle: bundle, Index: index, Skip: skip, Payload: payload}

	pagesTotal.WithLabelValues(objectType, "read").Inc()
	m.logger.Debug().
		Str("object_type", objectType).
		Int("bundle", bundle).
		Int("page", index).
		Int("skip", skip).
		Bool("more", resp.HasMore()).
		Msg("Read page")
	if m.observer != nil {
		m.observer.PageRead(ctx, page)
	}

	return page, resp.Skip, nil
}

// write sends one page to the destination and frees its window slot.
func (m *Migrator) write(ctx context.Context, page Page, slots *semaphore.Weighted, abort context.CancelCauseFunc) error {
	defer slots.Release(1)

	if err := ctx.Err(); err != nil {
		return err
	}

	inflightWrites.Inc()
	_, callErr := m.dest.Call(ctx, page.Payload)
	inflightWrites.Dec()

	if callErr != nil {
		err := fmt.Errorf("write %s page %d: %w", page.ObjectType, page.Index, callErr)
		// Cancel before notifying the observer, which may block.
		abort(err)
		pagesTotal.WithLabelValues(page.ObjectType, "failed").Inc()
		m.logger.Warn().
			Err(err).
			Str("object_type", page.ObjectType).
			Int("bundle", page.Bundle).
			Int("page", page.Index).
			Msg("Page write failed")
		if m.observer != nil {
			m.observer.PageWritten(ctx, page, callErr)
		}
		return err
	}

	if m.observer != nil {
		m.observer.PageWritten(ctx, page, nil)
	}

	pagesTotal.WithLabelValues(page.ObjectType, "written").Inc()
	m.logger.Debug().
		Str("object_type", page.ObjectType).
		Int("bundle", page.Bundle).
		Int("page", page.Index).
		Msg("Wrote page")

	return nil
}
