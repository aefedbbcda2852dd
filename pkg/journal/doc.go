// Package journal records migration progress in Redis.
//
// A Journal is a migrate.Observer. For every page it stores a PageEntry
// (object type, page index, skip offset, stage, error and optionally the page
// payload) under a deterministic key, and it keeps a per-run RunState with
// page counters and the run status.
//
// Basic usage:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	j := journal.New(rdb, "projects-20240101", journal.DefaultConfig(), logger)
//
//	if err := j.Start(ctx); err != nil {
//	    return err
//	}
//	pages, err := migrate.New(src, dest, migrate.DefaultConfig(), migrate.WithObserver(j)).
//	    Migrate(ctx, req, nil)
//	_ = j.Finish(ctx, err)
//
// Key format:
//
//	xogm:run:<run-id>                                       run state (hash)
//	xogm:page:<run-id>:<bundle>:<object-type>:<page-index>  page entry (JSON)
//
// Journal writes are best effort. Observer callbacks log failures at warn
// level and count them in xog_journal_errors_total; they never fail the
// migration.
package journal
