// Package migrate streams XOG records from a source endpoint to a destination
// endpoint.
//
// A read request is paged through the source using the Skip cursor each
// response carries. Every page is optionally transformed and then written to
// the destination while the next page is already being read. The number of
// writes in flight is bounded by a window; when it is full the source loop
// blocks before issuing its next read.
//
// Example usage:
//
//	m := migrate.New(src, dest, migrate.DefaultConfig())
//	pages, err := m.Migrate(ctx, query.Project(query.DefaultProjectOptions(),
//		query.Equals("projectID", "PRJ-1")), nil)
//
// The migrator:
//   - Fails before any network activity if either client is logged out
//   - Migrates each bundle of a content pack in turn
//   - Reads pages strictly in order; writes may complete in any order
//   - Stops at the first failure, cancels in-flight work, and returns that failure
//   - Never retries
//
// A destination call that never returns holds its window slot until the
// transport timeout of the client fires.
package migrate
