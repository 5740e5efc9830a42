// Package store is the SQLite run archive.
//
// Each finished run is one row in runs, carrying the full result JSON, and
// one row per action in items keyed by (run_id, idx). Writing a run that is
// already archived changes nothing.
//
// The archive is queried by the history and show commands and replayed by
// reindex: CreatedItems yields every confirmed create, oldest first, so the
// fingerprint index can be rebuilt after loss.
//
// Times are stored as fixed-width UTC RFC 3339 text; string order is time
// order. The connection runs in WAL mode with a 5s busy timeout and foreign
// keys on.
package store
