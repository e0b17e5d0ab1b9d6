// Package queue persists transcode jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, ordering,
// dedup, stats queries, and the status transitions used by the scheduler.
// Display order of queued jobs is fully determined by the position column;
// priority decides where a new job is inserted, after which manual reorder
// operations may override it.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
