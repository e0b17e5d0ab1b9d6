// Package logging constructs the slog loggers used across reelstream and
// provides the shared attribute helpers and field name conventions.
package logging
