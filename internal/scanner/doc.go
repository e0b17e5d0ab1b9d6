// Package scanner discovers source files needing transcoding and feeds the
// queue.
//
// Scans honor context cancellation between directory entries and run as
// tracked tasks with observable status rather than fire-and-forget
// goroutines.
package scanner
