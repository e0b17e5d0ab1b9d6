// Package daemon is the composition root for reelstreamd.
//
// It enforces single-instance execution with a file lock, owns the queue
// and catalog stores, the scheduler, the buffer session registry, and the
// scan manager, and exposes the operations the IPC and HTTP surfaces call.
package daemon
