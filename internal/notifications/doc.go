// Package notifications sends push notifications for job lifecycle events
// via ntfy.
//
// With no topic configured every notification is a silent no-op.
package notifications
