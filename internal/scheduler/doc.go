// Package scheduler runs the worker pool that drains the transcode queue.
//
// Up to MaxConcurrent encoder processes run at once. Pause is cooperative
// and lets active runs finish, stop cancels them, and a watchdog fails runs
// whose progress heartbeat goes stale. Failed jobs stay failed until an
// operator resets them.
package scheduler
