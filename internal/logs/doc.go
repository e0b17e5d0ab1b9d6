// Package logs reads the daemon log file for the CLI's logs command and
// the LogTail IPC verb.
package logs
