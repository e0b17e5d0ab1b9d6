// Package api defines the transport DTOs shared by the HTTP API and the
// IPC surface, plus conversions from internal records.
package api
