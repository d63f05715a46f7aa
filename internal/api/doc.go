// Package api exposes the read-only status endpoints of a running ingest:
// liveness, readiness, Prometheus metrics and the current page loop progress.
package api
