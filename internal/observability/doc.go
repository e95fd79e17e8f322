// Package observability provides structured logging and metrics for the
// venture hub API.
//
// Logging is zap based with request scoped fields carried in the context.
// Metrics are Prometheus collectors registered on a caller supplied
// registry and exposed at /metrics.
package observability
