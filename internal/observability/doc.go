// Package observability holds Prometheus metrics and OpenTelemetry tracing helpers.
package observability
