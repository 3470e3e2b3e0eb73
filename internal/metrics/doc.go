// Package metrics exposes Prometheus metrics for streams, sessions, pipeline stages and the HTTP API.
package metrics
