// Package server implements the HTTP API and the WebSocket segment stream.
// Segments arrive as HTTP bodies (WAV, JSON or raw PCM) or as binary stream
// frames and are handed to the session manager; replies go back as JSON
// events, WAV bytes or data URLs. Monitoring endpoints and Prometheus metrics
// are served alongside.
package server
