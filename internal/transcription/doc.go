// Package transcription implements the client for OpenAI-compatible speech-to-text APIs.
// It uploads encoded segments as multipart form data, retries transient failures
// with exponential backoff, and bounds concurrent and per-second requests.
package transcription
