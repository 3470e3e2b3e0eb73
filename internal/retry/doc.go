// Package retry implements exponential backoff for calls to OpenAI-compatible APIs.
package retry
