// Package llm is a client for OpenAI-compatible chat and text completion APIs.
package llm
