// Package mockapi implements a local stand-in for the OpenAI-compatible speech-to-text,
// chat completion and text-to-speech APIs the service depends on. Responses are
// deterministic so the service can be exercised end to end without external accounts.
package mockapi
