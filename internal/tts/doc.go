// Package tts synthesizes assistant replies through OpenAI-compatible speech APIs.
// Raw 16-bit PCM responses are wrapped as WAV streams and cached per voice and text.
package tts
