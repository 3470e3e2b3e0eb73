// Package audio handles speech segment encoding and assembly.
// It encodes normalized float samples into canonical 16-bit PCM WAV streams,
// decodes client payloads, and reassembles streamed frames with sequence reordering.
package audio
