package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultSampleRate is the capture rate used by the browser VAD and the ASR model
	DefaultSampleRate = 16000

	// MaxSampleRate bounds client supplied sample rates
	MaxSampleRate = 384000

	// MaxChannels bounds client supplied channel counts
	MaxChannels = 8
)

// Segment is one captured speech segment of normalized float samples
type Segment struct {
	Samples    []float32 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
}

// Validate checks the segment parameters a client is allowed to choose
func (s *Segment) Validate() error {
	if s.SampleRate < 1 || s.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample_rate must be between 1 and %d, got %d", MaxSampleRate, s.SampleRate)
	}

	if s.Channels < 1 || s.Channels > MaxChannels {
		return fmt.Errorf("channels must be between 1 and %d, got %d", MaxChannels, s.Channels)
	}

	return nil
}

// Duration returns the playback length of the segment
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	frames := len(s.Samples) / s.Channels
	return time.Duration(frames) * time.Second / time.Duration(s.SampleRate)
}

// Encode returns the WAV encoding of the segment
func (s *Segment) Encode() []byte {
	return EncodeWAV(s.Samples, s.Channels, s.SampleRate)
}

// Truncate returns a segment capped at maxDuration and whether it was shortened
func Truncate(s *Segment, maxDuration time.Duration) (*Segment, bool) {
	if maxDuration <= 0 || s.SampleRate <= 0 || s.Channels <= 0 {
		return s, false
	}

	limit := int(maxDuration.Seconds()*float64(s.SampleRate)) * s.Channels
	if len(s.Samples) <= limit {
		return s, false
	}

	return &Segment{
		Samples:    s.Samples[:limit],
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
	}, true
}

// Float32FromLE decodes little-endian IEEE-754 float32 samples
func Float32FromLE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 audio data length must be a multiple of 4 (got %d bytes)", len(data))
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	return samples, nil
}

// Float32ToLE encodes float32 samples as little-endian bytes
func Float32ToLE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// Float32FromPCM16LE decodes little-endian signed 16-bit PCM into normalized samples
func Float32FromPCM16LE(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("audio data length must be even (got %d bytes)", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = Int16ToFloat32(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}

	return samples, nil
}

// Int16ToFloat32 maps a PCM-16 value onto [-1, 1)
func Int16ToFloat32(v int16) float32 {
	return float32(v) / 32768
}
