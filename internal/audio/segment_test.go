package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentValidate(t *testing.T) {
	tests := map[string]struct {
		segment  Segment
		errorMsg string
	}{
		"valid mono":     {segment: Segment{SampleRate: 16000, Channels: 1}},
		"valid max":      {segment: Segment{SampleRate: MaxSampleRate, Channels: MaxChannels}},
		"zero rate":      {segment: Segment{SampleRate: 0, Channels: 1}, errorMsg: "sample_rate"},
		"rate too high":  {segment: Segment{SampleRate: MaxSampleRate + 1, Channels: 1}, errorMsg: "sample_rate"},
		"zero channels":  {segment: Segment{SampleRate: 16000, Channels: 0}, errorMsg: "channels"},
		"too many chans": {segment: Segment{SampleRate: 16000, Channels: 9}, errorMsg: "channels"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.segment.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errorMsg)
		})
	}
}

func TestSegmentDuration(t *testing.T) {
	mono := &Segment{Samples: make([]float32, 8000), SampleRate: 16000, Channels: 1}
	assert.Equal(t, 500*time.Millisecond, mono.Duration())

	stereo := &Segment{Samples: make([]float32, 16000), SampleRate: 16000, Channels: 2}
	assert.Equal(t, 500*time.Millisecond, stereo.Duration())

	invalid := &Segment{Samples: make([]float32, 10)}
	assert.Zero(t, invalid.Duration())
}

func TestSegmentEncode(t *testing.T) {
	segment := &Segment{Samples: []float32{0.5, -0.5}, SampleRate: 16000, Channels: 1}
	assert.Equal(t, EncodeWAV(segment.Samples, 1, 16000), segment.Encode())
}

func TestTruncate(t *testing.T) {
	segment := &Segment{Samples: make([]float32, 16000*40), SampleRate: 16000, Channels: 1}

	truncated, shortened := Truncate(segment, 30*time.Second)
	assert.True(t, shortened)
	assert.Len(t, truncated.Samples, 16000*30)
	assert.Equal(t, 30*time.Second, truncated.Duration())

	short := &Segment{Samples: make([]float32, 100), SampleRate: 16000, Channels: 1}
	same, shortened := Truncate(short, 30*time.Second)
	assert.False(t, shortened)
	assert.Same(t, short, same)

	unlimited, shortened := Truncate(segment, 0)
	assert.False(t, shortened)
	assert.Same(t, segment, unlimited)
}

func TestTruncateStereoKeepsFrames(t *testing.T) {
	segment := &Segment{Samples: make([]float32, 2*1000), SampleRate: 100, Channels: 2}

	truncated, shortened := Truncate(segment, 2*time.Second)
	require.True(t, shortened)
	assert.Len(t, truncated.Samples, 400)
}

func TestFloat32LE(t *testing.T) {
	samples := []float32{0, 1, -1, 0.25, float32(math.Pi)}

	decoded, err := Float32FromLE(Float32ToLE(samples))
	require.NoError(t, err)
	assert.Equal(t, samples, decoded)

	_, err = Float32FromLE([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "multiple of 4")
}

func TestFloat32FromPCM16LE(t *testing.T) {
	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[0:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(data[2:], 0x8000)
	binary.LittleEndian.PutUint16(data[4:], 32767)

	samples, err := Float32FromPCM16LE(data)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 32767.0 / 32768}, samples)

	_, err = Float32FromPCM16LE([]byte{1})
	assert.ErrorContains(t, err, "even")
}

func TestQuantizeInverse(t *testing.T) {
	for _, v := range []int16{math.MinInt16, -1, 0, 1, 12345, math.MaxInt16} {
		assert.Equal(t, v, QuantizeSample(Int16ToFloat32(v)))
	}
}
