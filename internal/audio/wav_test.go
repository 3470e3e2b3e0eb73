package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(t *testing.T, data []byte, index int) int16 {
	t.Helper()
	offset := HeaderSize + index*2
	require.GreaterOrEqual(t, len(data), offset+2)
	return int16(binary.LittleEndian.Uint16(data[offset:]))
}

func TestEncodeWAVLength(t *testing.T) {
	tests := map[string]struct {
		samples     int
		numChannels int
	}{
		"empty mono":     {samples: 0, numChannels: 1},
		"single mono":    {samples: 1, numChannels: 1},
		"one second":     {samples: 16000, numChannels: 1},
		"stereo":         {samples: 10, numChannels: 2},
		"six channels":   {samples: 7, numChannels: 6},
		"odd mono count": {samples: 333, numChannels: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			wavData := EncodeWAV(make([]float32, tt.samples), tt.numChannels, 16000)
			assert.Len(t, wavData, HeaderSize+2*tt.numChannels*tt.samples)
		})
	}
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	samples := []float32{0.1, -0.2, 0.3}
	wavData := EncodeWAV(samples, 2, 22050)

	assert.Equal(t, "RIFF", string(wavData[0:4]))
	assert.Equal(t, uint32(len(wavData)-8), binary.LittleEndian.Uint32(wavData[4:8]))
	assert.Equal(t, "WAVE", string(wavData[8:12]))
	assert.Equal(t, "fmt ", string(wavData[12:16]))
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(wavData[16:20]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wavData[20:22]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wavData[22:24]))
	assert.Equal(t, uint32(22050), binary.LittleEndian.Uint32(wavData[24:28]))
	assert.Equal(t, uint32(2*2*22050), binary.LittleEndian.Uint32(wavData[28:32]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(wavData[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wavData[34:36]))
	assert.Equal(t, "data", string(wavData[36:40]))
	assert.Equal(t, uint32(2*len(samples)), binary.LittleEndian.Uint32(wavData[40:44]))

	// Bytes past the data chunk are zero for multi-channel input
	for _, b := range wavData[HeaderSize+2*len(samples):] {
		assert.Zero(t, b)
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	wavData := EncodeWAV(nil, 1, 16000)

	require.Len(t, wavData, HeaderSize)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(wavData[40:44]))
	assert.Equal(t, uint32(36), binary.LittleEndian.Uint32(wavData[4:8]))
	assert.NoError(t, ValidateWAV(wavData))
}

func TestEncodeWAVNonPositiveChannels(t *testing.T) {
	for _, channels := range []int{0, -1, -8} {
		var out []byte
		require.NotPanics(t, func() { out = EncodeWAV([]float32{0.5, -0.5}, channels, 16000) })

		require.Len(t, out, HeaderSize, "channels=%d", channels)
		assert.Equal(t, "RIFF", string(out[0:4]))
		assert.Equal(t, "data", string(out[36:40]))
		assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(out[40:44]), "data size still counts the samples")
	}
}

func TestEncodeWAVQuantization(t *testing.T) {
	tests := map[string]struct {
		input    float32
		expected int16
		raw      []byte
	}{
		"zero":          {input: 0, expected: 0, raw: []byte{0x00, 0x00}},
		"full positive": {input: 1.0, expected: 32767, raw: []byte{0xFF, 0x7F}},
		"full negative": {input: -1.0, expected: -32768, raw: []byte{0x00, 0x80}},
		"over range":    {input: 2.0, expected: 32767, raw: []byte{0xFF, 0x7F}},
		"under range":   {input: -5.0, expected: -32768, raw: []byte{0x00, 0x80}},
		"half":          {input: 0.5, expected: 16384},
		"negative half": {input: -0.5, expected: -16384},
		"truncates up":  {input: 0.99999, expected: 32767},
		"toward zero":   {input: -0.00002, expected: 0},
		"smallest step": {input: -1.0 / 32768, expected: -1},
		"infinity":      {input: float32(math.Inf(1)), expected: 32767},
		"neg infinity":  {input: float32(math.Inf(-1)), expected: -32768},
		"not a number":  {input: float32(math.NaN()), expected: 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			wavData := EncodeWAV([]float32{tt.input}, 1, 16000)
			assert.Equal(t, tt.expected, sampleAt(t, wavData, 0))
			if tt.raw != nil {
				assert.Equal(t, tt.raw, wavData[HeaderSize:HeaderSize+2])
			}
		})
	}
}

func TestEncodeWAVSampleOrder(t *testing.T) {
	samples := []float32{0.25, -0.25, 0.75, -0.75}
	wavData := EncodeWAV(samples, 1, 16000)

	for i, v := range samples {
		assert.Equal(t, int16(float64(v)*32768), sampleAt(t, wavData, i))
	}
}

func TestEncodeWAVStandardParser(t *testing.T) {
	sampleRate := 16000
	numSamples := 1600
	samples := make([]float32, numSamples)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	wavData := EncodeWAV(samples, 1, sampleRate)

	decoder := wav.NewDecoder(bytes.NewReader(wavData))
	require.True(t, decoder.IsValidFile())

	buf, err := decoder.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, sampleRate, buf.Format.SampleRate)
	require.Len(t, buf.Data, numSamples)

	for i, v := range buf.Data {
		assert.InDelta(t, samples[i], float64(v)/32768, 1.0/32768, "sample %d", i)
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	original := []float32{0, 0.5, -0.5, 0.123, -0.999, 1, -1}
	wavData := EncodeWAV(original, 1, 8000)

	segment, err := DecodeWAV(wavData)
	require.NoError(t, err)

	assert.Equal(t, 8000, segment.SampleRate)
	assert.Equal(t, 1, segment.Channels)
	require.Len(t, segment.Samples, len(original))
	for i, v := range original {
		assert.InDelta(t, v, segment.Samples[i], 1.0/32768)
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	valid := EncodeWAV([]float32{0.1, 0.2}, 1, 16000)

	nonPCM := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(nonPCM[20:22], 3)

	eightBit := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	truncated := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(truncated[40:44], 100)

	zeroRate := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(zeroRate[24:28], 0)

	tests := map[string]struct {
		data     []byte
		errorMsg string
	}{
		"too short":      {data: []byte{1, 2, 3}, errorMsg: "too short"},
		"non pcm":        {data: nonPCM, errorMsg: "unsupported audio format"},
		"eight bit":      {data: eightBit, errorMsg: "unsupported bit depth"},
		"truncated data": {data: truncated, errorMsg: "truncated"},
		"zero rate":      {data: zeroRate, errorMsg: "invalid sample rate"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeWAV(tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestValidateWAV(t *testing.T) {
	err := ValidateWAV([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "too short")

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], "FAKE")
	assert.ErrorContains(t, ValidateWAV(invalidWAV), "missing RIFF")

	noData := EncodeWAV([]float32{0}, 1, 16000)
	copy(noData[36:40], "LIST")
	assert.ErrorContains(t, ValidateWAV(noData), "missing data chunk")
}

func TestGetWAVInfoAndDuration(t *testing.T) {
	sampleRate := 8000
	wavData := EncodeWAV(make([]float32, sampleRate), 1, sampleRate)

	info, err := GetWAVInfo(wavData)
	require.NoError(t, err)
	assert.Equal(t, uint32(sampleRate), info.SampleRate)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint16(16), info.BitsPerSample)
	assert.Equal(t, uint32(sampleRate), info.NumSamples)
	assert.Equal(t, len(wavData), info.Size)

	duration, err := GetWAVDuration(wavData)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, duration, 0.001)
}

func TestDataURL(t *testing.T) {
	wavData := EncodeWAV([]float32{0.5}, 1, 16000)
	url := DataURL(wavData)

	require.True(t, strings.HasPrefix(url, "data:audio/wav;base64,"))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:audio/wav;base64,"))
	require.NoError(t, err)
	assert.Equal(t, wavData, decoded)
}

func TestEncodeWAVConcurrent(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	expected := EncodeWAV(samples, 1, 16000)

	results := make(chan []byte, 16)
	for i := 0; i < cap(results); i++ {
		go func() {
			results <- EncodeWAV(samples, 1, 16000)
		}()
	}

	for i := 0; i < cap(results); i++ {
		assert.Equal(t, expected, <-results)
	}
}
