package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// HeaderSize is the size of the canonical RIFF/WAVE header in bytes
	HeaderSize = 44

	// MIMEType is the content type of an encoded segment
	MIMEType = "audio/wav"

	formatPCM     = 1
	bitsPerSample = 16
	bytesPerValue = bitsPerSample / 8
	fmtChunkSize  = 16
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewWAVHeader builds the header for sampleCount samples.
// The data chunk covers 2 bytes per sample while the file itself is sized for
// every channel, so multi-channel output carries zeroed trailing bytes.
func NewWAVHeader(sampleCount, numChannels, sampleRate int) WAVHeader {
	fileSize := HeaderSize + bytesPerValue*numChannels*sampleCount

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(fileSize - 8),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: fmtChunkSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(numChannels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(numChannels * bytesPerValue * sampleRate),
		BlockAlign:    uint16(numChannels * bytesPerValue),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(bytesPerValue * sampleCount),
	}
}

// EncodeWAV encodes normalized float samples into a 16-bit PCM WAV stream.
// It never fails: out-of-range values are clamped and no input is validated.
// A channel count below 1 yields a bare header with no sample data.
func EncodeWAV(samples []float32, numChannels, sampleRate int) []byte {
	header := NewWAVHeader(len(samples), numChannels, sampleRate)

	size := HeaderSize + bytesPerValue*numChannels*len(samples)
	if size < HeaderSize {
		size = HeaderSize
	}
	out := make([]byte, size)

	// out is always large enough for the fixed-size header
	var hdr bytes.Buffer
	_ = binary.Write(&hdr, binary.LittleEndian, &header)
	copy(out[:HeaderSize], hdr.Bytes())

	p := HeaderSize
	for _, v := range samples {
		if p+bytesPerValue > len(out) {
			break
		}
		binary.LittleEndian.PutUint16(out[p:], uint16(QuantizeSample(v)))
		p += bytesPerValue
	}

	return out
}

// QuantizeSample converts a normalized sample to signed 16-bit PCM
func QuantizeSample(v float32) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	case math.IsNaN(float64(v)):
		return 0
	default:
		return int16(float64(v) * 32768)
	}
}

// DataURL wraps encoded WAV bytes into a base64 data URL for direct playback
func DataURL(wav []byte) string {
	return "data:" + MIMEType + ";base64," + base64.StdEncoding.EncodeToString(wav)
}

// readHeader parses and validates the fixed header of a 16-bit PCM stream
func readHeader(data []byte) (*WAVHeader, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.AudioFormat != formatPCM {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != bitsPerSample {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	if header.NumChannels == 0 {
		return nil, fmt.Errorf("invalid channel count: 0")
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	return &header, nil
}

// DecodeWAV decodes 16-bit PCM WAV data back to normalized float samples
func DecodeWAV(data []byte) (*Segment, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	available := len(data) - HeaderSize
	dataSize := int(header.Subchunk2Size)
	if dataSize > available {
		return nil, fmt.Errorf("WAV data truncated: header declares %d bytes, got %d", dataSize, available)
	}

	samples, err := Float32FromPCM16LE(data[HeaderSize : HeaderSize+dataSize])
	if err != nil {
		return nil, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return &Segment{
		Samples:    samples,
		SampleRate: int(header.SampleRate),
		Channels:   int(header.NumChannels),
	}, nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo describes the header of an encoded stream
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
	Size          int     `json:"size_bytes"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	numSamples := header.Subchunk2Size / bytesPerValue

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numSamples) / float64(header.NumChannels) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
		Size:          len(data),
	}, nil
}
