package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
)

const (
	// Frame types
	FrameTypeStart = 0x01
	FrameTypeAudio = 0x02
	FrameTypeEnd   = 0x03

	// Frame structure sizes
	HeaderSize       = 9  // 1 + 4 + 4 bytes
	StartPayloadSize = 45 // 4 + 1 + 32 + 8 bytes

	// String field sizes in start payload
	VoiceIDSize  = 32
	LanguageSize = 8
)

// Header represents the 9-byte stream frame header
// Layout: [FrameType:1][SegmentID:4][Sequence:4]
type Header struct {
	FrameType uint8  // 0x01=Start, 0x02=Audio, 0x03=End
	SegmentID uint32 // Speech segment identifier
	Sequence  uint32 // Frame sequence number within the segment
}

// StartPayload opens a segment
// Layout: [SampleRate:4][Channels:1][VoiceID:32][Language:8]
type StartPayload struct {
	SampleRate uint32
	Channels   uint8
	VoiceID    [VoiceIDSize]byte  // Null-terminated string, empty selects the default voice
	Language   [LanguageSize]byte // Null-terminated string, empty selects the default language
}

// Frame represents a fully parsed stream frame
type Frame struct {
	Header  *Header
	Start   *StartPayload // Only set for start frames
	Samples []float32     // Only set for audio frames
}

// ParseHeader parses the 9-byte frame header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	return &Header{
		FrameType: data[0],
		SegmentID: binary.BigEndian.Uint32(data[1:5]),
		Sequence:  binary.BigEndian.Uint32(data[5:9]),
	}, nil
}

// ParseStartPayload parses the 45-byte start payload
func ParseStartPayload(data []byte) (*StartPayload, error) {
	if len(data) != StartPayloadSize {
		return nil, fmt.Errorf("start payload size mismatch: expected %d bytes, got %d",
			StartPayloadSize, len(data))
	}

	payload := &StartPayload{
		SampleRate: binary.BigEndian.Uint32(data[0:4]),
		Channels:   data[4],
	}
	copy(payload.VoiceID[:], data[5:5+VoiceIDSize])
	copy(payload.Language[:], data[5+VoiceIDSize:StartPayloadSize])

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return payload, nil
}

// ParseAudioPayload parses little-endian float32 samples
func ParseAudioPayload(data []byte) ([]float32, error) {
	samples, err := audio.Float32FromLE(data)
	if err != nil {
		return nil, fmt.Errorf("invalid audio payload: %w", err)
	}
	return samples, nil
}

// ParseFrame parses a complete stream frame (header + payload)
func ParseFrame(data []byte) (*Frame, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if !IsValidFrameType(header.FrameType) {
		return nil, fmt.Errorf("unknown frame type: 0x%02x", header.FrameType)
	}

	frame := &Frame{Header: header}
	payloadData := data[HeaderSize:]

	switch header.FrameType {
	case FrameTypeStart:
		payload, err := ParseStartPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start payload: %w", err)
		}
		frame.Start = payload

	case FrameTypeAudio:
		samples, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		frame.Samples = samples

	case FrameTypeEnd:
		if len(payloadData) != 0 {
			return nil, fmt.Errorf("end frame must have an empty payload, got %d bytes", len(payloadData))
		}
	}

	return frame, nil
}

// IsValidFrameType checks if the frame type is valid
func IsValidFrameType(ftype uint8) bool {
	return ftype == FrameTypeStart || ftype == FrameTypeAudio || ftype == FrameTypeEnd
}

// Validate checks the segment format requested by a start frame
func (s *StartPayload) Validate() error {
	if s.SampleRate < 1 || s.SampleRate > audio.MaxSampleRate {
		return fmt.Errorf("sample rate must be between 1 and %d, got %d", audio.MaxSampleRate, s.SampleRate)
	}

	if s.Channels < 1 || s.Channels > audio.MaxChannels {
		return fmt.Errorf("channels must be between 1 and %d, got %d", audio.MaxChannels, s.Channels)
	}

	return nil
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetVoiceID extracts the voice ID as a string
func (s *StartPayload) GetVoiceID() string {
	return ExtractString(s.VoiceID[:])
}

// GetLanguage extracts the language as a string
func (s *StartPayload) GetLanguage() string {
	return ExtractString(s.Language[:])
}

// BuildHeader serializes a frame header
func BuildHeader(frameType uint8, segmentID, sequence uint32) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = frameType
	binary.BigEndian.PutUint32(buf[1:5], segmentID)
	binary.BigEndian.PutUint32(buf[5:9], sequence)
	return buf
}

// BuildStartFrame serializes a start frame
func BuildStartFrame(segmentID, sequence, sampleRate uint32, channels uint8, voiceID, language string) ([]byte, error) {
	if len(voiceID) > VoiceIDSize {
		return nil, fmt.Errorf("voice ID too long: max %d bytes, got %d", VoiceIDSize, len(voiceID))
	}
	if len(language) > LanguageSize {
		return nil, fmt.Errorf("language too long: max %d bytes, got %d", LanguageSize, len(language))
	}

	buf := make([]byte, HeaderSize+StartPayloadSize)
	copy(buf, BuildHeader(FrameTypeStart, segmentID, sequence))

	payload := buf[HeaderSize:]
	binary.BigEndian.PutUint32(payload[0:4], sampleRate)
	payload[4] = channels
	copy(payload[5:5+VoiceIDSize], voiceID)
	copy(payload[5+VoiceIDSize:], language)

	return buf, nil
}

// BuildAudioFrame serializes an audio frame
func BuildAudioFrame(segmentID, sequence uint32, samples []float32) []byte {
	return append(BuildHeader(FrameTypeAudio, segmentID, sequence), audio.Float32ToLE(samples)...)
}

// BuildEndFrame serializes an end frame
func BuildEndFrame(segmentID, sequence uint32) []byte {
	return BuildHeader(FrameTypeEnd, segmentID, sequence)
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var frameType string

	switch h.FrameType {
	case FrameTypeStart:
		frameType = "Start"
	case FrameTypeAudio:
		frameType = "Audio"
	case FrameTypeEnd:
		frameType = "End"
	default:
		frameType = fmt.Sprintf("Unknown(0x%02x)", h.FrameType)
	}

	return fmt.Sprintf("Header{Type:%s, SegmentID:%d, Sequence:%d}", frameType, h.SegmentID, h.Sequence)
}

// String returns a human-readable representation of the start payload
func (s *StartPayload) String() string {
	return fmt.Sprintf("StartPayload{SampleRate:%d, Channels:%d, VoiceID:%q, Language:%q}",
		s.SampleRate, s.Channels, s.GetVoiceID(), s.GetLanguage())
}
