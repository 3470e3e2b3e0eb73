package protocol

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
)

// Raw sample formats accepted over HTTP
const (
	FormatF32LE = "f32le"
	FormatS16LE = "s16le"
)

// SegmentRequest is the JSON form of a captured segment
type SegmentRequest struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Channels   int       `json:"channels,omitempty"`
}

// Format is the sample rate and channel count assumed for JSON and raw bodies
// that do not state their own
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16kHz mono
func DefaultFormat() Format {
	return Format{SampleRate: audio.DefaultSampleRate, Channels: 1}
}

// DecodeSegment decodes an HTTP request body into a segment.
// WAV bodies carry their own format; JSON and raw bodies fall back to defaults,
// and raw bodies are read as f32le unless format=s16le is given.
func DecodeSegment(contentType string, query url.Values, body []byte, defaults Format) (*audio.Segment, error) {
	mediaType := "application/octet-stream"
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("invalid content type %q: %w", contentType, err)
		}
		mediaType = parsed
	}

	var (
		segment *audio.Segment
		err     error
	)

	switch mediaType {
	case "audio/wav", "audio/wave", "audio/x-wav":
		segment, err = audio.DecodeWAV(body)

	case "application/json":
		segment, err = decodeJSONSegment(body, defaults)

	case "application/octet-stream", "audio/pcm":
		segment, err = decodeRawSegment(query, body, defaults)

	default:
		return nil, fmt.Errorf("unsupported content type: %s", mediaType)
	}

	if err != nil {
		return nil, err
	}

	if err := segment.Validate(); err != nil {
		return nil, err
	}

	return segment, nil
}

func decodeJSONSegment(body []byte, defaults Format) (*audio.Segment, error) {
	var req SegmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON segment: %w", err)
	}

	segment := &audio.Segment{
		Samples:    req.Samples,
		SampleRate: req.SampleRate,
		Channels:   req.Channels,
	}
	if segment.SampleRate == 0 {
		segment.SampleRate = defaults.SampleRate
	}
	if segment.Channels == 0 {
		segment.Channels = defaults.Channels
	}

	return segment, nil
}

func decodeRawSegment(query url.Values, body []byte, defaults Format) (*audio.Segment, error) {
	sampleRate, err := intParam(query, "sample_rate", defaults.SampleRate)
	if err != nil {
		return nil, err
	}

	channels, err := intParam(query, "channels", defaults.Channels)
	if err != nil {
		return nil, err
	}

	var samples []float32
	switch format := query.Get("format"); format {
	case "", FormatF32LE:
		samples, err = audio.Float32FromLE(body)
	case FormatS16LE:
		samples, err = audio.Float32FromPCM16LE(body)
	default:
		return nil, fmt.Errorf("unsupported sample format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	return &audio.Segment{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

func intParam(query url.Values, name string, fallback int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}

	return value, nil
}
