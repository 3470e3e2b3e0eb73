package protocol

import "github.com/skypro1111/voice-assistant-service/internal/vad"

// Server to client event types
const (
	EventSession    = "session"
	EventIndicator  = "indicator"
	EventSegment    = "segment"
	EventTranscript = "transcript"
	EventReply      = "reply"
	EventAudio      = "audio"
	EventError      = "error"
)

// Event is a JSON message pushed to stream clients
type Event struct {
	Type        string               `json:"type"`
	SessionID   string               `json:"session_id,omitempty"`
	SegmentID   uint32               `json:"segment_id"`
	AudioURL    string               `json:"audio_url,omitempty"`
	Duration    float64              `json:"duration_seconds,omitempty"`
	Frame       int                  `json:"frame,omitempty"`
	Probability float32              `json:"probability,omitempty"`
	Analysis    *vad.SegmentAnalysis `json:"analysis,omitempty"`
	Indicator   *vad.Indicator       `json:"indicator,omitempty"`
	Text        string               `json:"text,omitempty"`
	Stage       string               `json:"stage,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// NewSessionEvent tells a stream client which session its segments belong to
func NewSessionEvent(sessionID string) Event {
	return Event{Type: EventSession, SessionID: sessionID}
}

// NewIndicatorEvent reports a change of the live speech indicator while a
// segment is streaming
func NewIndicatorEvent(sessionID string, segmentID uint32, result vad.VADResult) Event {
	indicator := vad.IndicatorFor(result.Probability)
	return Event{
		Type:        EventIndicator,
		SessionID:   sessionID,
		SegmentID:   segmentID,
		Frame:       result.WindowIndex,
		Probability: result.Probability,
		Indicator:   &indicator,
	}
}

// NewSegmentEvent reports an encoded segment with its speech analysis
func NewSegmentEvent(sessionID string, segmentID uint32, audioURL string, duration float64, analysis *vad.SegmentAnalysis) Event {
	event := Event{
		Type:      EventSegment,
		SessionID: sessionID,
		SegmentID: segmentID,
		AudioURL:  audioURL,
		Duration:  duration,
		Analysis:  analysis,
	}
	if analysis != nil {
		indicator := vad.IndicatorFor(analysis.PeakProbability)
		event.Indicator = &indicator
	}
	return event
}

// NewTranscriptEvent reports the transcript of a segment
func NewTranscriptEvent(sessionID string, segmentID uint32, text string) Event {
	return Event{Type: EventTranscript, SessionID: sessionID, SegmentID: segmentID, Text: text}
}

// NewReplyEvent reports the assistant reply text
func NewReplyEvent(sessionID string, segmentID uint32, text string) Event {
	return Event{Type: EventReply, SessionID: sessionID, SegmentID: segmentID, Text: text}
}

// NewAudioEvent reports the synthesized reply audio
func NewAudioEvent(sessionID string, segmentID uint32, audioURL string, duration float64) Event {
	return Event{Type: EventAudio, SessionID: sessionID, SegmentID: segmentID, AudioURL: audioURL, Duration: duration}
}

// NewErrorEvent reports a failure, optionally naming the pipeline stage
func NewErrorEvent(sessionID string, segmentID uint32, stage string, err error) Event {
	return Event{Type: EventError, SessionID: sessionID, SegmentID: segmentID, Stage: stage, Error: err.Error()}
}
