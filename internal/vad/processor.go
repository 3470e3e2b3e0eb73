package vad

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
)

const (
	// DefaultPositiveThreshold is the frame probability counted as speech
	DefaultPositiveThreshold = 0.8

	// DefaultMinSpeechFrames is the number of speech frames a segment needs to not be a misfire
	DefaultMinSpeechFrames = 5

	// DefaultFrameSize is the number of samples per analysis frame (96ms at 16kHz)
	DefaultFrameSize = 1536
)

// Config holds speech gate parameters
type Config struct {
	PositiveThreshold float32 // Probability at or above which a frame is speech
	MinSpeechFrames   int     // Speech frames required for a real segment
	FrameSize         int     // Samples per frame per channel
	Smoothing         float32 // Weight of the newest frame (0-1]
	EnergyScale       float64 // RMS level mapped to probability 1.0
}

// DefaultConfig returns the speech gate defaults
func DefaultConfig() Config {
	return Config{
		PositiveThreshold: DefaultPositiveThreshold,
		MinSpeechFrames:   DefaultMinSpeechFrames,
		FrameSize:         DefaultFrameSize,
		Smoothing:         0.5,
		EnergyScale:       0.1,
	}
}

// Processor scores speech probability over float frames and gates
// segments that are too short on speech
type Processor struct {
	cfg Config

	// Statistics
	totalWindows  uint64
	voiceWindows  uint64
	totalSegments uint64
	misfires      uint64
	liveFrames    uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// VADResult represents the result of voice activity detection
type VADResult struct {
	Probability float32   `json:"probability"`  // Voice probability (0.0 - 1.0)
	HasVoice    bool      `json:"has_voice"`    // Whether voice was detected
	Confidence  float32   `json:"confidence"`   // Confidence in the result
	WindowIndex int       `json:"window_index"` // Frame index within the tracked segment
	Timestamp   time.Time `json:"timestamp"`    // When processing occurred
}

// SegmentAnalysis summarizes the speech content of a whole segment
type SegmentAnalysis struct {
	Frames          int     `json:"frames"`
	SpeechFrames    int     `json:"speech_frames"`
	PeakProbability float32 `json:"peak_probability"`
	Misfire         bool    `json:"misfire"`
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	TotalSegments   uint64    `json:"total_segments"`
	Misfires        uint64    `json:"misfires"`
	LiveFrames      uint64    `json:"live_frames"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
	MinSpeechFrames int       `json:"min_speech_frames"`
}

// NewProcessor creates a new speech gate
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.PositiveThreshold < 0 || cfg.PositiveThreshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.PositiveThreshold)
	}

	if cfg.MinSpeechFrames < 0 {
		return nil, fmt.Errorf("min speech frames must not be negative, got %d", cfg.MinSpeechFrames)
	}

	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize)
	}

	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be in (0, 1], got %f", cfg.Smoothing)
	}

	if cfg.EnergyScale <= 0 {
		return nil, fmt.Errorf("energy scale must be positive, got %f", cfg.EnergyScale)
	}

	return &Processor{cfg: cfg}, nil
}

// Tracker scores live audio of one segment frame by frame as it arrives.
// Each segment gets its own Tracker so smoothing never crosses segments.
// A Tracker is not safe for concurrent use.
type Tracker struct {
	processor *Processor
	step      int
	pending   []float32
	last      float32
	frames    int
}

// NewTracker creates a live tracker for audio with the given channel count
func (p *Processor) NewTracker(channels int) *Tracker {
	if channels < 1 {
		channels = 1
	}
	step := p.cfg.FrameSize * channels

	return &Tracker{
		processor: p,
		step:      step,
		pending:   make([]float32, 0, step),
	}
}

// Feed buffers samples and scores every frame they complete. Samples left
// over are kept for the next call.
func (t *Tracker) Feed(samples []float32) []VADResult {
	var results []VADResult

	for len(samples) > 0 {
		n := min(t.step-len(t.pending), len(samples))
		t.pending = append(t.pending, samples[:n]...)
		samples = samples[n:]

		if len(t.pending) < t.step {
			break
		}

		results = append(results, t.score(t.pending))
		t.pending = t.pending[:0]
	}

	if len(results) > 0 {
		t.processor.recordLive(results)
	}

	return results
}

func (t *Tracker) score(frame []float32) VADResult {
	cfg := t.processor.cfg

	probability := frameProbability(frame, cfg.EnergyScale)
	if t.frames > 0 {
		probability = smooth(probability, t.last, cfg.Smoothing)
	}
	t.last = probability
	t.frames++

	// Confidence grows with the distance from the threshold
	confidence := float32(math.Abs(float64(probability - cfg.PositiveThreshold)))
	if confidence > 0.5 {
		confidence = 0.5
	}

	return VADResult{
		Probability: probability,
		HasVoice:    probability >= cfg.PositiveThreshold,
		Confidence:  confidence * 2,
		WindowIndex: t.frames - 1,
		Timestamp:   time.Now(),
	}
}

func (p *Processor) recordLive(results []VADResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.liveFrames += uint64(len(results))
	p.lastProcessed = results[len(results)-1].Timestamp
}

// Analyze scores every frame of a segment and flags it as a misfire when it
// holds fewer than MinSpeechFrames speech frames. Frame smoothing starts
// fresh for each segment.
func (p *Processor) Analyze(seg *audio.Segment) *SegmentAnalysis {
	channels := seg.Channels
	if channels < 1 {
		channels = 1
	}
	step := p.cfg.FrameSize * channels

	analysis := &SegmentAnalysis{}
	var last float32

	for start := 0; start < len(seg.Samples); start += step {
		end := min(start+step, len(seg.Samples))

		probability := frameProbability(seg.Samples[start:end], p.cfg.EnergyScale)
		if analysis.Frames > 0 {
			probability = smooth(probability, last, p.cfg.Smoothing)
		}
		last = probability

		analysis.Frames++
		if probability >= p.cfg.PositiveThreshold {
			analysis.SpeechFrames++
		}
		if probability > analysis.PeakProbability {
			analysis.PeakProbability = probability
		}
	}

	analysis.Misfire = analysis.SpeechFrames < p.cfg.MinSpeechFrames

	p.mu.Lock()
	p.totalWindows += uint64(analysis.Frames)
	p.voiceWindows += uint64(analysis.SpeechFrames)
	p.totalSegments++
	if analysis.Misfire {
		p.misfires++
	}
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return analysis
}

// frameProbability maps the RMS energy of a frame onto [0, 1]
func frameProbability(samples []float32, scale float64) float32 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		v := float64(sample)
		if math.IsNaN(v) {
			continue
		}
		energy += v * v
	}
	energy = math.Sqrt(energy / float64(len(samples)))

	probability := energy / scale
	if probability > 1.0 {
		probability = 1.0
	}

	return float32(probability)
}

func smooth(current, previous, weight float32) float32 {
	return weight*current + (1-weight)*previous
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		TotalSegments:   p.totalSegments,
		Misfires:        p.misfires,
		LiveFrames:      p.liveFrames,
		LastProcessed:   p.lastProcessed,
		Threshold:       p.cfg.PositiveThreshold,
		MinSpeechFrames: p.cfg.MinSpeechFrames,
	}
}
