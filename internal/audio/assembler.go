package audio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrSegmentTooLong is returned when a frame would grow a segment past its size cap
var ErrSegmentTooLong = errors.New("segment exceeds maximum length")

// Assembler accumulates the streamed frames of one speech segment with
// sequence reordering and frame loss detection
type Assembler struct {
	segmentID  uint32
	sampleRate int
	channels   int

	// Audio data storage
	samples    []float32
	maxSamples int

	// Sequence tracking
	started     bool
	lastSeq     uint32               // Last appended sequence number
	expectedSeq uint32               // Next expected sequence number
	pending     map[uint32][]float32 // Out-of-order frames

	// Frame loss tracking
	lost   map[uint32]bool
	maxGap uint32 // Maximum sequence gap to wait for

	lastUpdate  time.Time
	totalFrames uint32
	lostCount   uint32

	mu sync.RWMutex
}

// AssemblerStats represents assembler statistics for monitoring
type AssemblerStats struct {
	SegmentID    uint32  `json:"segment_id"`
	TotalFrames  uint32  `json:"total_frames"`
	LostFrames   uint32  `json:"lost_frames"`
	LossRate     float64 `json:"loss_rate"`
	Samples      int     `json:"samples"`
	PendingSeqs  int     `json:"pending_sequences"`
	LastSequence uint32  `json:"last_sequence"`
}

// NewAssembler creates an assembler for a segment; maxSamples <= 0 disables the size cap
func NewAssembler(segmentID uint32, sampleRate, channels, maxSamples int) *Assembler {
	return &Assembler{
		segmentID:  segmentID,
		sampleRate: sampleRate,
		channels:   channels,
		samples:    make([]float32, 0, sampleRate*2),
		maxSamples: maxSamples,
		pending:    make(map[uint32][]float32),
		lost:       make(map[uint32]bool),
		maxGap:     20,
		lastUpdate: time.Now(),
	}
}

// AddFrame adds the samples of one frame with sequence handling
func (a *Assembler) AddFrame(sequence uint32, samples []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxSamples > 0 && a.bufferedSamples()+len(samples) > a.maxSamples {
		return fmt.Errorf("segment %d: %w of %d samples", a.segmentID, ErrSegmentTooLong, a.maxSamples)
	}

	a.lastUpdate = time.Now()

	// Initialize expected sequence on first frame
	if !a.started {
		a.started = true
		a.expectedSeq = sequence
		a.lastSeq = sequence - 1
	}

	switch {
	case sequence == a.expectedSeq:
		a.totalFrames++
		a.samples = append(a.samples, samples...)
		a.lastSeq = sequence
		a.expectedSeq = sequence + 1
		a.drainPending()

	case sequence > a.expectedSeq:
		if _, dup := a.pending[sequence]; dup {
			return fmt.Errorf("ignoring duplicate frame: seq=%d", sequence)
		}
		a.totalFrames++
		frame := make([]float32, len(samples))
		copy(frame, samples)
		a.pending[sequence] = frame

		// Give up on missing frames once the gap is too large
		if sequence-a.expectedSeq > a.maxGap {
			a.markMissingAsLost(a.expectedSeq, sequence-1)
			a.expectedSeq = a.lowestPending()
			a.drainPending()
		}

	default:
		// Old frame, duplicate, or one already declared lost
		return fmt.Errorf("ignoring old/duplicate frame: seq=%d, lastSeq=%d", sequence, a.lastSeq)
	}

	return nil
}

// Finish flushes buffered frames in sequence order and returns the assembled segment.
// Frames that never arrived are counted as lost.
func (a *Assembler) Finish() *Segment {
	a.mu.Lock()
	defer a.mu.Unlock()

	seqs := make([]uint32, 0, len(a.pending))
	for seq := range a.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	for _, seq := range seqs {
		if seq > a.expectedSeq {
			a.markMissingAsLost(a.expectedSeq, seq-1)
		}
		a.samples = append(a.samples, a.pending[seq]...)
		delete(a.pending, seq)
		a.lastSeq = seq
		a.expectedSeq = seq + 1
	}

	samples := make([]float32, len(a.samples))
	copy(samples, a.samples)

	return &Segment{
		Samples:    samples,
		SampleRate: a.sampleRate,
		Channels:   a.channels,
	}
}

// markMissingAsLost marks a range of sequence numbers as lost
func (a *Assembler) markMissingAsLost(start, end uint32) {
	for seq := start; seq <= end; seq++ {
		if _, buffered := a.pending[seq]; !buffered && !a.lost[seq] {
			a.lost[seq] = true
			a.lostCount++
		}
		if seq == end {
			break
		}
	}
}

// drainPending appends any consecutive buffered frames
func (a *Assembler) drainPending() {
	for {
		frame, exists := a.pending[a.expectedSeq]
		if !exists {
			break
		}

		a.samples = append(a.samples, frame...)
		delete(a.pending, a.expectedSeq)

		a.lastSeq = a.expectedSeq
		a.expectedSeq++
	}
}

func (a *Assembler) lowestPending() uint32 {
	first := true
	var lowest uint32
	for seq := range a.pending {
		if first || seq < lowest {
			lowest = seq
			first = false
		}
	}
	return lowest
}

func (a *Assembler) bufferedSamples() int {
	n := len(a.samples)
	for _, frame := range a.pending {
		n += len(frame)
	}
	return n
}

// GetStats returns current assembler statistics
func (a *Assembler) GetStats() AssemblerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	lossRate := float64(0)
	if total := a.totalFrames + a.lostCount; total > 0 {
		lossRate = float64(a.lostCount) / float64(total) * 100
	}

	return AssemblerStats{
		SegmentID:    a.segmentID,
		TotalFrames:  a.totalFrames,
		LostFrames:   a.lostCount,
		LossRate:     lossRate,
		Samples:      len(a.samples),
		PendingSeqs:  len(a.pending),
		LastSequence: a.lastSeq,
	}
}

// SegmentID returns the identifier of the segment being assembled
func (a *Assembler) SegmentID() uint32 {
	return a.segmentID
}

// LastUpdate returns the time of the last frame
func (a *Assembler) LastUpdate() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastUpdate
}

// Size returns the number of samples appended in order so far
func (a *Assembler) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.samples)
}
