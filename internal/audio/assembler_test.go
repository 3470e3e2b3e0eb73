package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(value float32, n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

func TestNewAssembler(t *testing.T) {
	a := NewAssembler(7, 16000, 1, 0)
	require.NotNil(t, a)

	assert.Equal(t, uint32(7), a.SegmentID())
	assert.Equal(t, 0, a.Size())

	stats := a.GetStats()
	assert.Equal(t, uint32(0), stats.TotalFrames)
	assert.Equal(t, uint32(0), stats.LostFrames)
	assert.Zero(t, stats.LossRate)
}

func TestAssemblerInOrder(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 0)
	before := a.LastUpdate()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, a.AddFrame(100, frame(0.1, 160)))
	require.NoError(t, a.AddFrame(101, frame(0.2, 160)))

	assert.Equal(t, 320, a.Size())
	assert.True(t, a.LastUpdate().After(before))

	stats := a.GetStats()
	assert.Equal(t, uint32(2), stats.TotalFrames)
	assert.Equal(t, uint32(101), stats.LastSequence)

	segment := a.Finish()
	require.Len(t, segment.Samples, 320)
	assert.Equal(t, float32(0.1), segment.Samples[0])
	assert.Equal(t, float32(0.2), segment.Samples[319])
	assert.Equal(t, 16000, segment.SampleRate)
	assert.Equal(t, 1, segment.Channels)
}

func TestAssemblerOutOfOrder(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 0)

	require.NoError(t, a.AddFrame(0, frame(0.1, 4)))
	require.NoError(t, a.AddFrame(2, frame(0.3, 4)))

	// Frame 2 waits for frame 1
	assert.Equal(t, 4, a.Size())
	assert.Equal(t, 1, a.GetStats().PendingSeqs)

	require.NoError(t, a.AddFrame(1, frame(0.2, 4)))
	assert.Equal(t, 12, a.Size())
	assert.Equal(t, 0, a.GetStats().PendingSeqs)

	segment := a.Finish()
	assert.Equal(t, []float32{0.1, 0.1, 0.1, 0.1, 0.2, 0.2, 0.2, 0.2, 0.3, 0.3, 0.3, 0.3}, segment.Samples)
}

func TestAssemblerDuplicates(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 0)

	require.NoError(t, a.AddFrame(5, frame(0.1, 2)))

	err := a.AddFrame(5, frame(0.1, 2))
	assert.ErrorContains(t, err, "old/duplicate")

	require.NoError(t, a.AddFrame(8, frame(0.4, 2)))
	err = a.AddFrame(8, frame(0.4, 2))
	assert.ErrorContains(t, err, "duplicate frame")

	assert.Equal(t, uint32(2), a.GetStats().TotalFrames)
}

func TestAssemblerGapExceeded(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 0)

	require.NoError(t, a.AddFrame(0, frame(0.1, 1)))
	require.NoError(t, a.AddFrame(30, frame(0.5, 1)))

	stats := a.GetStats()
	assert.Equal(t, uint32(29), stats.LostFrames)
	assert.Equal(t, uint32(30), stats.LastSequence)
	assert.Equal(t, 0, stats.PendingSeqs)
	assert.Equal(t, 2, a.Size())

	// A straggler from the lost range is rejected
	assert.Error(t, a.AddFrame(10, frame(0.2, 1)))
}

func TestAssemblerFinishFlushesGaps(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 0)

	require.NoError(t, a.AddFrame(0, frame(0.1, 1)))
	require.NoError(t, a.AddFrame(3, frame(0.4, 1)))
	require.NoError(t, a.AddFrame(2, frame(0.3, 1)))

	segment := a.Finish()
	assert.Equal(t, []float32{0.1, 0.3, 0.4}, segment.Samples)

	stats := a.GetStats()
	assert.Equal(t, uint32(1), stats.LostFrames)
	assert.Equal(t, uint32(3), stats.TotalFrames)
	assert.InDelta(t, 25.0, stats.LossRate, 0.001)
}

func TestAssemblerMaxSamples(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 10)

	require.NoError(t, a.AddFrame(0, frame(0, 6)))
	err := a.AddFrame(1, frame(0, 6))
	assert.ErrorContains(t, err, "exceeds maximum length")
	assert.ErrorIs(t, err, ErrSegmentTooLong)
	assert.Equal(t, 6, a.Size())
}

func TestAssemblerFrameCopy(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 0)

	samples := frame(0.5, 2)
	require.NoError(t, a.AddFrame(0, frame(0.1, 2)))
	require.NoError(t, a.AddFrame(2, samples))
	samples[0] = 0.9

	require.NoError(t, a.AddFrame(1, frame(0.2, 2)))
	segment := a.Finish()
	assert.Equal(t, float32(0.5), segment.Samples[4])
}

func TestAssemblerConcurrentAccess(t *testing.T) {
	a := NewAssembler(1, 16000, 1, 0)
	done := make(chan bool)

	go func() {
		for i := uint32(0); i < 100; i++ {
			_ = a.AddFrame(i, frame(0.1, 10))
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = a.GetStats()
			_ = a.Size()
		}
		done <- true
	}()

	<-done
	<-done

	assert.Equal(t, 1000, a.Size())
}
