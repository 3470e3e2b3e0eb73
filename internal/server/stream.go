package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
	"github.com/skypro1111/voice-assistant-service/internal/protocol"
	"github.com/skypro1111/voice-assistant-service/internal/session"
	"github.com/skypro1111/voice-assistant-service/internal/vad"
)

const (
	// Maximum number of segments a client may have open at once
	maxOpenSegments = 8

	// Completed segments waiting for their turn
	segmentQueueSize = 8

	writeTimeout = 10 * time.Second
)

// streamConn is one WebSocket client streaming binary segment frames
type streamConn struct {
	server    *HTTPServer
	conn      *websocket.Conn
	logger    *slog.Logger
	sessionID string

	// Segments being assembled, only touched by the read loop
	open       map[uint32]*openSegment
	maxSamples int
	timeout    time.Duration

	queue   chan *segmentJob
	writeMu sync.Mutex

	// Frame counters, only touched by the read loop
	framesReceived  uint64
	framesProcessed uint64
	parseErrors     uint64
}

type openSegment struct {
	assembler *audio.Assembler
	voice     string
	language  string

	// Live speech scoring, nil without a speech gate
	tracker   *vad.Tracker
	indicator string
}

type segmentJob struct {
	segmentID uint32
	segment   *audio.Segment
	voice     string
	language  string
}

// handleStream implements the /v1/stream WebSocket endpoint
func (h *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()
	sess, err := h.deps.Sessions.CreateSession(query.Get("session_id"), session.Options{
		Voice:    query.Get("voice"),
		Language: query.Get("language"),
	})
	if err != nil {
		writeError(w, sessionErrorStatus(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	stream := &streamConn{
		server:     h,
		conn:       conn,
		logger:     h.logger.With(slog.String("session_id", sess.ID)),
		sessionID:  sess.ID,
		open:       make(map[uint32]*openSegment),
		maxSamples: int(h.config.HTTP.MaxBodyBytes / 4),
		timeout:    h.config.Audio.GetStreamTimeoutDuration(),
		queue:      make(chan *segmentJob, segmentQueueSize),
	}

	h.deps.Metrics.SetStreamConnections(int(h.streams.Add(1)))
	defer func() {
		h.deps.Metrics.SetStreamConnections(int(h.streams.Add(-1)))
	}()

	stream.run(h.ctx)
}

// run reads frames until the client disconnects or ctx is cancelled
func (s *streamConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.logger.Info("Stream connected", slog.String("remote_addr", s.conn.RemoteAddr().String()))

	// Unblock the read loop on shutdown
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go s.processSegments(ctx, &wg)

	s.conn.SetReadLimit(s.server.config.HTTP.MaxBodyBytes)
	s.send(protocol.NewSessionEvent(s.sessionID))

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				s.logger.Warn("Stream read error", slog.String("error", err.Error()))
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			s.logger.Debug("Ignoring non-binary stream message", slog.Int("message_type", messageType))
			continue
		}

		s.handleFrame(data)
	}

	cancel()
	close(s.queue)
	wg.Wait()

	s.logger.Info("Stream disconnected",
		slog.Uint64("frames_received", s.framesReceived),
		slog.Uint64("frames_processed", s.framesProcessed),
		slog.Uint64("parse_errors", s.parseErrors),
		slog.Int("abandoned_segments", len(s.open)),
	)
}

// handleFrame parses one binary frame and routes it to its segment
func (s *streamConn) handleFrame(data []byte) {
	s.framesReceived++

	frame, err := protocol.ParseFrame(data)
	if err != nil {
		s.parseErrors++
		s.server.deps.Metrics.RecordFrameError()
		s.logger.Debug("Failed to parse stream frame",
			slog.Int("frame_size", len(data)),
			slog.String("error", err.Error()),
		)
		s.send(protocol.NewErrorEvent(s.sessionID, 0, "", err))
		return
	}

	s.framesProcessed++
	s.server.deps.Metrics.RecordFrame(frameLabel(frame.Header.FrameType))
	s.expireSegments()

	switch frame.Header.FrameType {
	case protocol.FrameTypeStart:
		s.startSegment(frame)
	case protocol.FrameTypeAudio:
		s.addAudio(frame)
	case protocol.FrameTypeEnd:
		s.endSegment(frame)
	}
}

func (s *streamConn) startSegment(frame *protocol.Frame) {
	segmentID := frame.Header.SegmentID

	if _, exists := s.open[segmentID]; exists {
		s.logger.Warn("Restarting open segment", slog.Uint64("segment_id", uint64(segmentID)))
	} else if len(s.open) >= maxOpenSegments {
		s.fail(segmentID, fmt.Errorf("too many open segments (max %d)", maxOpenSegments))
		return
	}

	voice := frame.Start.GetVoiceID()
	if voice != "" && s.server.deps.TTS != nil && !s.server.deps.TTS.HasVoice(voice) {
		s.fail(segmentID, fmt.Errorf("unknown voice: %s", voice))
		return
	}

	open := &openSegment{
		assembler: audio.NewAssembler(segmentID, int(frame.Start.SampleRate), int(frame.Start.Channels), s.maxSamples),
		voice:     voice,
		language:  frame.Start.GetLanguage(),
	}
	if s.server.deps.Gate != nil {
		open.tracker = s.server.deps.Gate.NewTracker(int(frame.Start.Channels))
	}
	s.open[segmentID] = open

	s.logger.Debug("Segment started",
		slog.Uint64("segment_id", uint64(segmentID)),
		slog.String("start", frame.Start.String()),
	)
}

func (s *streamConn) addAudio(frame *protocol.Frame) {
	segmentID := frame.Header.SegmentID

	open, exists := s.open[segmentID]
	if !exists {
		s.server.deps.Metrics.RecordFrameError()
		s.fail(segmentID, fmt.Errorf("audio for unknown segment %d", segmentID))
		return
	}

	if err := open.assembler.AddFrame(frame.Header.Sequence, frame.Samples); err != nil {
		s.server.deps.Metrics.RecordFrameError()

		if errors.Is(err, audio.ErrSegmentTooLong) {
			delete(s.open, segmentID)
			s.fail(segmentID, err)
			return
		}

		s.logger.Debug("Dropped stream frame",
			slog.Uint64("segment_id", uint64(segmentID)),
			slog.Uint64("sequence", uint64(frame.Header.Sequence)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.trackSpeech(segmentID, open, frame.Samples)
}

// trackSpeech scores accepted audio in arrival order and pushes an indicator
// event whenever the indicator changes
func (s *streamConn) trackSpeech(segmentID uint32, open *openSegment, samples []float32) {
	if open.tracker == nil {
		return
	}

	for _, result := range open.tracker.Feed(samples) {
		indicator := vad.IndicatorFor(result.Probability)
		if indicator.Color == open.indicator {
			continue
		}
		open.indicator = indicator.Color
		s.send(protocol.NewIndicatorEvent(s.sessionID, segmentID, result))
	}
}

func (s *streamConn) endSegment(frame *protocol.Frame) {
	segmentID := frame.Header.SegmentID

	open, exists := s.open[segmentID]
	if !exists {
		s.fail(segmentID, fmt.Errorf("end of unknown segment %d", segmentID))
		return
	}
	delete(s.open, segmentID)

	seg := open.assembler.Finish()
	stats := open.assembler.GetStats()

	s.logger.Debug("Segment completed",
		slog.Uint64("segment_id", uint64(segmentID)),
		slog.Uint64("frames", uint64(stats.TotalFrames)),
		slog.Uint64("lost_frames", uint64(stats.LostFrames)),
		slog.Int("samples", len(seg.Samples)),
	)

	if len(seg.Samples) == 0 {
		s.fail(segmentID, fmt.Errorf("segment %d has no audio", segmentID))
		return
	}

	job := &segmentJob{
		segmentID: segmentID,
		segment:   seg,
		voice:     open.voice,
		language:  open.language,
	}

	select {
	case s.queue <- job:
	default:
		s.fail(segmentID, fmt.Errorf("segment queue full, dropping segment %d", segmentID))
	}
}

// expireSegments drops segments that stopped receiving frames
func (s *streamConn) expireSegments() {
	for segmentID, open := range s.open {
		if time.Since(open.assembler.LastUpdate()) > s.timeout {
			delete(s.open, segmentID)
			s.fail(segmentID, fmt.Errorf("segment %d timed out", segmentID))
		}
	}
}

// processSegments runs a conversation turn for each completed segment in order
func (s *streamConn) processSegments(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range s.queue {
		if ctx.Err() != nil {
			continue
		}

		_, err := s.server.deps.Sessions.ProcessSegment(ctx, s.sessionID, job.segment, session.TurnOptions{
			SegmentID: job.segmentID,
			Voice:     job.voice,
			Language:  job.language,
			OnEvent:   s.send,
		})
		if err != nil {
			s.fail(job.segmentID, err)
		}
	}
}

func (s *streamConn) fail(segmentID uint32, err error) {
	s.logger.Debug("Stream segment error",
		slog.Uint64("segment_id", uint64(segmentID)),
		slog.String("error", err.Error()),
	)
	s.send(protocol.NewErrorEvent(s.sessionID, segmentID, "", err))
}

// send writes an event to the client; events from the read loop and the
// segment worker are serialized
func (s *streamConn) send(event protocol.Event) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(event); err != nil {
		s.logger.Debug("Failed to send stream event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}

func frameLabel(frameType uint8) string {
	switch frameType {
	case protocol.FrameTypeStart:
		return "start"
	case protocol.FrameTypeAudio:
		return "audio"
	case protocol.FrameTypeEnd:
		return "end"
	default:
		return "unknown"
	}
}
