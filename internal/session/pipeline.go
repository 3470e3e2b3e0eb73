package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
	"github.com/skypro1111/voice-assistant-service/internal/llm"
	"github.com/skypro1111/voice-assistant-service/internal/protocol"
	"github.com/skypro1111/voice-assistant-service/internal/transcription"
	"github.com/skypro1111/voice-assistant-service/internal/vad"
)

// Pipeline stages
const (
	StageTranscribe = "transcribe"
	StageChat       = "chat"
	StageSynthesize = "synthesize"
)

// TurnOptions tune a single turn
type TurnOptions struct {
	SegmentID  uint32
	Voice      string // Overrides the session voice
	Language   string // Overrides the session language
	SkipReply  bool   // Stop after transcription
	SkipSpeech bool   // Do not synthesize the reply

	// OnEvent, when set, receives progress events as stages complete
	OnEvent func(protocol.Event)
}

// Turn records the outcome of processing one speech segment
type Turn struct {
	SessionID string `json:"session_id"`
	SegmentID uint32 `json:"segment_id"`

	// Captured segment
	WAV       []byte               `json:"-"`
	AudioURL  string               `json:"audio_url"`
	Duration  float64              `json:"duration_seconds"`
	Analysis  *vad.SegmentAnalysis `json:"analysis"`
	Truncated bool                 `json:"truncated,omitempty"`

	// Transcription
	Transcript        string        `json:"transcript,omitempty"`
	TranscriptionTime time.Duration `json:"transcription_time,omitempty"`

	// Reply
	Reply         string  `json:"reply,omitempty"`
	ReplyWAV      []byte  `json:"-"`
	ReplyAudioURL string  `json:"reply_audio_url,omitempty"`
	ReplyDuration float64 `json:"reply_duration_seconds,omitempty"`
	Voice         string  `json:"voice,omitempty"`

	FailedStage string        `json:"failed_stage,omitempty"`
	Error       string        `json:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Misfire reports whether the segment was rejected by the speech gate
func (t *Turn) Misfire() bool {
	return t.Analysis != nil && t.Analysis.Misfire
}

// ProcessSegment runs one turn for a session: encode, analyze, transcribe,
// reply and synthesize. Stage failures are recorded on the turn and stop the
// pipeline; the returned error covers only unknown sessions and invalid segments.
func (m *Manager) ProcessSegment(ctx context.Context, sessionID string, seg *audio.Segment, opts TurnOptions) (*Turn, error) {
	session, exists := m.GetSession(sessionID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if err := seg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid segment: %w", err)
	}

	session.turnMu.Lock()
	defer session.turnMu.Unlock()
	session.touch()

	startTime := time.Now()
	emit := opts.OnEvent
	if emit == nil {
		emit = func(protocol.Event) {}
	}

	voice, language := session.preferences()
	if opts.Voice != "" {
		voice = opts.Voice
	}
	if opts.Language != "" {
		language = opts.Language
	}
	if language == "" {
		language = m.config.Language
	}

	wav := seg.Encode()
	turn := &Turn{
		SessionID: sessionID,
		SegmentID: opts.SegmentID,
		WAV:       wav,
		AudioURL:  audio.DataURL(wav),
		Duration:  seg.Duration().Seconds(),
		Analysis:  m.deps.Gate.Analyze(seg),
	}
	emit(protocol.NewSegmentEvent(sessionID, opts.SegmentID, turn.AudioURL, turn.Duration, turn.Analysis))

	defer func() {
		turn.Elapsed = time.Since(startTime)
		failed := turn.FailedStage != ""
		session.recordTurn(turn.Misfire(), failed)
		m.recordTurn(turn.Misfire(), failed)
		m.deps.Observer.SegmentProcessed(turn.Misfire(), seg.Duration())
	}()

	if turn.Misfire() {
		m.logger.Debug("Segment rejected as misfire",
			slog.String("session_id", sessionID),
			slog.Uint64("segment_id", uint64(opts.SegmentID)),
			slog.Int("speech_frames", turn.Analysis.SpeechFrames),
		)
		return turn, nil
	}

	if m.deps.Transcriber == nil {
		return turn, nil
	}

	// Transcription input is capped
	asrSegment, truncated := audio.Truncate(seg, m.config.MaxSegmentDuration)
	turn.Truncated = truncated
	asrWAV := wav
	if truncated {
		asrWAV = asrSegment.Encode()
	}

	stageStart := time.Now()
	transcript, err := m.transcribe(ctx, asrWAV, language, opts.SegmentID)
	m.deps.Observer.StageCompleted(StageTranscribe, time.Since(stageStart), err)
	if err != nil {
		m.fail(turn, StageTranscribe, err, emit)
		return turn, nil
	}
	turn.Transcript = transcript.Text
	turn.TranscriptionTime = transcript.TranscriptionTime

	if turn.Transcript == "" {
		return turn, nil
	}
	emit(protocol.NewTranscriptEvent(sessionID, opts.SegmentID, turn.Transcript))

	if opts.SkipReply || m.deps.Chat == nil {
		return turn, nil
	}

	stageStart = time.Now()
	reply, err := m.reply(ctx, session, turn.Transcript)
	m.deps.Observer.StageCompleted(StageChat, time.Since(stageStart), err)
	if err != nil {
		m.fail(turn, StageChat, err, emit)
		return turn, nil
	}
	turn.Reply = reply
	session.appendExchange(turn.Transcript, reply)
	emit(protocol.NewReplyEvent(sessionID, opts.SegmentID, reply))

	if opts.SkipSpeech || m.deps.Synthesizer == nil || reply == "" {
		return turn, nil
	}

	stageStart = time.Now()
	stageCtx, cancel := m.stageContext(ctx)
	speech, err := m.deps.Synthesizer.Synthesize(stageCtx, reply, voice)
	cancel()
	m.deps.Observer.StageCompleted(StageSynthesize, time.Since(stageStart), err)
	if err != nil {
		m.fail(turn, StageSynthesize, err, emit)
		return turn, nil
	}

	turn.ReplyWAV = speech.WAV
	turn.ReplyAudioURL = audio.DataURL(speech.WAV)
	turn.ReplyDuration = speech.Duration
	turn.Voice = speech.Voice
	emit(protocol.NewAudioEvent(sessionID, opts.SegmentID, turn.ReplyAudioURL, turn.ReplyDuration))

	m.logger.Info("Conversation turn completed",
		slog.String("session_id", sessionID),
		slog.Uint64("segment_id", uint64(opts.SegmentID)),
		slog.Int("transcript_length", len(turn.Transcript)),
		slog.Int("reply_length", len(turn.Reply)),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	return turn, nil
}

func (m *Manager) transcribe(ctx context.Context, wav []byte, language string, segmentID uint32) (*transcription.Response, error) {
	ctx, cancel := m.stageContext(ctx)
	defer cancel()

	return m.deps.Transcriber.Transcribe(ctx, &transcription.Request{
		Audio:    wav,
		Filename: fmt.Sprintf("segment-%d.wav", segmentID),
		Language: language,
	})
}

// reply asks the chat model to answer with the system prompt and history as context
func (m *Manager) reply(ctx context.Context, session *Session, transcript string) (string, error) {
	history := session.History()

	messages := make([]llm.Message, 0, len(history)+2)
	if m.config.SystemPrompt != "" {
		messages = append(messages, llm.NewMessage(llm.RoleSystem, m.config.SystemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, llm.NewMessage(llm.RoleUser, transcript))

	ctx, cancel := m.stageContext(ctx)
	defer cancel()

	completion, err := m.deps.Chat.Chat(ctx, messages, m.config.Chat)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(llm.ExtractResponseText(completion)), nil
}

func (m *Manager) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.StageTimeout > 0 {
		return context.WithTimeout(ctx, m.config.StageTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) fail(turn *Turn, stage string, err error, emit func(protocol.Event)) {
	turn.FailedStage = stage
	turn.Error = err.Error()

	m.logger.Error("Conversation turn failed",
		slog.String("session_id", turn.SessionID),
		slog.Uint64("segment_id", uint64(turn.SegmentID)),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)

	emit(protocol.NewErrorEvent(turn.SessionID, turn.SegmentID, stage, err))
}

func (m *Manager) recordTurn(misfire, failed bool) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	m.totalTurns++
	if misfire {
		m.misfires++
	}
	if failed {
		m.failedTurns++
	}
}
