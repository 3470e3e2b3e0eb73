package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/voice-assistant-service/internal/llm"
	"github.com/skypro1111/voice-assistant-service/internal/transcription"
	"github.com/skypro1111/voice-assistant-service/internal/tts"
	"github.com/skypro1111/voice-assistant-service/internal/vad"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the session limit is reached
	ErrTooManySessions = errors.New("too many active sessions")
)

// Transcriber converts encoded speech to text
type Transcriber interface {
	Transcribe(ctx context.Context, request *transcription.Request) (*transcription.Response, error)
}

// ChatModel produces assistant replies
type ChatModel interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Completion, error)
}

// Synthesizer converts reply text to speech
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*tts.Speech, error)
}

// Observer receives pipeline measurements
type Observer interface {
	SegmentProcessed(misfire bool, duration time.Duration)
	StageCompleted(stage string, elapsed time.Duration, err error)
	SessionsActive(count int)
}

type noopObserver struct{}

func (noopObserver) SegmentProcessed(bool, time.Duration) {}
func (noopObserver) StageCompleted(string, time.Duration, error) {}
func (noopObserver) SessionsActive(int) {}

// Config contains session manager configuration
type Config struct {
	Timeout            time.Duration // Idle time after which a session expires
	CleanupInterval    time.Duration
	MaxSessions        int // 0 means unlimited
	HistorySize        int // Messages kept besides the system prompt, 0 keeps all
	SystemPrompt       string
	Language           string        // Default transcription language
	MaxSegmentDuration time.Duration // Longer segments are truncated before transcription
	StageTimeout       time.Duration // Per upstream call, 0 disables
	Chat               llm.Options
}

// Dependencies are the collaborators of the turn pipeline. Transcriber, Chat
// and Synthesizer may be nil to disable the corresponding stage.
type Dependencies struct {
	Gate        *vad.Processor
	Transcriber Transcriber
	Chat        ChatModel
	Synthesizer Synthesizer
	Observer    Observer
}

// Stats represents manager statistics
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	TotalSessions  uint64 `json:"total_sessions"`
	TotalTurns     uint64 `json:"total_turns"`
	Misfires       uint64 `json:"misfires"`
	FailedTurns    uint64 `json:"failed_turns"`
}

// Manager manages conversation sessions and runs their turns
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   Config
	deps     Dependencies

	// Statistics
	totalSessions uint64
	totalTurns    uint64
	misfires      uint64
	failedTurns   uint64
	statsMu       sync.Mutex

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
	stop    sync.Once
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config Config, deps Dependencies) (*Manager, error) {
	if deps.Gate == nil {
		return nil, fmt.Errorf("speech gate is required")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Minute
	}

	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	if config.MaxSegmentDuration <= 0 {
		config.MaxSegmentDuration = 30 * time.Second
	}

	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		config:   config,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// CreateSession creates a session; an empty id generates one. An existing
// session with the same id is returned with its preferences updated.
func (m *Manager) CreateSession(id string, opts Options) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if existing, exists := m.sessions[id]; exists {
			existing.update(opts)
			return existing, nil
		}
	} else {
		id = uuid.NewString()
	}

	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		return nil, ErrTooManySessions
	}

	session := newSession(id, opts, m.config.HistorySize)
	m.sessions[id] = session

	m.statsMu.Lock()
	m.totalSessions++
	m.statsMu.Unlock()

	m.deps.Observer.SessionsActive(len(m.sessions))

	m.logger.Info("Created conversation session",
		slog.String("session_id", id),
		slog.String("voice", opts.Voice),
		slog.String("language", opts.Language),
	)

	return session, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// UpdateActivity updates the last activity time for a session
func (m *Manager) UpdateActivity(id string) {
	session, exists := m.GetSession(id)
	if !exists {
		m.logger.Warn("Attempted to update activity for non-existent session",
			slog.String("session_id", id),
		)
		return
	}

	session.touch()
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions, oldest first
func (m *Manager) GetAllSessions() []SessionInfo {
	m.mu.RLock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		infos = append(infos, session.GetSessionInfo())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	return infos
}

// RemoveSession removes a session
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	m.deps.Observer.SessionsActive(count)

	info := session.GetSessionInfo()
	m.logger.Info("Conversation session removed",
		slog.String("session_id", id),
		slog.Duration("duration", info.Duration),
		slog.Uint64("turns", info.Turns),
		slog.Uint64("misfires", info.Misfires),
	)

	return true
}

// GetStats returns current manager statistics
func (m *Manager) GetStats() Stats {
	active := m.GetActiveSessionCount()

	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	return Stats{
		ActiveSessions: active,
		TotalSessions:  m.totalSessions,
		TotalTurns:     m.totalTurns,
		Misfires:       m.misfires,
		FailedTurns:    m.failedTurns,
	}
}

// Stop gracefully stops the session manager
func (m *Manager) Stop() {
	m.stop.Do(func() {
		m.logger.Info("Stopping session manager...")

		m.cancel()
		<-m.cleanup

		stats := m.GetStats()
		m.logger.Info("Session manager stopped",
			slog.Int("remaining_sessions", stats.ActiveSessions),
			slog.Uint64("total_sessions", stats.TotalSessions),
			slog.Uint64("total_turns", stats.TotalTurns),
			slog.Uint64("failed_turns", stats.FailedTurns),
		)
	})
}

// startCleanupRoutine runs in a separate goroutine to clean up expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.config.Timeout),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been inactive for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, session := range m.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > m.config.Timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expired)),
		)

		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}
