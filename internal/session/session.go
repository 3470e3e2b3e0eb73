package session

import (
	"sync"
	"time"

	"github.com/skypro1111/voice-assistant-service/internal/llm"
)

// Session is one conversation with its message history
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	Voice        string
	Language     string

	history     []llm.Message
	historySize int

	// Turn statistics
	turns       uint64
	misfires    uint64
	failedTurns uint64

	// Serializes turns so history stays ordered
	turnMu sync.Mutex

	mu sync.RWMutex
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	Voice        string        `json:"voice,omitempty"`
	Language     string        `json:"language,omitempty"`
	Messages     int           `json:"messages"`
	Turns        uint64        `json:"turns"`
	Misfires     uint64        `json:"misfires"`
	FailedTurns  uint64        `json:"failed_turns"`
}

// Options are the per-session preferences a client may set
type Options struct {
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

func newSession(id string, opts Options, historySize int) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		Voice:        opts.Voice,
		Language:     opts.Language,
		historySize:  historySize,
	}
}

// History returns a copy of the conversation history, oldest first
func (s *Session) History() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]llm.Message, len(s.history))
	copy(history, s.history)
	return history
}

// appendExchange records a user message and the assistant reply, keeping at
// most historySize messages
func (s *Session) appendExchange(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		llm.NewMessage(llm.RoleUser, user),
		llm.NewMessage(llm.RoleAssistant, assistant),
	)

	if s.historySize > 0 && len(s.history) > s.historySize {
		trimmed := make([]llm.Message, s.historySize)
		copy(trimmed, s.history[len(s.history)-s.historySize:])
		s.history = trimmed
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) update(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Voice != "" {
		s.Voice = opts.Voice
	}
	if opts.Language != "" {
		s.Language = opts.Language
	}
	s.LastActivity = time.Now()
}

func (s *Session) preferences() (voice, language string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Voice, s.Language
}

func (s *Session) recordTurn(misfire, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns++
	if misfire {
		s.misfires++
	}
	if failed {
		s.failedTurns++
	}
}

// GetSessionInfo returns a snapshot of the session
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Duration:     time.Since(s.CreatedAt),
		Voice:        s.Voice,
		Language:     s.Language,
		Messages:     len(s.history),
		Turns:        s.turns,
		Misfires:     s.misfires,
		FailedTurns:  s.failedTurns,
	}
}
