package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantline/strata/agent/pkg/workflow"
)

const (
	conversationMaxAge   = 12 * time.Hour
	conversationMaxTurns = 20
)

type conversation struct {
	turns    []workflow.ConversationMessage
	lastSeen time.Time
}

// Manager tracks per-thread conversation history and which threads the bot
// participates in. Everything is in-memory; a restart forgets open threads.
type Manager struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	activeThreads map[string]time.Time
	log           *slog.Logger
}

// NewManager creates a conversation manager.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		conversations: make(map[string]*conversation),
		activeThreads: make(map[string]time.Time),
		log:           log,
	}
}

func threadKey(channel, threadTS string) string {
	return channel + ":" + threadTS
}

// MarkThreadActive records that the bot was addressed in the root message of
// a thread, so later replies in that thread are handled without a mention.
func (m *Manager) MarkThreadActive(channel, threadTS string) {
	m.mu.Lock()
	m.activeThreads[threadKey(channel, threadTS)] = time.Now()
	m.mu.Unlock()
}

// IsThreadActive reports whether the bot participates in the thread.
func (m *Manager) IsThreadActive(channel, threadTS string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.activeThreads[threadKey(channel, threadTS)]
	return ok
}

// AppendTurn records one conversation turn for a thread.
func (m *Manager) AppendTurn(channel, threadTS, role, content string) {
	key := threadKey(channel, threadTS)
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[key]
	if !ok {
		conv = &conversation{}
		m.conversations[key] = conv
	}
	conv.turns = append(conv.turns, workflow.ConversationMessage{Role: role, Content: content})
	if len(conv.turns) > conversationMaxTurns {
		conv.turns = conv.turns[len(conv.turns)-conversationMaxTurns:]
	}
	conv.lastSeen = time.Now()
}

// History returns a copy of the conversation turns for a thread.
func (m *Manager) History(channel, threadTS string) []workflow.ConversationMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[threadKey(channel, threadTS)]
	if !ok {
		return nil
	}
	out := make([]workflow.ConversationMessage, len(conv.turns))
	copy(out, conv.turns)
	return out
}

// StartCleanup starts a background goroutine that expires stale threads.
func (m *Manager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanup()
			}
		}
	}()
}

func (m *Manager) cleanup() {
	cutoff := time.Now().Add(-conversationMaxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, conv := range m.conversations {
		if conv.lastSeen.Before(cutoff) {
			delete(m.conversations, key)
		}
	}
	for key, seen := range m.activeThreads {
		if seen.Before(cutoff) {
			delete(m.activeThreads, key)
		}
	}
}
