package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string // "user" or "assistant"
	Content   string
	Model     string
	CreatedAt time.Time
}

// Conversation threads the messages exchanged with a given model,
// identified by a UUID rather than a sequential int so conversation
// ids never collide across gateway restarts.
type Conversation struct {
	ID        string
	UserID    int64
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time

	// Extra carries caller-supplied side data the gateway does not
	// interpret itself (named Extra, not Metadata, to avoid colliding
	// with the HTTP layer's own per-request metadata).
	Extra map[string]string
}

// HistoryWindow is how many trailing messages are threaded into a new
// chat request's prompt.
const HistoryWindow = 10

// ConversationStore is a repository of conversations.
type ConversationStore interface {
	Create(userID int64) *Conversation
	Get(id string) (*Conversation, bool)
	AppendMessage(id string, msg Message) bool
	RecentHistory(id string) []Message
	Count() int
}

// MemoryConversationStore is the default, in-process ConversationStore.
type MemoryConversationStore struct {
	mu    sync.RWMutex
	byID  map[string]*Conversation
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{byID: make(map[string]*Conversation)}
}

func (s *MemoryConversationStore) Create(userID int64) *Conversation {
	now := time.Now()
	c := &Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Extra:     make(map[string]string),
	}

	s.mu.Lock()
	s.byID[c.ID] = c
	s.mu.Unlock()
	return c
}

func (s *MemoryConversationStore) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

func (s *MemoryConversationStore) AppendMessage(id string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return false
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.CreatedAt
	return true
}

// RecentHistory returns the last HistoryWindow messages, oldest first,
// for threading into a new generation's prompt context.
func (s *MemoryConversationStore) RecentHistory(id string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil
	}
	if len(c.Messages) <= HistoryWindow {
		out := make([]Message, len(c.Messages))
		copy(out, c.Messages)
		return out
	}
	start := len(c.Messages) - HistoryWindow
	out := make([]Message, HistoryWindow)
	copy(out, c.Messages[start:])
	return out
}

func (s *MemoryConversationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// ActiveSince returns how many conversations have been updated at or
// after cutoff. The active_conversations gauge is not set from it.
func (s *MemoryConversationStore) ActiveSince(cutoff time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.byID {
		if !c.UpdatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// ids returns conversation ids sorted for deterministic iteration in
// admin listings.
func (s *MemoryConversationStore) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
