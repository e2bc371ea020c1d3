package store

import (
	"testing"
	"time"
)

func TestMemoryUserStorePutAndIsActiveUser(t *testing.T) {
	s := NewMemoryUserStore()
	s.Put(User{ID: 42, Username: "alice", Active: true})

	active, exists := s.IsActiveUser("42")
	if !exists || !active {
		t.Errorf("expected active user 42, got exists=%v active=%v", exists, active)
	}

	_, exists = s.IsActiveUser("999")
	if exists {
		t.Error("expected unknown subject to not exist")
	}
}

func TestMemoryUserStoreInactiveUser(t *testing.T) {
	s := NewMemoryUserStore()
	s.Put(User{ID: 7, Username: "bob", Active: false})

	active, exists := s.IsActiveUser("7")
	if !exists || active {
		t.Errorf("expected inactive user, got exists=%v active=%v", exists, active)
	}
}

func TestConversationCreateAndAppend(t *testing.T) {
	s := NewMemoryConversationStore()
	c := s.Create(1)

	if c.ID == "" {
		t.Fatal("expected a non-empty conversation id")
	}

	if !s.AppendMessage(c.ID, Message{Role: "user", Content: "hello"}) {
		t.Fatal("AppendMessage returned false for a known id")
	}
	if s.AppendMessage("bogus-id", Message{Role: "user", Content: "x"}) {
		t.Error("AppendMessage should return false for an unknown id")
	}

	got, ok := s.Get(c.ID)
	if !ok || len(got.Messages) != 1 {
		t.Fatalf("expected 1 message, got %+v", got)
	}
}

func TestRecentHistoryCapsAtWindow(t *testing.T) {
	s := NewMemoryConversationStore()
	c := s.Create(1)

	for i := 0; i < HistoryWindow+5; i++ {
		s.AppendMessage(c.ID, Message{Role: "user", Content: "msg"})
	}

	history := s.RecentHistory(c.ID)
	if len(history) != HistoryWindow {
		t.Errorf("expected exactly %d messages, got %d", HistoryWindow, len(history))
	}
}

func TestRecentHistoryUnderWindowReturnsAll(t *testing.T) {
	s := NewMemoryConversationStore()
	c := s.Create(1)

	s.AppendMessage(c.ID, Message{Role: "user", Content: "one"})
	s.AppendMessage(c.ID, Message{Role: "assistant", Content: "two"})

	history := s.RecentHistory(c.ID)
	if len(history) != 2 {
		t.Errorf("expected 2 messages, got %d", len(history))
	}
}

func TestConversationCountAndActiveSince(t *testing.T) {
	s := NewMemoryConversationStore()
	s.Create(1)
	s.Create(2)

	if s.Count() != 2 {
		t.Errorf("expected count=2, got %d", s.Count())
	}
	if n := s.ActiveSince(time.Time{}); n != 2 {
		t.Errorf("expected ActiveSince(zero)=2, got %d", n)
	}
	if n := s.ActiveSince(time.Now().Add(time.Hour)); n != 0 {
		t.Errorf("expected ActiveSince(future)=0, got %d", n)
	}
}
