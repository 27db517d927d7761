// ABOUTME: In-memory message log for inter-agent mail.
// ABOUTME: Supports append, atomic unread-read-and-mark, and bulk cleanup.

package msgstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one piece of inter-agent mail. From and To are identifiers as
// supplied by the sender: either an opaque agent ID or a display name.
// Messages are immutable after append except for the read flag.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Store holds the global message log. One mutex serializes every operation
// so a read-and-mark cannot interleave with a concurrent append.
type Store struct {
	mu       sync.Mutex
	messages []*Message
	now      func() time.Time // test seam
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append records a new unread message and returns its minted ID.
func (s *Store) Append(from, to, content string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &Message{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)
	return cloned(msg)
}

// Unread returns the recipient's unread messages in insertion order. When
// markRead is set they are flipped to read in the same locked operation, so
// a second concurrent caller never sees them as unread too.
func (s *Store) Unread(recipient string, markRead bool) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Message
	for _, msg := range s.messages {
		if msg.To != recipient || msg.Read {
			continue
		}
		out = append(out, cloned(msg))
		if markRead {
			msg.Read = true
		}
	}
	return out
}

// MarkRead flips every currently-unread message addressed to the recipient.
func (s *Store) MarkRead(recipient string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.To == recipient && !msg.Read {
			msg.Read = true
		}
	}
}

// HasUnread reports whether the recipient has any unread mail without
// materializing message bodies.
func (s *Store) HasUnread(recipient string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.To == recipient && !msg.Read {
			return true
		}
	}
	return false
}

// LatestUnreadID returns the most-recently-appended unread message ID for
// the recipient, or "" when there is none.
func (s *Store) LatestUnreadID(recipient string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if msg := s.messages[i]; msg.To == recipient && !msg.Read {
			return msg.ID
		}
	}
	return ""
}

// Cleanup drops messages whose recipients are not in the known set and
// returns how many were removed. A coarse memory bound, not a correctness
// requirement.
func (s *Store) Cleanup(known map[string]bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	removed := 0
	for _, msg := range s.messages {
		if known[msg.To] {
			kept = append(kept, msg)
		} else {
			removed++
		}
	}
	s.messages = kept
	return removed
}

// Len returns the total number of stored messages, read or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func cloned(m *Message) *Message {
	cp := *m
	return &cp
}
