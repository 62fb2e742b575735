package domain

import (
	"time"
)

// Session holds the in-memory conversation state for one user: the ordered
// transcript and the last product size the user explicitly asked about.
type Session struct {
	UserID     string
	Transcript []Message
	LastSize   string
	LastActive time.Time
}

// Append adds a message to the transcript and refreshes the activity stamp.
func (s *Session) Append(msg Message) {
	s.Transcript = append(s.Transcript, msg)
	s.LastActive = time.Now()
}

// RecentMessages returns the last n transcript entries.
func (s *Session) RecentMessages(n int) []Message {
	if n >= len(s.Transcript) {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// IdleFor reports whether the session has been inactive longer than ttl.
func (s *Session) IdleFor(ttl time.Duration) bool {
	return time.Since(s.LastActive) > ttl
}
