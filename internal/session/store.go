// Package session provides the per-user conversation store.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/elvecinito/vecinito-server/internal/domain"
)

// Store defines the contract for per-user conversation state. Sessions are
// created on first touch and live until Evict is called (or a sweeper calls
// it for them).
type Store interface {
	// Transcript returns a copy of the user's transcript in chronological order.
	Transcript(userID string) []domain.Message

	// Append adds a message to the user's transcript.
	Append(userID string, msg domain.Message)

	// LastSize returns the user's remembered product size, if any.
	LastSize(userID string) (string, bool)

	// SetLastSize persists the user's most recent explicit size.
	SetLastSize(userID string, size string)

	// Evict removes all state for a user.
	Evict(userID string)

	// Len reports the number of live sessions.
	Len() int
}

// MemoryStore is the in-memory Store implementation. All state is lost on
// process restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

func (s *MemoryStore) getOrCreate(userID string) *domain.Session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &domain.Session{UserID: userID, LastActive: time.Now()}
		s.sessions[userID] = sess
	}
	return sess
}

// Transcript returns a copy of the user's transcript.
func (s *MemoryStore) Transcript(userID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, len(sess.Transcript))
	copy(out, sess.Transcript)
	return out
}

// Append adds a message to the user's transcript, creating the session if needed.
func (s *MemoryStore) Append(userID string, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(userID).Append(msg)
}

// LastSize returns the user's remembered size.
func (s *MemoryStore) LastSize(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok || sess.LastSize == "" {
		return "", false
	}
	return sess.LastSize, true
}

// SetLastSize persists the user's most recent explicit size.
func (s *MemoryStore) SetLastSize(userID string, size string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(userID)
	sess.LastSize = size
	sess.LastActive = time.Now()
}

// Evict removes all state for a user.
func (s *MemoryStore) Evict(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// idleSessions returns the IDs of sessions inactive longer than ttl.
func (s *MemoryStore) idleSessions(ttl time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for id, sess := range s.sessions {
		if sess.IdleFor(ttl) {
			idle = append(idle, id)
		}
	}
	return idle
}

const sweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically evicts sessions
// idle longer than ttl. A ttl of 0 disables eviction entirely and the
// goroutine is never started.
func StartSweeper(ctx context.Context, store *MemoryStore, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				idle := store.idleSessions(ttl)
				for _, id := range idle {
					store.Evict(id)
				}
				if len(idle) > 0 {
					slog.Info("Session sweeper evicted idle sessions", "count", len(idle))
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
