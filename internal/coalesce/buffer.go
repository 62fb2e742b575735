// Package coalesce merges rapid consecutive messages from one user into a
// single prompt, answered once per quiet period.
package coalesce

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/elvecinito/vecinito-server/internal/agent"
)

// FlushFunc processes the merged prompt for a user once the quiet period
// elapses. agentID is the one named by the most recent message in the batch.
type FlushFunc func(ctx context.Context, userID, combined, agentID string) (agent.Reply, error)

// Outcome is delivered exactly once on the channel returned by Submit.
type Outcome struct {
	Reply agent.Reply
	Err   error

	// Superseded is set when a newer message from the same user displaced
	// this waiter; the reply will be delivered to the newer caller instead.
	Superseded bool
}

// Buffer holds per-user pending prompts. Each new message restarts the
// user's quiet-period timer, so the timer always measures time since the
// most recent message. Sustained input therefore defers the flush
// indefinitely; that matches the intended "wait until the user stops
// typing" behavior.
type Buffer struct {
	mu    sync.Mutex
	users map[string]*userBuffer
	quiet time.Duration
	flush FlushFunc
}

type userBuffer struct {
	prompts []string
	agentID string
	timer   *time.Timer
	waiter  chan Outcome
}

// New creates a buffer with the given quiet period.
func New(quiet time.Duration, flush FlushFunc) *Buffer {
	return &Buffer{
		users: make(map[string]*userBuffer),
		quiet: quiet,
		flush: flush,
	}
}

// Submit queues a prompt for the user and returns a one-shot channel that
// will receive the outcome. If an earlier submit from the same user is still
// pending, its channel is completed immediately with a superseded marker so
// no caller is left hanging.
func (b *Buffer) Submit(userID, prompt, agentID string) <-chan Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	ub := b.users[userID]
	if ub == nil {
		ub = &userBuffer{}
		b.users[userID] = ub
	}

	ub.prompts = append(ub.prompts, prompt)
	ub.agentID = agentID

	if ub.waiter != nil {
		ub.waiter <- Outcome{Superseded: true}
	}
	ch := make(chan Outcome, 1)
	ub.waiter = ch

	if ub.timer != nil {
		ub.timer.Stop()
	}
	ub.timer = time.AfterFunc(b.quiet, func() { b.flushUser(userID) })

	return ch
}

// flushUser merges the user's buffered prompts and delivers the result to the
// current waiter. The buffer entry is removed before the upstream call runs,
// so messages arriving during the flush start a fresh buffer. The superseded
// waiter swap means the result of an abandoned upstream call is simply
// discarded; the call itself is not cancelled.
func (b *Buffer) flushUser(userID string) {
	b.mu.Lock()
	ub := b.users[userID]
	if ub == nil || len(ub.prompts) == 0 {
		b.mu.Unlock()
		return
	}
	combined := strings.Join(ub.prompts, "\n")
	agentID := ub.agentID
	waiter := ub.waiter
	delete(b.users, userID)
	b.mu.Unlock()

	slog.Info("Flushing coalesced prompts", "user_id", userID, "merged_length", len(combined))

	reply, err := b.flush(context.Background(), userID, combined, agentID)
	waiter <- Outcome{Reply: reply, Err: err}
}

// Pending reports whether the user currently has buffered prompts.
func (b *Buffer) Pending(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.users[userID] != nil
}
