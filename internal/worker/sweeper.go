// Package worker contains background workers that keep in-process state
// tidy.
package worker

import (
	"context"
	"log"
	"time"
)

// Cleaner drops expired entries and reports how many were removed.
type Cleaner interface {
	Cleanup() int
}

// SessionSweeper periodically evicts expired builder sessions.
type SessionSweeper struct {
	sessions Cleaner
	interval time.Duration
}

// NewSessionSweeper creates a sweeper. A non-positive interval defaults to
// one minute.
func NewSessionSweeper(sessions Cleaner, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweeper{sessions: sessions, interval: interval}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one cleanup pass.
func (s *SessionSweeper) Sweep() int {
	n := s.sessions.Cleanup()
	if n > 0 {
		log.Printf("worker: evicted %d expired builder sessions", n)
	}
	return n
}
