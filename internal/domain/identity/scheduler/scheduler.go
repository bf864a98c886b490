package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionPruner deletes session records that can no longer authenticate
type SessionPruner interface {
	PruneSessions(ctx context.Context) (int64, error)
}

// Scheduler periodically sweeps expired and revoked sessions
type Scheduler struct {
	pruner   SessionPruner
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// New creates a new session sweeper
func New(pruner SessionPruner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pruner:   pruner,
		interval: interval,
		logger:   logger.With("component", "session_sweeper"),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sweeper; calling it again while running is a no-op
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("session sweeper started", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("session sweeper stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	n, err := s.pruner.PruneSessions(ctx)
	if err != nil {
		s.logger.Error("failed to prune sessions", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("pruned inactive sessions", "count", n)
	}
}
