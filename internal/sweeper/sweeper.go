// Package sweeper purges old completed ActionRecords on a fixed interval.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/syncq/internal/clock"
	"github.com/roach88/syncq/internal/queue"
)

const (
	// DefaultWindow is how long completed records are kept.
	DefaultWindow = 7 * 24 * time.Hour

	// DefaultInterval is the time between scheduled sweeps.
	DefaultInterval = 24 * time.Hour

	// DefaultLimit caps the records deleted per sweep.
	DefaultLimit = 1000
)

// Result describes one sweep.
type Result struct {
	Cutoff  time.Time
	Matched int
	Deleted int
}

// Sweeper deletes completed records older than the retention window.
// Failed and pending records are never touched.
//
// A failed sweep is not retried; the next interval runs it again.
type Sweeper struct {
	repo     *queue.Repository
	clock    clock.Clock
	logger   *slog.Logger
	window   time.Duration
	interval time.Duration
	limit    int

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithWindow sets the retention window.
func WithWindow(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithInterval sets the time between scheduled sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLimit caps the records deleted per sweep.
func WithLimit(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithClock sets the time source used to compute the cutoff.
func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) {
		s.clock = clock.OrSystem(c)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Sweeper over repo.
func New(repo *queue.Repository, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		clock:    clock.System{},
		logger:   slog.Default(),
		window:   DefaultWindow,
		interval: DefaultInterval,
		limit:    DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce deletes up to the limit of completed records whose completedAt
// is older than now minus the window, in one batch.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	res := Result{Cutoff: s.clock.Now().Add(-s.window)}

	expired, err := s.repo.ExpiredCompleted(ctx, res.Cutoff, s.limit)
	if err != nil {
		return res, fmt.Errorf("sweep: %w", err)
	}
	res.Matched = len(expired)
	if len(expired) == 0 {
		s.logger.Info("no old sync queue items to clean up", "cutoff", res.Cutoff)
		return res, nil
	}

	ids := make([]string, len(expired))
	for i, rec := range expired {
		ids[i] = rec.ID
	}
	res.Deleted, err = s.repo.DeleteCompleted(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("sweep: %w", err)
	}
	s.logger.Info("cleaned up old sync queue items", "deleted", res.Deleted, "cutoff", res.Cutoff)
	return res, nil
}

// Start runs RunOnce every interval until Stop is called or ctx is done.
// Calling Start on a running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)

	s.logger.Info("retention sweeper started", "interval", s.interval, "window", s.window)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("error cleaning up sync queue", "error", err)
			}
		}
	}
}
