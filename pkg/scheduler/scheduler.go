// Package scheduler runs repeating tasks aligned to wall-clock interval boundaries.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
)

const defaultGrace = 1 * time.Second

// Task is one scheduled unit of work. ctx is cancelled when the scheduler stops.
type Task func(ctx context.Context) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithGrace sets the pause after each run before the next boundary is computed.
func WithGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		s.grace = d
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler owns a set of loops that share one stop signal.
type Scheduler struct {
	logger *logging.Logger
	grace  time.Duration
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New creates a scheduler. A nil logger discards output.
func New(logger *logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: logger,
		grace:  defaultGrace,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextBoundary returns the smallest multiple of interval since the Unix epoch
// that is not before now.
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	n := now.UnixNano()
	step := int64(interval)
	next := ((n + step - 1) / step) * step
	if n < 0 && n%step != 0 {
		next = (n / step) * step
	}
	return time.Unix(0, next)
}

// Go starts a loop that runs task once immediately, then at every interval
// boundary. After each boundary run it waits the grace period before
// computing the next boundary, so a run finishing on a boundary never
// matches it twice.
func (s *Scheduler) Go(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidInterval, name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	s.wg.Add(1)
	go s.loop(name, interval, task)
	return nil
}

// Stop wakes every sleeping loop, cancels in-flight tasks and waits for all
// loops to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(name string, interval time.Duration, task Task) {
	defer s.wg.Done()

	s.run(name, task)
	for {
		next := NextBoundary(s.now(), interval)
		if !s.sleep(next.Sub(s.now())) {
			return
		}
		s.run(name, task)
		if !s.sleep(s.grace) {
			return
		}
	}
}

func (s *Scheduler) run(name string, task Task) {
	if s.ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "task", name, "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	if err := task(s.ctx); err != nil {
		s.logger.Warn("scheduled task failed", "task", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled task completed", "task", name, "duration", time.Since(start))
}

// sleep returns false if the scheduler stopped before d elapsed.
func (s *Scheduler) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
