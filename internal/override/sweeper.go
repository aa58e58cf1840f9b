package override

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sweeper expiry timing.
const (
	// DefaultTickInterval satisfies the system-wide activation accuracy
	// requirement (transitions applied within one second of their due
	// time). Override revert itself tolerates coarser granularity, but
	// the same driver serves schedule activations.
	DefaultTickInterval = time.Second

	// MaxTickInterval is the coarsest permitted tick. Anything slower
	// cannot meet the accuracy contract.
	MaxTickInterval = time.Second
)

// SweepFunc is one periodic expiry pass. It returns how many entries
// it transitioned.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper drives periodic expiry sweeps with explicit start/stop.
//
// It is a scheduled task, not an always-on interval tied to component
// lifetime: Start launches the loop, Stop halts it and waits for the
// in-flight pass to finish. An override with TTL t created at T is
// reverted no earlier than T+t and no later than T+t+tick.
type Sweeper struct {
	interval time.Duration
	sweeps   []SweepFunc
	logger   Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewSweeper creates a sweeper running the given sweep functions each
// tick, in order. Intervals outside (0, MaxTickInterval] are clamped to
// DefaultTickInterval.
func NewSweeper(interval time.Duration, sweeps ...SweepFunc) *Sweeper {
	if interval <= 0 || interval > MaxTickInterval {
		interval = DefaultTickInterval
	}
	return &Sweeper{
		interval: interval,
		sweeps:   sweeps,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the sweep loop. It returns an error if the sweeper is
// already running. The loop also stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("sweeper already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	go s.run(runCtx, s.stopped)
	return nil
}

// Stop halts the sweep loop and waits for the in-flight pass to finish.
// Stopping a sweeper that is not running is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// run is the sweep loop.
func (s *Sweeper) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			for _, sweep := range s.sweeps {
				n, err := sweep(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Error("sweep pass failed", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Debug("sweep pass complete", "transitions", n)
				}
			}
		}
	}
}
