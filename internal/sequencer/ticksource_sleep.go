package sequencer

import (
	"context"
	"time"
)

// sleepTickSource drives ticks off time.Sleep rather than an OS timer. Its
// first iteration returns immediately, so the sequencer can timestamp t=0
// without an initial delay; subsequent iterations sleep one period. Drift
// accumulates and is observable in the sequencer's tick-error ring, never
// corrected (spec §4.C).
type sleepTickSource struct {
	period time.Duration
	first  bool
}

func newSleepTickSource(period time.Duration) *sleepTickSource {
	return &sleepTickSource{period: period, first: true}
}

func (s *sleepTickSource) init() error { s.first = true; return nil }

func (s *sleepTickSource) waitForTick(ctx context.Context, timeout time.Duration) error {
	if s.first {
		s.first = false
		return nil
	}
	timer := time.NewTimer(s.period)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sleepTickSource) teardown() {}
