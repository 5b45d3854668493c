// Package sequencer implements the rate-monotonic master tick generator of
// spec §4.C: a fixed master period releases each registered service at
// integer multiples of its own period, with tick jitter tracked
// independently of service execution error.
package sequencer

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/audiosequencer/internal/rterr"
	"github.com/behrlich/audiosequencer/internal/rtlog"
	"github.com/behrlich/audiosequencer/internal/rtsched"
	"github.com/behrlich/audiosequencer/internal/service"
	"github.com/behrlich/audiosequencer/internal/stats"
)

const tickStatTrackerCapacity = 1000

// schedSetaffinity and schedSetscheduler are indirected through package
// vars so tests can force a Setup-error path without needing actual
// scheduler privileges.
var (
	schedSetaffinity  = unix.SchedSetaffinity
	schedSetscheduler = rtsched.SetScheduler
)

// tickSource is the one-level abstraction spec §9's Design Notes call for:
// two concrete implementations of a common contract, chosen at
// construction, never a deep type hierarchy.
type tickSource interface {
	init() error
	waitForTick(ctx context.Context, timeout time.Duration) error
	teardown()
}

// releasable is the subset of *service.Service the sequencer depends on. It
// exists so tests can register fakes without spinning up real worker
// threads, and so the sequencer never holds a reference back into anything
// a service owns beyond its period and release entry point (spec §9
// "Cyclic ownership").
type releasable interface {
	Period() time.Duration
	Release()
}

// Config describes sequencer construction parameters.
type Config struct {
	Period   time.Duration // master tick period
	Priority int
	Affinity int
	Variant  Variant
	Logger   *rtlog.Logger
}

// Variant selects the tick source implementation.
type Variant string

const (
	VariantSleep Variant = "sleep"
	VariantISR   Variant = "isr"
)

// Sequencer is the master tick generator. It owns its registered services
// and stops them, in registration order, on Stop.
type Sequencer struct {
	period   time.Duration
	priority int
	affinity int
	logger   *rtlog.Logger

	services []releasable
	tick     tickSource

	iterations int64
	tickStats  *stats.Tracker

	stopped atomic.Bool
	done    chan struct{}
}

// New constructs a Sequencer with the requested tick-source variant.
func New(cfg Config) (*Sequencer, error) {
	if cfg.Period <= 0 {
		return nil, rterr.New("NewSequencer", rterr.CodeSetup, "period must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = rtlog.Default()
	}
	s := &Sequencer{
		period:    cfg.Period,
		priority:  cfg.Priority,
		affinity:  cfg.Affinity,
		logger:    cfg.Logger,
		tickStats: stats.New(tickStatTrackerCapacity),
		done:      make(chan struct{}),
	}
	switch cfg.Variant {
	case VariantISR:
		s.tick = newISRTickSource(cfg.Period, s.logger)
	default:
		s.tick = newSleepTickSource(cfg.Period)
	}
	s.done = make(chan struct{})
	close(s.done) // idle sequencers report "stopped" cleanly before Start
	return s, nil
}

// AddService registers a service. Its period must be an integer multiple
// of the sequencer's master period (spec §3 invariant, §7 registration
// errors); violations are rejected immediately.
func (s *Sequencer) AddService(svc releasable) error {
	if svc.Period()%s.period != 0 {
		return rterr.New("AddService", rterr.CodeRegistration,
			"service period is not a multiple of the sequencer period")
	}
	s.services = append(s.services, svc)
	return nil
}

// TickStats returns a snapshot of the sequencer's own tick-error ring,
// independent of any service's execution or release error.
func (s *Sequencer) TickStats() stats.Snapshot { return s.tickStats.Snapshot() }

// Start runs the release loop until ctx is cancelled, keepRunning clears,
// or the tick watchdog fires (ISR variant only; fatal per spec §4.C).
// It blocks until the loop exits; it does not stop the registered
// services, which is Stop's job.
func (s *Sequencer) Start(ctx context.Context, keepRunning *atomic.Bool) error {
	s.done = make(chan struct{})
	defer close(s.done)
	s.stopped.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Affinity/priority failures are Setup errors (spec §7: "fatal, abort
	// with non-zero exit"), not warnings — a sequencer that silently runs
	// unpinned or at the wrong priority can miss its deadline in a way
	// nothing downstream can detect.
	if s.affinity >= 0 {
		var set unix.CPUSet
		set.Set(s.affinity)
		if err := schedSetaffinity(0, &set); err != nil {
			return rterr.Wrap("Sequencer.Start", rterr.New("SchedSetaffinity", rterr.CodeSetup, err.Error()))
		}
	}
	if s.priority > 0 {
		param := &rtsched.Param{Priority: int32(s.priority)}
		if err := schedSetscheduler(0, rtsched.FIFO, param); err != nil {
			return rterr.Wrap("Sequencer.Start", rterr.New("SchedSetscheduler", rterr.CodeSetup, err.Error()))
		}
	}

	if err := s.tick.init(); err != nil {
		return rterr.Wrap("Sequencer.Start", err)
	}
	defer s.tick.teardown()

	var t0 time.Time
	timeout := 2 * s.period

	for !s.stopped.Load() && (keepRunning == nil || keepRunning.Load()) {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.tick.waitForTick(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// A tick miss is fatal only for the signal-timer variant
			// (spec §7 "Sequencer tick miss"); the sleep variant never
			// calls waitForTick in a way that can time out.
			return rterr.Wrap("Sequencer.Start", rterr.New("waitForTick", rterr.CodeTickMiss, err.Error()))
		}

		now := time.Now()
		if t0.IsZero() {
			t0 = now
		}
		idealOffset := time.Duration(s.iterations) * s.period
		errMs := now.Sub(t0.Add(idealOffset)).Seconds() * 1000
		s.tickStats.Add(errMs)

		masterTicks := s.iterations
		for _, svc := range s.services {
			multiple := int64(svc.Period() / s.period)
			if multiple > 0 && masterTicks%multiple == 0 {
				svc.Release()
			}
		}
		s.iterations++
	}
	return nil
}

// Stop ends the release loop and joins all registered services in
// registration order. It is safe to call on an idle or already-stopped
// sequencer.
func (s *Sequencer) Stop() {
	s.stopped.Store(true)
	<-s.done
	for _, svc := range s.services {
		if stoppable, ok := svc.(interface{ Stop() }); ok {
			stoppable.Stop()
		}
	}
}

var _ releasable = (*service.Service)(nil)
