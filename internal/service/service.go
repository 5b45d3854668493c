// Package service implements the periodic worker contract of spec §4.B: a
// pinned, priority-elevated thread released by a binary signal, recording
// release and execution timing, self-stopping after a sustained run of
// missed releases.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/audiosequencer/internal/rterr"
	"github.com/behrlich/audiosequencer/internal/rtlog"
	"github.com/behrlich/audiosequencer/internal/rtsched"
	"github.com/behrlich/audiosequencer/internal/stats"
)

// consecutiveMissThreshold is the number of back-to-back release timeouts
// that force a service to self-stop (spec §4.B step 2b).
const consecutiveMissThreshold = 100

// statTrackerCapacity is the default ring capacity for release/execution
// stat trackers (spec §4.A: "typical 1000").
const statTrackerCapacity = 1000

// schedSetaffinity and schedSetscheduler are indirected through package
// vars so tests can force a Setup-error path without needing actual
// scheduler privileges.
var (
	schedSetaffinity  = unix.SchedSetaffinity
	schedSetscheduler = rtsched.SetScheduler
)

// RunFunc is the per-period body a Service executes once per release. It
// replaces the C++ original's virtual run_once() override: Go has no
// subclassing, so the body is supplied as a plain function value (spec
// §9's "avoid deep inheritance" note, applied to the single-method case).
type RunFunc func(ctx context.Context) error

// Config describes the immutable construction parameters of a Service.
type Config struct {
	Name     string
	Period   time.Duration
	Priority int // SCHED_FIFO priority, 1-99
	Affinity int // CPU index, or -1 for no affinity
	Run      RunFunc
	Logger   *rtlog.Logger
}

// Service is a periodic worker pinned to a CPU, elevated to a real-time
// scheduling priority, and released by a capacity-1 binary signal.
type Service struct {
	name     string
	period   time.Duration
	priority int
	affinity int
	run      RunFunc
	logger   *rtlog.Logger

	running atomic.Bool
	started atomic.Bool

	firstReleaseNs atomic.Int64
	releaseNumber  int64

	releaseMu sync.Mutex // guards releaseNumber and firstReleaseNs read-modify-write

	releaseSig chan struct{} // capacity 1: binary release signal
	done       chan struct{} // closed when the worker goroutine exits
	setupErr   chan error    // capacity 1: non-nil if thread setup aborted the worker

	releaseStats   *stats.Tracker
	executionStats *stats.Tracker

	consecutiveMisses int
}

// New constructs and starts a Service. The worker goroutine is spawned
// immediately but blocks on its first release (spec §3 Lifecycles).
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = rtlog.Default()
	}
	s := &Service{
		name:           cfg.Name,
		period:         cfg.Period,
		priority:       cfg.Priority,
		affinity:       cfg.Affinity,
		run:            cfg.Run,
		logger:         cfg.Logger,
		releaseSig:     make(chan struct{}, 1),
		done:           make(chan struct{}),
		setupErr:       make(chan error, 1),
		releaseStats:   stats.New(statTrackerCapacity),
		executionStats: stats.New(statTrackerCapacity),
	}
	s.running.Store(true)
	go s.worker()
	return s
}

// Name returns the service's log name.
func (s *Service) Name() string { return s.name }

// Period returns the service's release period.
func (s *Service) Period() time.Duration { return s.period }

// ReleaseStats returns a snapshot of the release-error ring.
func (s *Service) ReleaseStats() stats.Snapshot { return s.releaseStats.Snapshot() }

// ExecutionStats returns a snapshot of the execution-time ring.
func (s *Service) ExecutionStats() stats.Snapshot { return s.executionStats.Snapshot() }

// ExecutionsMetDeadline returns how many recorded executions finished at or
// before the service's own period, for the statistics.txt "met deadline"
// line.
func (s *Service) ExecutionsMetDeadline() int {
	return s.executionStats.CountOnTime(s.period.Seconds() * 1000)
}

// SetupErr returns a channel that receives a non-nil error if the
// worker's thread setup (CPU affinity or SCHED_FIFO priority) failed.
// Setup failures are spec §7 errors — fatal, abort with non-zero exit —
// so a caller that owns the process lifetime (internal/app) must select
// on this alongside its own shutdown path and terminate the run.
func (s *Service) SetupErr() <-chan error { return s.setupErr }

// Release makes the service runnable for exactly one period. It is
// non-blocking and idempotent: a pending, unconsumed release is a no-op, so
// a slow service never accumulates backlog (spec §4.B "Why a binary signal
// rather than a condition variable").
func (s *Service) Release() {
	now := time.Now()

	s.releaseMu.Lock()
	s.releaseNumber++
	n := s.releaseNumber
	first := s.firstReleaseNs.Load()
	if first == 0 {
		s.firstReleaseNs.Store(now.UnixNano())
	} else if n >= 2 {
		ideal := time.Unix(0, first).Add(time.Duration(n-1) * s.period)
		errMs := now.Sub(ideal).Seconds() * 1000
		s.releaseStats.Add(errMs)
	}
	s.releaseMu.Unlock()

	select {
	case s.releaseSig <- struct{}{}:
	default:
		// already pending; saturate at one outstanding release
	}
}

// Stop requests the worker to exit and blocks until it has joined.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		<-s.done
		return
	}
	// Wake the worker out of its timed wait so shutdown doesn't wait a full
	// 2*period for the timeout to fire on its own.
	select {
	case s.releaseSig <- struct{}{}:
	default:
	}
	<-s.done
}

// failSetup records a fatal Setup error and stops the worker before it
// ever executes a release.
func (s *Service) failSetup(err *rterr.Error) {
	s.logger.Error("service setup failed, aborting", "service", s.name, "error", err)
	s.running.Store(false)
	select {
	case s.setupErr <- err:
	default:
	}
}

func (s *Service) worker() {
	defer close(s.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Affinity/priority failures are Setup errors (spec §7: "fatal, abort
	// with non-zero exit"), not warnings: a service silently left
	// unpinned or at the wrong priority can blow its deadline in a way
	// nothing downstream would ever notice.
	if s.affinity >= 0 {
		var set unix.CPUSet
		set.Set(s.affinity)
		if err := schedSetaffinity(0, &set); err != nil {
			s.failSetup(rterr.NewService("SchedSetaffinity", s.name, rterr.CodeSetup, err.Error()))
			return
		}
	}

	if s.priority > 0 {
		param := &rtsched.Param{Priority: int32(s.priority)}
		if err := schedSetscheduler(0, rtsched.FIFO, param); err != nil {
			s.failSetup(rterr.NewService("SchedSetscheduler", s.name, rterr.CodeSetup, err.Error()))
			return
		}
	}

	s.started.Store(true)
	timeout := 2 * s.period

	for s.running.Load() {
		select {
		case <-s.releaseSig:
		case <-time.After(timeout):
			if !s.running.Load() {
				return
			}
			s.logger.TickSafe(fmt.Sprintf("service %s: release wait timed out after %s", s.name, timeout))
			s.consecutiveMisses++
			if s.consecutiveMisses >= consecutiveMissThreshold {
				s.logger.Error("service self-stopping after sustained release misses",
					"service", s.name, "misses", s.consecutiveMisses)
				s.running.Store(false)
				return
			}
			continue
		}

		s.consecutiveMisses = 0
		start := time.Now()
		// The body gets the same 2*period deadline as the release wait, so a
		// blocking acquire inside it (the pipeline handshake) times out.
		runCtx, cancel := context.WithTimeout(context.Background(), timeout)
		err := s.run(runCtx)
		cancel()
		if err != nil {
			s.logger.Error("service run_once failed", "service", s.name, "error", rterr.Wrap("RunOnce", err))
		}
		elapsedMs := time.Since(start).Seconds() * 1000
		s.executionStats.Add(elapsedMs)
	}
}
