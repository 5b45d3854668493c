package sequencer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/behrlich/audiosequencer/internal/rtlog"
)

// tickSignal is the real-time signal used to deliver timer expirations.
// SIGRTMIN is reserved for this purpose by this process; nothing else in
// the process should install a handler for it.
var tickSignal = syscall.Signal(unix.SIGRTMIN())

// isrTickSource installs a POSIX interval timer (timer_create/timer_settime)
// configured to deliver tickSignal on every expiration. Go has no concept of
// a true asynchronous-signal handler running in interrupt context; the
// runtime's signal machinery forwards delivery onto a channel, and a single
// dedicated goroutine does nothing but re-send it on a capacity-1 tick
// channel. That goroutine is the idiomatic Go translation of spec §9's
// "signal-handler reentry" note: no allocation, no logging, one
// non-blocking channel send — the only work that would be safe inside a
// true async-signal handler.
type isrTickSource struct {
	period time.Duration
	logger *rtlog.Logger

	timerID int32

	sigCh  chan os.Signal
	tickCh chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newISRTickSource(period time.Duration, logger *rtlog.Logger) *isrTickSource {
	return &isrTickSource{
		period: period,
		logger: logger,
		sigCh:  make(chan os.Signal, 4),
		tickCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

func (t *isrTickSource) init() error {
	signal.Notify(t.sigCh, tickSignal)

	go func() {
		for {
			select {
			case <-t.sigCh:
				select {
				case t.tickCh <- struct{}{}:
				default:
				}
			case <-t.stopCh:
				signal.Stop(t.sigCh)
				return
			}
		}
	}()

	var sev unix.Sigevent
	sev.Notify = unix.SIGEV_SIGNAL
	sev.Signo = int32(tickSignal)

	var id int32
	if err := timerCreate(unix.CLOCK_MONOTONIC, &sev, &id); err != nil {
		return fmt.Errorf("timer_create: %w", err)
	}
	t.timerID = id

	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(t.period.Nanoseconds()),
		Value:    unix.NsecToTimespec(t.period.Nanoseconds()),
	}
	if err := timerSettime(id, 0, &spec, nil); err != nil {
		_ = timerDelete(id)
		return fmt.Errorf("timer_settime: %w", err)
	}
	return nil
}

func (t *isrTickSource) waitForTick(ctx context.Context, timeout time.Duration) error {
	select {
	case <-t.tickCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("tick signal not received within %s", timeout)
	}
}

func (t *isrTickSource) teardown() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		_ = timerDelete(t.timerID)
	})
}

// The three syscalls below (timer_create/timer_settime/timer_delete) are
// POSIX interval-timer primitives not exposed as typed wrappers by
// golang.org/x/sys/unix; they are issued directly via unix.Syscall, the
// same low-level escape hatch the teacher uses for mmap in its queue
// runner.
func timerCreate(clockID int32, sev *unix.Sigevent, id *int32) error {
	_, _, errno := unix.Syscall(unix.SYS_TIMER_CREATE, uintptr(clockID), uintptr(unsafe.Pointer(sev)), uintptr(unsafe.Pointer(id)))
	if errno != 0 {
		return errno
	}
	return nil
}

func timerSettime(id int32, flags int, newVal, oldVal *unix.ItimerSpec) error {
	_, _, errno := unix.Syscall6(unix.SYS_TIMER_SETTIME, uintptr(id), uintptr(flags), uintptr(unsafe.Pointer(newVal)), uintptr(unsafe.Pointer(oldVal)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func timerDelete(id int32) error {
	_, _, errno := unix.Syscall(unix.SYS_TIMER_DELETE, uintptr(id), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
