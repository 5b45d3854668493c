// Package rtsched wraps the sched_setscheduler(2) syscall. golang.org/x/sys/unix
// exposes SchedSetaffinity but, like the raw POSIX timer calls in
// internal/sequencer, has no typed wrapper for sched_setscheduler or its
// struct sched_param argument, so this package issues the syscall directly —
// the same raw-syscall idiom internal/sequencer uses for timer_create.
package rtsched

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Scheduling policies from sched.h. Only FIFO is used by this module; the
// others are named for clarity at call sites that might log a policy value.
const (
	Other = 0
	FIFO  = 1
	RR    = 2
)

// Param mirrors struct sched_param { int sched_priority; }.
type Param struct {
	Priority int32
}

// SetScheduler calls sched_setscheduler(pid, policy, param). pid 0 means the
// calling thread.
func SetScheduler(pid int, policy int, param *Param) error {
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, uintptr(pid), uintptr(policy), uintptr(unsafe.Pointer(param)))
	if errno != 0 {
		return errno
	}
	return nil
}
