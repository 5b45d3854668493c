package service

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/behrlich/audiosequencer/internal/rterr"
	"github.com/behrlich/audiosequencer/internal/rtsched"
)

func TestServiceRunsOnRelease(t *testing.T) {
	var calls atomic.Int32
	s := New(Config{
		Name:   "test",
		Period: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	})
	defer s.Stop()

	s.Release()
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)

	s.Release()
	s.Release() // second Release before the first body returns may coalesce; still >= 2 eventually
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestServiceReleaseErrorElidedOnFirstRelease(t *testing.T) {
	// Invariant 6 / scenario: the release-error ring's first sample is
	// recorded only on the second release.
	var ran atomic.Int32
	s := New(Config{
		Name:   "test",
		Period: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		},
	})
	defer s.Stop()

	s.Release()
	require.Eventually(t, func() bool { return ran.Load() >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, s.ReleaseStats().Len)

	time.Sleep(10 * time.Millisecond)
	s.Release()
	require.Eventually(t, func() bool { return ran.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, s.ReleaseStats().Len)
}

func TestServiceOverrunIsLoggedNotFatal(t *testing.T) {
	var calls atomic.Int32
	s := New(Config{
		Name:   "slow",
		Period: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			calls.Add(1)
			time.Sleep(15 * time.Millisecond)
			return nil
		},
	})
	defer s.Stop()

	s.Release()
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Release()
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestServiceStopIsIdempotentAndJoins(t *testing.T) {
	s := New(Config{
		Name:   "joinable",
		Period: 5 * time.Millisecond,
		Run:    func(ctx context.Context) error { return nil },
	})
	s.Stop()
	s.Stop() // second Stop must not block or panic
}

func TestServiceFailureIsNonFatal(t *testing.T) {
	var calls atomic.Int32
	s := New(Config{
		Name:   "failing",
		Period: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			calls.Add(1)
			return assertError{}
		},
	})
	defer s.Stop()

	s.Release()
	s.Release()
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
}

type assertError struct{}

func (assertError) Error() string { return "synthetic failure" }

func TestServiceAbortsOnAffinitySetupFailure(t *testing.T) {
	orig := schedSetaffinity
	defer func() { schedSetaffinity = orig }()
	schedSetaffinity = func(pid int, set *unix.CPUSet) error { return syscall.EINVAL }

	s := New(Config{
		Name:     "pinned",
		Period:   10 * time.Millisecond,
		Affinity: 0,
		Run:      func(ctx context.Context) error { return nil },
	})
	defer s.Stop()

	select {
	case err := <-s.SetupErr():
		require.Error(t, err)
		assert.True(t, rterr.IsCode(err, rterr.CodeSetup))
	case <-time.After(time.Second):
		t.Fatal("expected a setup error on the channel")
	}
}

func TestServiceAbortsOnPrioritySetupFailure(t *testing.T) {
	orig := schedSetscheduler
	defer func() { schedSetscheduler = orig }()
	schedSetscheduler = func(pid int, policy int, param *rtsched.Param) error { return syscall.EPERM }

	s := New(Config{
		Name:     "prioritized",
		Period:   10 * time.Millisecond,
		Affinity: -1,
		Priority: 50,
		Run:      func(ctx context.Context) error { return nil },
	})
	defer s.Stop()

	select {
	case err := <-s.SetupErr():
		require.Error(t, err)
		assert.True(t, rterr.IsCode(err, rterr.CodeSetup))
	case <-time.After(time.Second):
		t.Fatal("expected a setup error on the channel")
	}
}
