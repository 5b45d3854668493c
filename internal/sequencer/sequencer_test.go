package sequencer

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/behrlich/audiosequencer/internal/rterr"
	"github.com/behrlich/audiosequencer/internal/rtsched"
)

// fakeService is a releasable that records how many times it was released,
// without spinning up a real worker thread. It lets the cadence tests run
// against a deterministic fake tick source instead of real sleeps.
type fakeService struct {
	period   time.Duration
	releases int
}

func (f *fakeService) Period() time.Duration { return f.period }
func (f *fakeService) Release()              { f.releases++ }

// fakeTickSource delivers exactly N ticks with no wall-clock delay, then
// blocks until ctx is cancelled, so a test can drain a known number of
// ticks and then stop the loop deterministically.
type fakeTickSource struct {
	remaining int
}

func (f *fakeTickSource) init() error { return nil }
func (f *fakeTickSource) teardown()   {}
func (f *fakeTickSource) waitForTick(ctx context.Context, timeout time.Duration) error {
	if f.remaining <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	f.remaining--
	return nil
}

func TestAddServiceRejectsNonMultiplePeriod(t *testing.T) {
	s, err := New(Config{Period: 20 * time.Millisecond})
	require.NoError(t, err)

	err = s.AddService(&fakeService{period: 45 * time.Millisecond})
	assert.Error(t, err)
}

func TestAddServiceAcceptsMultiplePeriod(t *testing.T) {
	s, err := New(Config{Period: 20 * time.Millisecond})
	require.NoError(t, err)

	err = s.AddService(&fakeService{period: 100 * time.Millisecond})
	assert.NoError(t, err)
}

func TestNewRejectsNonPositivePeriod(t *testing.T) {
	_, err := New(Config{Period: 0})
	assert.Error(t, err)
}

func TestReleaseCadenceOverOneThousandTicks(t *testing.T) {
	s, err := New(Config{Period: 10 * time.Millisecond})
	require.NoError(t, err)

	svc20 := &fakeService{period: 20 * time.Millisecond}
	svc50 := &fakeService{period: 50 * time.Millisecond}
	require.NoError(t, s.AddService(svc20))
	require.NoError(t, s.AddService(svc50))

	s.tick = &fakeTickSource{remaining: 1000}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = s.Start(ctx, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.TickStats().Len >= 1000 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 500, svc20.releases)
	assert.Equal(t, 200, svc50.releases)
}

func TestStopIsSafeOnIdleSequencer(t *testing.T) {
	s, err := New(Config{Period: 10 * time.Millisecond})
	require.NoError(t, err)
	s.Stop()
	s.Stop()
}

func TestTickStatsRecordsEveryTickIncludingFirst(t *testing.T) {
	s, err := New(Config{Period: 10 * time.Millisecond})
	require.NoError(t, err)
	s.tick = &fakeTickSource{remaining: 5}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = s.Start(ctx, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.TickStats().Len >= 5 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 5, s.TickStats().Len)
}

func TestStartAbortsOnAffinitySetupFailure(t *testing.T) {
	orig := schedSetaffinity
	defer func() { schedSetaffinity = orig }()
	schedSetaffinity = func(pid int, set *unix.CPUSet) error { return syscall.EINVAL }

	s, err := New(Config{Period: 10 * time.Millisecond, Affinity: 0})
	require.NoError(t, err)
	s.tick = &fakeTickSource{remaining: 5}

	err = s.Start(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, rterr.IsCode(err, rterr.CodeSetup))
}

func TestStartAbortsOnPrioritySetupFailure(t *testing.T) {
	orig := schedSetscheduler
	defer func() { schedSetscheduler = orig }()
	schedSetscheduler = func(pid int, policy int, param *rtsched.Param) error { return syscall.EPERM }

	s, err := New(Config{Period: 10 * time.Millisecond, Affinity: -1, Priority: 50})
	require.NoError(t, err)
	s.tick = &fakeTickSource{remaining: 5}

	err = s.Start(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, rterr.IsCode(err, rterr.CodeSetup))
}
