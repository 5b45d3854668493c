package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Handshake is the Ready/Done rendezvous of spec §4.E: two binary signals
// and a mutex guarding the last FFT output vector. Using
// golang.org/x/sync/semaphore.Weighted rather than a hand-rolled channel
// gives a named, context-aware Acquire(ctx, 1) with built-in cancellation
// — exactly the "acquire with a 2*period deadline" contract the capture
// and transform services need. Both semaphores are held at weight 1 for
// their entire lifetime; Acquire/Release are never called with n > 1.
type Handshake struct {
	ready *semaphore.Weighted
	done  *semaphore.Weighted

	// OutputLock protects LastOutput, the most recent FFT bucket vector,
	// while the visualizer copies it out.
	OutputLock sync.Mutex
	LastOutput []float64
}

// NewHandshake constructs a Handshake with Ready empty and Done full,
// matching spec §4.E's initial counts (Ready=0, Done=1).
func NewHandshake() *Handshake {
	h := &Handshake{
		ready: semaphore.NewWeighted(1),
		done:  semaphore.NewWeighted(1),
	}
	// Drain Ready's single token so the first AcquireReady blocks until
	// capture's first flip releases it. This call never blocks: a fresh
	// weight-1 semaphore always has its token available.
	_ = h.ready.Acquire(context.Background(), 1)
	return h
}

// AcquireReady blocks until capture has flipped and released Ready, or ctx
// is done.
func (h *Handshake) AcquireReady(ctx context.Context) error {
	return h.ready.Acquire(ctx, 1)
}

// ReleaseReady signals that a fresh frame is ready for transform to read.
func (h *Handshake) ReleaseReady() { h.ready.Release(1) }

// AcquireDone blocks until transform has released Done, or ctx is done.
func (h *Handshake) AcquireDone(ctx context.Context) error {
	return h.done.Acquire(ctx, 1)
}

// ReleaseDone signals that transform has finished consuming the read side.
func (h *Handshake) ReleaseDone() { h.done.Release(1) }
