// Package pipeline implements the double-buffered audio hand-off of spec
// §4.D/§4.E: a flip buffer owned by the capture service and read by the
// transform service, coordinated by a pair of binary semaphores.
package pipeline

import "sync/atomic"

// AudioBuffer is a pair of equally sized byte regions with an atomically
// tracked active (write) side. The flip is performed by a single owner
// (the capture service) between write completion and signaling Ready; the
// transform service only ever reads the opposite side. Under that
// discipline the buffer itself needs no internal lock — see Handshake for
// the rendezvous that enforces the ordering.
type AudioBuffer struct {
	regions  [2][]byte
	active   atomic.Int32
	channels int
}

// NewAudioBuffer allocates both regions at the given byte capacity.
// Channels is stored and never interpreted by the buffer (spec's open
// question on mono vs stereo layout is left to the collaborator reading
// the buffer's contents).
func NewAudioBuffer(capacity, channels int) *AudioBuffer {
	return &AudioBuffer{
		regions:  [2][]byte{make([]byte, capacity), make([]byte, capacity)},
		channels: channels,
	}
}

// WriteSide returns the region currently designated for writing.
func (b *AudioBuffer) WriteSide() []byte {
	return b.regions[b.active.Load()]
}

// ReadSide returns the region opposite the write side.
func (b *AudioBuffer) ReadSide() []byte {
	return b.regions[1-b.active.Load()]
}

// Flip swaps the write and read sides. Only the owning producer (capture)
// may call this, and only between a completed write and signaling Ready.
func (b *AudioBuffer) Flip() {
	b.active.Store(1 - b.active.Load())
}

// Channels returns the stored channel count.
func (b *AudioBuffer) Channels() int { return b.channels }

// Capacity returns the byte size of each region.
func (b *AudioBuffer) Capacity() int { return len(b.regions[0]) }

// Resize reallocates both regions at the new capacity if it differs from
// the current one. Callers must ensure no concurrent reader or writer is
// active during a resize; the buffer provides no locking for this path.
func (b *AudioBuffer) Resize(n int) {
	if n == len(b.regions[0]) {
		return
	}
	b.regions[0] = make([]byte, n)
	b.regions[1] = make([]byte, n)
}
