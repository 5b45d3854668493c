// Package backend provides reference collaborators that exercise the
// pipeline end-to-end: a deterministic signal generator standing in for a
// real ALSA capture device, a naive DFT standing in for a real spectral
// transform, and three output sinks. None of these claim DSP fidelity or
// hardware support — they exist so the sequencer/service/pipeline core has
// something real to drive in tests and in cmd/audiosequencer.
package backend

import (
	"math"

	"github.com/behrlich/audiosequencer/internal/pipeline"
)

// Microphone is a deterministic sine-plus-noise generator satisfying the
// capture collaborator contract. Real ALSA capture is out of scope; this
// exists purely to drive the pipeline under test and in the CLI demo.
type Microphone struct {
	SampleRate int
	ToneHz     float64
	NoiseAmp   float64

	sampleIndex int64
	rngState    uint64
}

// NewMicrophone returns a Microphone seeded for reproducible output.
func NewMicrophone(sampleRate int, toneHz float64) *Microphone {
	return &Microphone{
		SampleRate: sampleRate,
		ToneHz:     toneHz,
		NoiseAmp:   0.05,
		rngState:   0x9e3779b97f4a7c15,
	}
}

// GetFrames fills the buffer's write side with 16-bit little-endian PCM
// samples and returns the number of bytes written. It never blocks and
// never fails; the error return exists to match a real device's contract.
func (m *Microphone) GetFrames(buf *pipeline.AudioBuffer) (int, error) {
	side := buf.WriteSide()
	n := len(side) / 2
	for i := 0; i < n; i++ {
		t := float64(m.sampleIndex) / float64(m.SampleRate)
		sample := math.Sin(2*math.Pi*m.ToneHz*t) + m.NoiseAmp*m.nextNoise()
		v := int16(sample * 32767)
		side[2*i] = byte(v)
		side[2*i+1] = byte(v >> 8)
		m.sampleIndex++
	}
	return n * 2, nil
}

// nextNoise is a small xorshift PRNG, deterministic across runs, producing
// values in [-1, 1).
func (m *Microphone) nextNoise() float64 {
	x := m.rngState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	m.rngState = x
	return float64(x%2000)/1000.0 - 1.0
}
