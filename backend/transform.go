package backend

import (
	"math"

	"github.com/behrlich/audiosequencer/internal/pipeline"
)

// Transform is a naive discrete Fourier transform over a fixed bucket
// count, reading PCM16 frames from the pipeline's read side. It makes no
// claim to DSP quality or performance; the audio algorithm itself is out
// of scope, this exists to give the transform service a real body to run.
type Transform struct {
	Buckets int
}

// NewTransform returns a Transform that reduces to the given bucket count.
func NewTransform(buckets int) *Transform {
	return &Transform{Buckets: buckets}
}

// Perform reads buf's read side, computes |X(k)| for k in [0, Buckets),
// and writes the magnitudes into out (resized if necessary).
func (t *Transform) Perform(buf *pipeline.AudioBuffer, out []float64) []float64 {
	side := buf.ReadSide()
	n := len(side) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(side[2*i]) | uint16(side[2*i+1])<<8)
		samples[i] = float64(v) / 32768.0
	}

	if cap(out) < t.Buckets {
		out = make([]float64, t.Buckets)
	}
	out = out[:t.Buckets]

	for k := 0; k < t.Buckets; k++ {
		var re, im float64
		for i, s := range samples {
			angle := -2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += s * math.Cos(angle)
			im += s * math.Sin(angle)
		}
		out[k] = math.Hypot(re, im)
	}
	return out
}
