package backend

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleSinkRendersOneLinePerBucket(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf)
	assert.NoError(t, s.Render([]float64{0.1, 0.5, 1.5, -1}))
	assert.Equal(t, 4, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestMutedSinkDiscardsEverything(t *testing.T) {
	var s MutedSink
	assert.NoError(t, s.Render([]float64{1, 2, 3}))
}

func TestLEDSinkNeverFails(t *testing.T) {
	s := NewLEDSink(nil)
	assert.NoError(t, s.Render([]float64{0.2, 0.4}))
}
