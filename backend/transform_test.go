package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/behrlich/audiosequencer/internal/pipeline"
)

func TestTransformProducesConfiguredBucketCount(t *testing.T) {
	buf := pipeline.NewAudioBuffer(32, 1)
	mic := NewMicrophone(48000, 440)
	_, _ = mic.GetFrames(buf)
	buf.Flip()

	tr := NewTransform(8)
	out := tr.Perform(buf, nil)
	assert.Len(t, out, 8)
}

func TestTransformReusesOutputSliceCapacity(t *testing.T) {
	buf := pipeline.NewAudioBuffer(32, 1)
	mic := NewMicrophone(48000, 440)
	_, _ = mic.GetFrames(buf)
	buf.Flip()

	tr := NewTransform(4)
	out := make([]float64, 0, 4)
	result := tr.Perform(buf, out)
	assert.Len(t, result, 4)
}
