package backend

import (
	"fmt"
	"io"
	"strings"

	"github.com/behrlich/audiosequencer/internal/rtlog"
)

// Sink is the visualizer's output contract: render a bucketed spectrum
// somewhere. The three concrete sinks below satisfy the CLI's `led`,
// `console`, and `muted` selectors.
type Sink interface {
	Render(buckets []float64) error
}

// ConsoleSink renders a bar graph of bucket magnitudes to an io.Writer.
type ConsoleSink struct {
	Out io.Writer
}

// NewConsoleSink returns a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink { return &ConsoleSink{Out: w} }

func (s *ConsoleSink) Render(buckets []float64) error {
	var sb strings.Builder
	for _, v := range buckets {
		bars := int(v * 40)
		if bars > 40 {
			bars = 40
		}
		if bars < 0 {
			bars = 0
		}
		sb.WriteString(strings.Repeat("#", bars))
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(s.Out, sb.String())
	return err
}

// LEDSink stands in for real LED hardware (out of scope) by logging the
// bucket vector at debug level instead of driving GPIO.
type LEDSink struct {
	Logger *rtlog.Logger
}

// NewLEDSink returns an LEDSink logging through logger.
func NewLEDSink(logger *rtlog.Logger) *LEDSink {
	if logger == nil {
		logger = rtlog.Default()
	}
	return &LEDSink{Logger: logger}
}

func (s *LEDSink) Render(buckets []float64) error {
	s.Logger.Debugf("led frame: %s", fmt.Sprint(buckets))
	return nil
}

// MutedSink discards every frame.
type MutedSink struct{}

func (MutedSink) Render(buckets []float64) error { return nil }
