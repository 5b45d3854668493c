// Package config collects the tunables spec §4.G's CLI contract and §5's
// thread table expose, so cmd/audiosequencer and internal/app share a
// single typed configuration value instead of passing a dozen flags by
// hand.
package config

import "time"

// SequencerVariant selects which tick source internal/sequencer uses.
type SequencerVariant string

const (
	VariantSleep SequencerVariant = "sleep"
	VariantISR   SequencerVariant = "isr"
)

// OutputSink selects which backend.Sink the visualizer writes to.
type OutputSink string

const (
	SinkConsole OutputSink = "console"
	SinkLED     OutputSink = "led"
	SinkMuted   OutputSink = "muted"
)

// ServiceTuning holds the per-service scheduling parameters of spec §5's
// thread table: core affinity, SCHED_FIFO priority, and release period.
type ServiceTuning struct {
	Affinity int
	Priority int
	Period   time.Duration
}

// Config is the fully resolved set of run parameters.
type Config struct {
	SequencerVariant SequencerVariant
	OutputSink       OutputSink

	MasterPeriod time.Duration

	Sequencer  ServiceTuning
	Capture    ServiceTuning
	Transform  ServiceTuning
	Visualizer ServiceTuning
	LogFlusher ServiceTuning

	BucketCount int
	SampleRate  int
	FrameBytes  int

	StatisticsPath string
	CmdlinePath    string

	// MetricsAddr, when non-empty, starts a Prometheus exposition endpoint
	// on this address (internal/statsexport).
	MetricsAddr string
}

// Default returns the reference deployment of spec §5's thread table: core
// 2 for the sequencer, core 3 shared by the remaining four services in
// strict priority order.
func Default() Config {
	const master = 10 * time.Millisecond
	return Config{
		SequencerVariant: VariantSleep,
		OutputSink:       SinkConsole,
		MasterPeriod:     master,

		Sequencer:  ServiceTuning{Affinity: 2, Priority: 99, Period: master},
		Capture:    ServiceTuning{Affinity: 3, Priority: 99, Period: master},
		Transform:  ServiceTuning{Affinity: 3, Priority: 98, Period: master},
		Visualizer: ServiceTuning{Affinity: 3, Priority: 97, Period: 100 * time.Millisecond},
		LogFlusher: ServiceTuning{Affinity: 3, Priority: 1, Period: 200 * time.Millisecond},

		BucketCount: 32,
		SampleRate:  48000,
		FrameBytes:  4096,

		StatisticsPath: "statistics.txt",
		CmdlinePath:    "/boot/firmware/cmdline.txt",
	}
}
