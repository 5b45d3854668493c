// Package app wires the sequencer, services, pipeline, and reference
// collaborators into the runnable process described by spec §4.G: command
// line selects a sequencer variant and an output sink, SIGINT clears a
// process-wide keep-running flag, and shutdown appends a statistics block
// per component before exiting.
package app

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/behrlich/audiosequencer/backend"
	"github.com/behrlich/audiosequencer/internal/config"
	"github.com/behrlich/audiosequencer/internal/pipeline"
	"github.com/behrlich/audiosequencer/internal/rterr"
	"github.com/behrlich/audiosequencer/internal/rtlog"
	"github.com/behrlich/audiosequencer/internal/rtos"
	"github.com/behrlich/audiosequencer/internal/sequencer"
	"github.com/behrlich/audiosequencer/internal/service"
	"github.com/behrlich/audiosequencer/internal/statsexport"
)

// App owns the full set of runtime components for one run. RunID is a
// per-process correlation value, generated fresh on each New, that
// cmd/audiosequencer attaches to its startup log line; it is not written
// to statistics.txt.
type App struct {
	cfg    config.Config
	logger *rtlog.Logger
	RunID  uuid.UUID

	seq      *sequencer.Sequencer
	services []*service.Service

	keepRunning atomic.Bool

	// Geteuid is overridable so tests can exercise Run without actually
	// running as root.
	Geteuid func() int

	metrics     *statsexport.Registry
	gatherer    prometheus.Gatherer
	metricsMu   sync.Mutex
	metricsAddr string // resolved listen address, set once the server is up
}

// MetricsAddr returns the address the metrics server is actually listening
// on, once Run has started it. Empty until then, or if no MetricsAddr was
// configured.
func (a *App) MetricsAddr() string {
	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	return a.metricsAddr
}

// New constructs an App from cfg, wiring the sequencer, the four
// reference services, and the pipeline handshake. It does not start
// anything; call Run for that.
func New(cfg config.Config, logger *rtlog.Logger) (*App, error) {
	if logger == nil {
		logger = rtlog.Default()
	}
	a := &App{cfg: cfg, logger: logger, RunID: uuid.New(), Geteuid: os.Geteuid}
	a.keepRunning.Store(true)

	// Each App gets its own registry rather than prometheus.DefaultRegisterer
	// so constructing more than one App in the same process (as the test
	// suite does) never collides on duplicate metric registration.
	promReg := prometheus.NewRegistry()
	a.gatherer = promReg
	a.metrics = statsexport.NewRegistry(promReg)

	seq, err := sequencer.New(sequencer.Config{
		Period:   cfg.MasterPeriod,
		Priority: cfg.Sequencer.Priority,
		Affinity: cfg.Sequencer.Affinity,
		Variant:  sequencer.Variant(cfg.SequencerVariant),
		Logger:   logger,
	})
	if err != nil {
		return nil, rterr.Wrap("app.New", err)
	}
	a.seq = seq

	buf := pipeline.NewAudioBuffer(cfg.FrameBytes, 1)
	hs := pipeline.NewHandshake()
	mic := backend.NewMicrophone(cfg.SampleRate, 440.0)
	transform := backend.NewTransform(cfg.BucketCount)
	sink := buildSink(cfg.OutputSink, logger)

	capture := service.New(service.Config{
		Name:     "capture",
		Period:   cfg.Capture.Period,
		Priority: cfg.Capture.Priority,
		Affinity: cfg.Capture.Affinity,
		Logger:   logger,
		Run: func(ctx context.Context) error {
			if err := hs.AcquireDone(ctx); err != nil {
				logger.TickSafe("capture: Done handshake timed out")
				return rterr.NewService("capture.run", "capture", rterr.CodeTransient, "Done handshake timeout")
			}
			if _, err := mic.GetFrames(buf); err != nil {
				return rterr.Wrap("capture.GetFrames", err)
			}
			buf.Flip()
			hs.ReleaseReady()
			return nil
		},
	})

	var lastOutput []float64
	transformSvc := service.New(service.Config{
		Name:     "transform",
		Period:   cfg.Transform.Period,
		Priority: cfg.Transform.Priority,
		Affinity: cfg.Transform.Affinity,
		Logger:   logger,
		Run: func(ctx context.Context) error {
			if err := hs.AcquireReady(ctx); err != nil {
				logger.TickSafe("transform: Ready handshake timed out")
				return rterr.NewService("transform.run", "transform", rterr.CodeTransient, "Ready handshake timeout")
			}
			hs.OutputLock.Lock()
			lastOutput = transform.Perform(buf, lastOutput)
			hs.LastOutput = append(hs.LastOutput[:0], lastOutput...)
			hs.OutputLock.Unlock()
			hs.ReleaseDone()
			return nil
		},
	})

	visualizer := service.New(service.Config{
		Name:     "visualizer",
		Period:   cfg.Visualizer.Period,
		Priority: cfg.Visualizer.Priority,
		Affinity: cfg.Visualizer.Affinity,
		Logger:   logger,
		Run: func(ctx context.Context) error {
			hs.OutputLock.Lock()
			snapshot := append([]float64(nil), hs.LastOutput...)
			hs.OutputLock.Unlock()
			return sink.Render(snapshot)
		},
	})

	logFlusher := service.New(service.Config{
		Name:     "log-flusher",
		Period:   cfg.LogFlusher.Period,
		Priority: cfg.LogFlusher.Priority,
		Affinity: cfg.LogFlusher.Affinity,
		Logger:   logger,
		Run: func(ctx context.Context) error {
			logger.Drain()
			a.metrics.Observe("sequencer.tick", seq.TickStats())
			for _, svc := range a.services {
				a.metrics.Observe(svc.Name()+".release", svc.ReleaseStats())
				a.metrics.Observe(svc.Name()+".execution", svc.ExecutionStats())
			}
			return nil
		},
	})

	for _, svc := range []*service.Service{capture, transformSvc, visualizer, logFlusher} {
		if err := seq.AddService(svc); err != nil {
			return nil, rterr.Wrap("app.New", err)
		}
		a.services = append(a.services, svc)
	}

	return a, nil
}

func buildSink(kind config.OutputSink, logger *rtlog.Logger) backend.Sink {
	switch kind {
	case config.SinkLED:
		return backend.NewLEDSink(logger)
	case config.SinkMuted:
		return backend.MutedSink{}
	default:
		return backend.NewConsoleSink(os.Stdout)
	}
}

// Run verifies the real-time environment, installs the SIGINT handler, and
// runs the sequencer loop until the signal clears the keep-running flag.
// It blocks until shutdown completes and statistics.txt has been written.
func (a *App) Run(ctx context.Context) error {
	checker := rtos.NewChecker(a.logger)
	checker.CmdlinePath = a.cfg.CmdlinePath
	if a.Geteuid != nil {
		checker.Geteuid = a.Geteuid
	}
	if err := checker.Run(); err != nil {
		return rterr.Wrap("app.Run", err)
	}

	if a.cfg.MetricsAddr != "" {
		stopMetrics, err := a.startMetricsServer()
		if err != nil {
			return rterr.Wrap("app.Run", err)
		}
		defer stopMetrics()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go func() {
		<-sigCh
		a.keepRunning.Store(false)
	}()
	defer signal.Stop(sigCh)

	// A Setup error (spec §7: fatal, abort with non-zero exit) can surface
	// from a service's worker thread at any point after it starts, not just
	// at construction, so the run context is cancelled the moment one
	// arrives rather than only checked at startup.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var setupMu sync.Mutex
	var setupErr error
	for _, svc := range a.services {
		svc := svc
		go func() {
			if err := <-svc.SetupErr(); err != nil {
				setupMu.Lock()
				if setupErr == nil {
					setupErr = err
				}
				setupMu.Unlock()
				cancel()
			}
		}()
	}

	runErr := a.seq.Start(runCtx, &a.keepRunning)
	a.seq.Stop()

	setupMu.Lock()
	if setupErr != nil {
		runErr = setupErr
	}
	setupMu.Unlock()

	// statistics.txt is appended, not truncated, across runs (spec §6; the
	// original's printStatistics() opens with std::ios::app) so a long
	// deployment's history of runs accumulates in one file.
	f, err := os.OpenFile(a.cfg.StatisticsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		a.logger.Error("failed to open statistics file", "path", a.cfg.StatisticsPath, "error", err)
		return runErr
	}
	defer f.Close()
	if err := WriteStatistics(f, a.seq, a.services); err != nil {
		a.logger.Error("failed to write statistics", "error", err)
	}

	return runErr
}

// startMetricsServer binds a.cfg.MetricsAddr and serves the Prometheus
// exposition format for this App's registry. It returns a stop function
// that shuts the server down; the resolved listen address is recorded in
// a.metricsAddr so tests bound to port 0 can discover it.
func (a *App) startMetricsServer() (func(), error) {
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	a.metricsMu.Lock()
	a.metricsAddr = ln.Addr().String()
	a.metricsMu.Unlock()

	mux := http.NewServeMux()
	mux.Handle("/metrics", statsexport.Handler(a.gatherer))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

// Stop clears the keep-running flag, as if SIGINT had fired. Exposed for
// tests that need a deterministic shutdown trigger.
func (a *App) Stop() { a.keepRunning.Store(false) }
