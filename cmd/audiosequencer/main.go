package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/behrlich/audiosequencer/internal/app"
	"github.com/behrlich/audiosequencer/internal/config"
	"github.com/behrlich/audiosequencer/internal/rtlog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var verbose bool
	var masterPeriodMs int

	cmd := &cobra.Command{
		Use:   "audiosequencer <sleep|isr> <led|console|muted>",
		Short: "Rate-monotonic cyclic-executive audio analysis pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			variant := config.SequencerVariant(args[0])
			if variant != config.VariantSleep && variant != config.VariantISR {
				return fmt.Errorf("sequencer variant must be %q or %q, got %q", config.VariantSleep, config.VariantISR, args[0])
			}
			sink := config.OutputSink(args[1])
			switch sink {
			case config.SinkLED, config.SinkConsole, config.SinkMuted:
			default:
				return fmt.Errorf("output sink must be one of led/console/muted, got %q", args[1])
			}

			cfg.SequencerVariant = variant
			cfg.OutputSink = sink
			if masterPeriodMs > 0 {
				cfg.MasterPeriod = time.Duration(masterPeriodMs) * time.Millisecond
			}

			logCfg := rtlog.DefaultConfig()
			if verbose {
				logCfg.Level = zapcore.DebugLevel
			}
			logger := rtlog.New(logCfg)
			rtlog.SetDefault(logger)
			defer logger.Sync()

			a, err := app.New(cfg, logger)
			if err != nil {
				logger.Error("failed to construct application", "error", err)
				return err
			}

			logger.Info("starting audiosequencer", "run_id", a.RunID.String(), "variant", variant, "sink", sink)
			return a.Run(context.Background())
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	cmd.Flags().IntVar(&masterPeriodMs, "master-period-ms", 0, "override the sequencer's master period in milliseconds")
	cmd.Flags().StringVar(&cfg.StatisticsPath, "statistics-path", cfg.StatisticsPath, "path statistics.txt is written to on shutdown")
	cmd.Flags().StringVar(&cfg.CmdlinePath, "cmdline-path", cfg.CmdlinePath, "path to the kernel command line used for the boot-flag check")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (disabled if empty)")
	cmd.Flags().IntVar(&cfg.BucketCount, "buckets", cfg.BucketCount, "number of spectral buckets the transform produces")

	return cmd
}
