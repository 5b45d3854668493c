package config

import "testing"

func TestDefaultServicePeriodsAreMultiplesOfMasterPeriod(t *testing.T) {
	cfg := Default()
	for name, tuning := range map[string]ServiceTuning{
		"capture":    cfg.Capture,
		"transform":  cfg.Transform,
		"visualizer": cfg.Visualizer,
		"logFlusher": cfg.LogFlusher,
	} {
		if tuning.Period%cfg.MasterPeriod != 0 {
			t.Errorf("%s period %s is not a multiple of master period %s", name, tuning.Period, cfg.MasterPeriod)
		}
	}
}

func TestDefaultSequencerRunsOnOwnCore(t *testing.T) {
	cfg := Default()
	if cfg.Sequencer.Affinity == cfg.Capture.Affinity {
		t.Error("expected sequencer to be pinned to a different core than its services")
	}
}
