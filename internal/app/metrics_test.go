package app

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/audiosequencer/internal/config"
)

// TestMetricsEndpointServesObservedSnapshots exercises the wiring the
// review flagged as dead: with a MetricsAddr configured, the log-flusher's
// periodic Observe calls must actually be visible on a scraped /metrics
// endpoint, not just recorded into an unreachable registry.
func TestMetricsEndpointServesObservedSnapshots(t *testing.T) {
	cfg := config.Default()
	cfg.MasterPeriod = 5 * time.Millisecond
	cfg.Capture.Period = 5 * time.Millisecond
	cfg.Transform.Period = 5 * time.Millisecond
	cfg.Visualizer.Period = 5 * time.Millisecond
	cfg.LogFlusher.Period = 5 * time.Millisecond
	cfg.OutputSink = config.SinkMuted
	cfg.StatisticsPath = filepath.Join(t.TempDir(), "statistics.txt")
	cfg.MetricsAddr = "127.0.0.1:0"

	a, err := New(cfg, nil)
	require.NoError(t, err)
	a.Geteuid = func() int { return 0 }

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	defer func() {
		a.Stop()
		<-done
	}()

	require.Eventually(t, func() bool { return a.MetricsAddr() != "" }, time.Second, time.Millisecond)

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + a.MetricsAddr() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(b)
		return strings.Contains(body, `track="sequencer.tick"`)
	}, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, body, "audiosequencer_timing_sample_count")
}
