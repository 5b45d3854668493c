package app

import (
	"fmt"
	"io"

	"github.com/behrlich/audiosequencer/internal/sequencer"
	"github.com/behrlich/audiosequencer/internal/service"
)

// WriteStatistics appends one sequencer block and one block per service to
// w, byte-for-byte matching spec §6's persisted-state format.
func WriteStatistics(w io.Writer, seq *sequencer.Sequencer, services []*service.Service) error {
	tick := seq.TickStats()
	if _, err := fmt.Fprintf(w,
		"Sequencer Execution Statistics\n"+
			"Execution Time Error Average: %g\n"+
			"Execution Time Error Max: %g\n"+
			"Execution Time Error Min: %g\n",
		tick.Mean, tick.Max, tick.Min); err != nil {
		return err
	}

	for _, svc := range services {
		exec := svc.ExecutionStats()
		rel := svc.ReleaseStats()
		onTime := svc.ExecutionsMetDeadline()
		if _, err := fmt.Fprintf(w,
			"Service %s Execution Statistics\n"+
				"Execution Time Average: %g\n"+
				"Execution Time Max: %g\n"+
				"Execution Time Min: %g\n"+
				"Release Time Average Error: %g\n"+
				"Executions that met deadline: %d/%d\n",
			svc.Name(), exec.Mean, exec.Max, exec.Min, rel.Mean, onTime, exec.Len); err != nil {
			return err
		}
	}
	return nil
}
