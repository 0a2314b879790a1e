package cmdlog

import (
	"time"

	"socialmetrics/internal/logging"
	"socialmetrics/internal/metrics"
)

// Run executes a CLI command body, counting and logging its outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	fields := map[string]any{"cmd": cmd, "took_ms": time.Since(start).Milliseconds()}
	if err != nil {
		metrics.IncCommandError(cmd)
		fields["error"] = err
		logging.Error("command_error", fields)
	} else {
		logging.Info("command_ok", fields)
	}
	return err
}
