package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// maintenanceScheduler runs the orchestrator's periodic upkeep — currently
// expired-session eviction — on a cron schedule instead of a bare ticker,
// so an operator can express "2am daily" as readily as "every 15m".
type maintenanceScheduler struct {
	cron *cron.Cron
}

// cleanupFunc runs one maintenance pass and reports how many records it
// removed, for logging.
type cleanupFunc func() (int, error)

// newMaintenanceScheduler builds a scheduler that runs cleanup on spec, a
// standard 5-field cron expression or a "@every <duration>" descriptor. An
// empty spec falls back to "@every <interval>".
func newMaintenanceScheduler(spec string, interval time.Duration, cleanup cleanupFunc) (*maintenanceScheduler, error) {
	if spec == "" {
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		spec = fmt.Sprintf("@every %s", interval)
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := cleanup()
		if err != nil {
			slog.Error("session maintenance cleanup", "error", err)
			return
		}
		if n > 0 {
			slog.Info("session maintenance cleanup", "expired_removed", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session maintenance %q: %w", spec, err)
	}
	return &maintenanceScheduler{cron: c}, nil
}

func (m *maintenanceScheduler) Start() { m.cron.Start() }

// Stop blocks until the in-flight run (if any) completes.
func (m *maintenanceScheduler) Stop() { <-m.cron.Stop().Done() }
