package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/config"
)

// RunHealthProbe ticks once a minute and, when cfg.Cron.Expression is
// due, issues a bounded EnumerateLocalAccounts call as a lightweight
// backend liveness check: it only logs, it never
// mutates Gateway State, so it is safe to run from its own goroutine
// rather than routing through the Event Loop. Off by default
// (cfg.Cron.Enabled is false unless configured).
func RunHealthProbe(ctx context.Context, cfg config.CronConfig, client backend.Client, log *slog.Logger) {
	if !cfg.Enabled || cfg.Expression == "" {
		return
	}

	gron := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gron.IsDue(cfg.Expression, now)
			if err != nil {
				log.Warn("health probe: bad cron expression", "expression", cfg.Expression, "error", err)
				return
			}
			if !due {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout())
			_, err = client.EnumerateLocalAccounts(probeCtx)
			cancel()
			if err != nil {
				log.Warn("health probe: backend unreachable", "error", err)
			} else {
				log.Debug("health probe: backend reachable")
			}
		}
	}
}
