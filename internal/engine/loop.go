package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"propdesk/internal/metrics"
)

// runEvery schedules step as a cancellable periodic task. A failed iteration
// is logged and counted, never propagated: one bad pass must not halt the
// loop for everyone else.
func runEvery(ctx context.Context, logger zerolog.Logger, name string, interval time.Duration, step func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := step(ctx); err != nil {
				metrics.RecordLoopError(name)
				logger.Error().Err(err).Str("loop", name).Msg("Loop iteration failed")
			}
		}
	}
}
