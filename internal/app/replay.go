package app

import (
	"context"

	"github.com/newthinker/quantguard/internal/collector"
	"github.com/newthinker/quantguard/internal/risk"
	"go.uber.org/zap"
)

// ReplayReport summarizes a tick replay
type ReplayReport struct {
	Ticks    int                 `json:"ticks"`
	Skipped  int                 `json:"skipped"`
	Failed   int                 `json:"failed"`
	Triggers []risk.TriggerEvent `json:"triggers"`
	Breaker  risk.Status         `json:"breaker"`
}

// Replay feeds recorded ticks through the quote cache and the stop-loss
// monitor in order. Ticks rejected by the cache are skipped; a tick whose
// evaluation fails is counted and the replay continues.
func (a *App) Replay(ctx context.Context, ticks []collector.Tick) (ReplayReport, error) {
	report := ReplayReport{Triggers: []risk.TriggerEvent{}}

	for _, t := range ticks {
		if err := ctx.Err(); err != nil {
			report.Breaker = a.breaker.Status()
			return report, err
		}
		report.Ticks++

		if err := a.quotes.Set(t.Symbol, t.Price, t.Time); err != nil {
			report.Skipped++
			a.logger.Debug("tick skipped", zap.String("symbol", t.Symbol), zap.Error(err))
			continue
		}

		events, err := a.monitor.OnTick(ctx, t.Symbol, t.Price, t.Time)
		report.Triggers = append(report.Triggers, events...)
		if err != nil {
			report.Failed++
			a.logger.Error("tick evaluation failed",
				zap.String("symbol", t.Symbol),
				zap.Float64("price", t.Price),
				zap.Time("at", t.Time),
				zap.Error(err),
			)
		}
	}

	a.mu.Lock()
	a.triggers += int64(len(report.Triggers))
	a.mu.Unlock()

	report.Breaker = a.breaker.Status()
	a.logger.Info("replay complete",
		zap.Int("ticks", report.Ticks),
		zap.Int("triggers", len(report.Triggers)),
		zap.Int("failed", report.Failed),
		zap.Bool("breaker_open", report.Breaker.Open),
	)
	return report, nil
}
