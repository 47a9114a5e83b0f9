// Package router filters risk alerts and fans them out to notifiers.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/notifier"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	// CooldownDuration suppresses repeated stop alerts with the same key
	CooldownDuration time.Duration    `mapstructure:"cooldown_duration"`
	EnabledKinds     []core.AlertKind `mapstructure:"enabled_kinds"`
	QueueSize        int              `mapstructure:"queue_size"`
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		CooldownDuration: time.Minute,
		EnabledKinds:     []core.AlertKind{core.AlertStopTriggered, core.AlertBreakerOpened, core.AlertBreakerReset},
		QueueSize:        256,
	}
}

// Router routes alerts to notifiers with filtering
type Router struct {
	cfg       Config
	registry  *notifier.Registry
	clock     core.Clock
	logger    *zap.Logger
	queue     chan core.Alert
	cooldowns map[string]time.Time // alert key -> last delivery
	mu        sync.RWMutex
}

// New creates a new alert router
func New(cfg Config, registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		clock:     core.SystemClock{},
		logger:    logger,
		queue:     make(chan core.Alert, cfg.QueueSize),
		cooldowns: make(map[string]time.Time),
	}
}

// SetClock replaces the wall clock used for cooldowns
func (r *Router) SetClock(c core.Clock) {
	r.clock = c
}

// Route filters an alert and delivers it to all notifiers. Delivery failures
// are logged, not returned.
func (r *Router) Route(ctx context.Context, alert core.Alert) bool {
	if !r.admit(alert) {
		r.logger.Debug("alert filtered out",
			zap.String("kind", string(alert.Kind)),
			zap.String("key", alert.Key()),
		)
		return false
	}

	if r.registry == nil {
		return true
	}
	errs := r.registry.NotifyAll(ctx, alert)
	for name, err := range errs {
		r.logger.Error("notifier failed",
			zap.String("notifier", name),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err),
		)
	}

	r.logger.Info("alert routed",
		zap.String("kind", string(alert.Kind)),
		zap.String("symbol", alert.Symbol),
		zap.Int("notifiers", r.registry.Len()),
		zap.Int("errors", len(errs)),
	)
	return true
}

// Enqueue hands an alert to the Run loop without blocking. It reports false
// when the queue is full and the alert was dropped.
func (r *Router) Enqueue(alert core.Alert) bool {
	select {
	case r.queue <- alert:
		return true
	default:
		r.logger.Warn("alert queue full, dropping alert",
			zap.String("kind", string(alert.Kind)),
			zap.String("key", alert.Key()),
		)
		return false
	}
}

// Run delivers queued alerts and prunes cooldowns until ctx is done
func (r *Router) Run(ctx context.Context) {
	interval := r.cfg.CooldownDuration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case a := <-r.queue:
			r.Route(ctx, a)
		case <-ticker.C:
			if removed := r.CleanupExpiredCooldowns(); removed > 0 {
				r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
			}
		}
	}
}

// drain delivers what is already queued on shutdown
func (r *Router) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case a := <-r.queue:
			r.Route(ctx, a)
		default:
			return
		}
	}
}

// admit applies the kind whitelist and the cooldown, recording the delivery
// time when the alert passes. Breaker transitions are never suppressed.
func (r *Router) admit(alert core.Alert) bool {
	if len(r.cfg.EnabledKinds) > 0 {
		allowed := false
		for _, k := range r.cfg.EnabledKinds {
			if alert.Kind == k {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if alert.Kind != core.AlertStopTriggered || r.cfg.CooldownDuration <= 0 {
		return true
	}

	now := r.clock.Now()
	key := alert.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.cooldowns[key]; ok && now.Sub(last) < r.cfg.CooldownDuration {
		return false
	}
	r.cooldowns[key] = now
	return true
}

// ClearCooldown removes the cooldown for one alert key
func (r *Router) ClearCooldown(key string) {
	r.mu.Lock()
	delete(r.cooldowns, key)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the cooldown duration.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	expiry := r.cfg.CooldownDuration * 2
	removed := 0

	for key, last := range r.cooldowns {
		if now.Sub(last) > expiry {
			delete(r.cooldowns, key)
			removed++
		}
	}

	return removed
}

// Stats returns router statistics
func (r *Router) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]any{
		"cooldowns_active": len(r.cooldowns),
		"cooldown_seconds": r.cfg.CooldownDuration.Seconds(),
		"enabled_kinds":    r.cfg.EnabledKinds,
		"queued":           len(r.queue),
	}
}
