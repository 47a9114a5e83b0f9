package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/quantguard/internal/core"
	"go.uber.org/zap"
)

// Registry maps strategy names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	defaults  map[string]Params
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		defaults:  make(map[string]Params),
		logger:    l,
	}
}

// Register adds a factory under name, replacing any previous one
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Remove unregisters name along with its defaults
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, name)
	delete(r.defaults, name)
}

// SetDefaults stores params that Build applies under the caller's params
func (r *Registry) SetDefaults(name string, params Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", name))
	}
	r.defaults[name] = params
	return nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Build constructs the named strategy. Keys in params override the
// registered defaults.
func (r *Registry) Build(name string, params Params) (Generator, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	defaults := r.defaults[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", name))
	}

	merged := make(Params, len(defaults)+len(params))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return f(merged)
}

// Names returns registered strategy names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenerateAll runs several generators over the same series. A failing
// generator is logged and skipped; the others still contribute.
func (r *Registry) GenerateAll(ctx context.Context, series core.Series, generators []Generator) (map[string][]core.Signal, error) {
	out := make(map[string][]core.Signal, len(generators))

	for _, g := range generators {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		signals, err := g.Generate(series)
		if err != nil {
			r.logger.Warn("signal generation failed",
				zap.String("strategy", g.Name()),
				zap.String("symbol", series.Symbol),
				zap.Error(err),
			)
			continue
		}
		out[g.Name()] = signals
	}

	return out, nil
}
