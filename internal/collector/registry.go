package collector

import (
	"path/filepath"
	"strings"
	"sync"
)

// Registry maps file formats to loaders
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
	order   []string
}

// NewRegistry creates an empty loader registry
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[string]Loader),
	}
}

// DefaultRegistry knows CSV and Parquet bar files
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CSVLoader{})
	r.Register(ParquetLoader{})
	return r
}

// Register adds a loader, replacing any loader for the same format
func (r *Registry) Register(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := strings.ToLower(l.Format())
	if _, ok := r.loaders[f]; !ok {
		r.order = append(r.order, f)
	}
	r.loaders[f] = l
}

// Get returns the loader for format
func (r *Registry) Get(format string) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[strings.ToLower(strings.TrimPrefix(format, "."))]
	return l, ok
}

// ForPath returns the loader matching the extension of path
func (r *Registry) ForPath(path string) (Loader, bool) {
	return r.Get(filepath.Ext(path))
}

// Formats lists registered formats in registration order
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
