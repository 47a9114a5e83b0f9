package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"go.uber.org/zap"
)

// FileSource serves bars from a single file or from a directory of
// <symbol>_<interval>.<ext> (or <symbol>.<ext>) files. Slashes in symbols
// become dashes in file names.
type FileSource struct {
	path     string
	dir      bool
	registry *Registry
	logger   *zap.Logger
}

// NewFileSource opens path, which may be a file or a directory
func NewFileSource(path string, registry *Registry, logger *zap.Logger) (*FileSource, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("bar source %s: %w", path, err))
	}
	if !info.IsDir() {
		if _, ok := registry.ForPath(path); !ok {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("unsupported bar file %s (formats: %s)",
				path, strings.Join(registry.Formats(), ", ")))
		}
	}
	return &FileSource{path: path, dir: info.IsDir(), registry: registry, logger: logger}, nil
}

// GetBars loads the file for symbol and keeps the bars inside [start, end]
func (s *FileSource) GetBars(ctx context.Context, symbol, interval string, start, end time.Time) (core.Series, error) {
	if err := ctx.Err(); err != nil {
		return core.Series{}, err
	}

	file, err := s.resolve(symbol, interval)
	if err != nil {
		return core.Series{}, err
	}
	loader, _ := s.registry.ForPath(file)
	bars, err := loader.Load(file)
	if err != nil {
		return core.Series{}, err
	}

	kept := bars[:0]
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		kept = append(kept, b)
	}

	s.logger.Debug("bars loaded",
		zap.String("file", file),
		zap.String("symbol", symbol),
		zap.Int("read", len(bars)),
		zap.Int("kept", len(kept)),
	)

	if len(kept) == 0 {
		return core.Series{}, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for %s in %s", symbol, file))
	}
	return core.Series{Symbol: symbol, Interval: interval, Bars: kept}, nil
}

func (s *FileSource) resolve(symbol, interval string) (string, error) {
	if !s.dir {
		return s.path, nil
	}
	base := strings.ReplaceAll(symbol, "/", "-")
	var names []string
	if interval != "" {
		names = append(names, base+"_"+interval)
	}
	names = append(names, base)

	for _, name := range names {
		for _, format := range s.registry.Formats() {
			candidate := filepath.Join(s.path, name+"."+format)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			} else if !errors.Is(err, fs.ErrNotExist) {
				return "", err
			}
		}
	}
	return "", core.WrapError(core.ErrNoData, fmt.Errorf("no bar file for %s (%s) in %s", symbol, interval, s.path))
}
