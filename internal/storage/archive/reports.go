package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/core"
	"go.uber.org/zap"
)

const reportRoot = "backtests"

// ReportArchiver writes backtest results as JSON documents keyed
// backtests/<strategy>/<symbol>/<id>.json
type ReportArchiver struct {
	storage Storage
	logger  *zap.Logger
}

// NewReportArchiver creates an archiver over storage
func NewReportArchiver(storage Storage, logger *zap.Logger) *ReportArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportArchiver{storage: storage, logger: logger}
}

// Save stores result and returns its key. A result without an ID gets one.
func (a *ReportArchiver) Save(ctx context.Context, result *backtest.Result) (string, error) {
	if result == nil {
		return "", core.WrapError(core.ErrInvalidInput, fmt.Errorf("nil result"))
	}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result %s: %w", result.ID, err)
	}

	key := reportKey(result.Strategy, result.Symbol, result.ID)
	if err := a.storage.Put(ctx, key, data); err != nil {
		return "", core.WrapError(core.ErrPersistenceFailure, err)
	}

	a.logger.Info("backtest report archived",
		zap.String("key", key),
		zap.String("strategy", result.Strategy),
		zap.String("symbol", result.Symbol),
		zap.Int("bytes", len(data)),
	)
	return key, nil
}

// Load reads the result stored under key
func (a *ReportArchiver) Load(ctx context.Context, key string) (*backtest.Result, error) {
	data, err := a.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var result backtest.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &result, nil
}

// Find locates a result by ID
func (a *ReportArchiver) Find(ctx context.Context, id string) (*backtest.Result, error) {
	keys, err := a.storage.List(ctx, reportRoot+"/")
	if err != nil {
		return nil, err
	}
	suffix := "/" + id + ".json"
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			return a.Load(ctx, k)
		}
	}
	return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("backtest %s", id))
}

// Keys lists archived reports, optionally for one strategy
func (a *ReportArchiver) Keys(ctx context.Context, strategy string) ([]string, error) {
	prefix := reportRoot + "/"
	if strategy != "" {
		prefix += sanitize(strategy) + "/"
	}
	return a.storage.List(ctx, prefix)
}

func reportKey(strategy, symbol, id string) string {
	return path.Join(reportRoot, sanitize(strategy), sanitize(symbol), id+".json")
}

func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
