// internal/api/handler/api/backtest.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/quantguard/internal/api/job"
	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/storage/archive"
	"github.com/newthinker/quantguard/internal/strategy"
	"go.uber.org/zap"
)

const (
	backtestTimeout = 5 * time.Minute
	jobTypeBacktest = "backtest"
)

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Symbol   string          `json:"symbol"`
	Strategy string          `json:"strategy"`
	Interval string          `json:"interval,omitempty"`
	Start    string          `json:"start,omitempty"`
	End      string          `json:"end,omitempty"`
	Params   strategy.Params `json:"params,omitempty"`
	Archive  bool            `json:"archive,omitempty"`
}

// JobRecorder receives the active job count.
type JobRecorder interface {
	SetJobsActive(jobType string, count int)
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobStore   *job.Store
	backtester *backtest.Backtester
	strategies *strategy.Registry
	reports    *archive.ReportArchiver
	recorder   JobRecorder
	logger     *zap.Logger
}

// NewBacktestHandler creates a new backtest handler. reports may be nil.
func NewBacktestHandler(
	jobStore *job.Store,
	backtester *backtest.Backtester,
	strategies *strategy.Registry,
	reports *archive.ReportArchiver,
	logger *zap.Logger,
) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobStore:   jobStore,
		backtester: backtester,
		strategies: strategies,
		reports:    reports,
		logger:     logger,
	}
}

// SetRecorder attaches a job metrics recorder.
func (h *BacktestHandler) SetRecorder(r JobRecorder) {
	h.recorder = r
}

// Strategies lists the registered strategy names.
func (h *BacktestHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.strategies.Names())
}

// Create starts a new backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, err)
		return
	}

	btReq, err := h.toRequest(req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	// Build once up front so unknown strategies and bad params fail fast
	if _, err := h.strategies.Build(btReq.Strategy, btReq.Params); err != nil {
		response.FromError(w, err)
		return
	}

	j := h.jobStore.Create(jobTypeBacktest)
	h.recordActive()

	// Copy values before starting goroutine to avoid race
	jobID := j.ID
	status := j.Status

	go h.runBacktest(jobID, btReq, req.Archive)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

func (h *BacktestHandler) toRequest(req BacktestRequest) (backtest.Request, error) {
	if strings.TrimSpace(req.Symbol) == "" || strings.TrimSpace(req.Strategy) == "" {
		return backtest.Request{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("symbol and strategy are required"))
	}
	out := backtest.Request{
		Strategy: req.Strategy,
		Params:   req.Params,
		Symbol:   req.Symbol,
		Interval: req.Interval,
	}
	var err error
	if req.Start != "" {
		if out.Start, err = time.Parse(time.DateOnly, req.Start); err != nil {
			return backtest.Request{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("start: %w", err))
		}
	}
	if req.End != "" {
		if out.End, err = time.Parse(time.DateOnly, req.End); err != nil {
			return backtest.Request{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("end: %w", err))
		}
	}
	return out, nil
}

// runBacktest executes the backtest and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, req backtest.Request, save bool) {
	defer h.recordActive()

	// Mark as running
	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), backtestTimeout)
	defer cancel()
	result, err := h.backtester.Run(ctx, req)
	if err == nil {
		result.ID = jobID
		if save && h.reports != nil {
			if _, serr := h.reports.Save(ctx, result); serr != nil {
				h.logger.Error("archiving backtest report failed",
					zap.String("job_id", jobID),
					zap.Error(serr),
				)
			}
		}
	}

	if err != nil {
		h.logger.Warn("backtest failed",
			zap.String("job_id", jobID),
			zap.String("strategy", req.Strategy),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = asCoreError(err)
		})
		return
	}

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = result
	})
}

// Get returns the status of a backtest job. Jobs that have left the store
// are looked up in the report archive.
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	j, err := h.jobStore.Get(jobID)
	if err != nil {
		if h.reports != nil {
			if result, aerr := h.reports.Find(r.Context(), jobID); aerr == nil {
				response.JSON(w, http.StatusOK, map[string]any{
					"job_id":   jobID,
					"status":   job.StatusComplete,
					"progress": 100,
					"result":   result,
					"archived": true,
				})
				return
			}
		}
		response.FromError(w, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"status":   j.Status,
		"progress": j.Progress,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
	}

	response.JSON(w, http.StatusOK, resp)
}

// List returns the jobs still held in the store.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobStore.List()
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		if j.Type != jobTypeBacktest {
			continue
		}
		out = append(out, map[string]any{
			"job_id":     j.ID,
			"status":     j.Status,
			"created_at": j.CreatedAt,
		})
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *BacktestHandler) recordActive() {
	if h.recorder != nil {
		h.recorder.SetJobsActive(jobTypeBacktest, h.jobStore.Active(jobTypeBacktest))
	}
}

func asCoreError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return &core.Error{Code: "INTERNAL_ERROR", Message: err.Error()}
}
