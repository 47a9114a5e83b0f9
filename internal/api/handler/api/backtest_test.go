// internal/api/handler/api/backtest_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/quantguard/internal/api/job"
	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/storage/archive"
	"github.com/newthinker/quantguard/internal/strategy/builtins"
)

// mockSource serves a fixed rising then falling series
type mockSource struct{}

func (mockSource) GetBars(ctx context.Context, symbol, interval string, start, end time.Time) (core.Series, error) {
	prices := []float64{10, 11, 12, 13, 14, 15, 14, 13, 12, 11, 10, 9, 10, 11, 12, 13, 14, 15}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, len(prices))
	for i, p := range prices {
		bars[i] = core.Bar{Time: base.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p, Volume: 100}
	}
	return core.Series{Symbol: symbol, Interval: interval, Bars: bars}, nil
}

type countingRecorder struct{ last int }

func (c *countingRecorder) SetJobsActive(jobType string, count int) { c.last = count }

func newBacktestHandler(t *testing.T, reports *archive.ReportArchiver) (*BacktestHandler, *job.Store) {
	t.Helper()
	jobStore := job.NewStore(100, time.Hour)
	strategies := builtins.NewRegistry(nil)
	backtester := backtest.New(mockSource{}, strategies, nil)
	return NewBacktestHandler(jobStore, backtester, strategies, reports, nil), jobStore
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func waitDone(t *testing.T, store *job.Store, id string) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.Get(id)
		if err != nil {
			t.Fatalf("job lookup: %v", err)
		}
		if j.Status.Done() {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return nil
}

func TestBacktestHandler_Create(t *testing.T) {
	handler, store := newBacktestHandler(t, nil)
	rec := &countingRecorder{}
	handler.SetRecorder(rec)

	req := postJSON("/api/v1/backtests", `{
		"symbol": "AAPL",
		"strategy": "ma_crossover",
		"start": "2024-01-01",
		"end": "2024-01-18",
		"params": {"fast_period": 2, "slow_period": 4}
	}`)
	w := httptest.NewRecorder()

	handler.Create(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	data := resp.Data.(map[string]any)
	if data["job_id"] == nil {
		t.Fatal("expected job_id in response")
	}
	if data["status"] != "pending" {
		t.Errorf("expected pending status, got %s", data["status"])
	}

	j := waitDone(t, store, data["job_id"].(string))
	if j.Status != job.StatusComplete {
		t.Fatalf("expected complete, got %s (%v)", j.Status, j.Error)
	}
	result := j.Result.(*backtest.Result)
	if result.ID != j.ID {
		t.Errorf("result should carry the job id, got %s", result.ID)
	}
	if len(result.Signals) == 0 {
		t.Error("expected crossovers in the mock series")
	}
	if rec.last != 0 {
		t.Errorf("expected no active jobs after completion, got %d", rec.last)
	}
}

func TestBacktestHandler_Create_MissingFields(t *testing.T) {
	handler, _ := newBacktestHandler(t, nil)

	w := httptest.NewRecorder()
	handler.Create(w, postJSON("/api/v1/backtests", `{"symbol": "AAPL"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestBacktestHandler_Create_InvalidDates(t *testing.T) {
	handler, _ := newBacktestHandler(t, nil)

	w := httptest.NewRecorder()
	handler.Create(w, postJSON("/api/v1/backtests", `{
		"symbol": "AAPL",
		"strategy": "ma_crossover",
		"start": "invalid-date"
	}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestBacktestHandler_Create_BadParams(t *testing.T) {
	handler, store := newBacktestHandler(t, nil)

	w := httptest.NewRecorder()
	handler.Create(w, postJSON("/api/v1/backtests", `{
		"symbol": "AAPL",
		"strategy": "ma_crossover",
		"params": {"fast_period": 20, "slow_period": 5}
	}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if len(store.List()) != 0 {
		t.Error("rejected request must not create a job")
	}
}

func TestBacktestHandler_Create_StrategyNotFound(t *testing.T) {
	handler, _ := newBacktestHandler(t, nil)

	w := httptest.NewRecorder()
	handler.Create(w, postJSON("/api/v1/backtests", `{"symbol": "AAPL", "strategy": "nonexistent"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestBacktestHandler_Get(t *testing.T) {
	handler, store := newBacktestHandler(t, nil)

	j := store.Create("backtest")

	req := httptest.NewRequest("GET", "/api/v1/backtests/"+j.ID, nil)
	req.SetPathValue("id", j.ID)
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	data := resp.Data.(map[string]any)
	if data["job_id"] != j.ID {
		t.Errorf("expected job_id %s, got %s", j.ID, data["job_id"])
	}
}

func TestBacktestHandler_Get_NotFound(t *testing.T) {
	handler, _ := newBacktestHandler(t, nil)

	req := httptest.NewRequest("GET", "/api/v1/backtests/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBacktestHandler_ArchivedResultOutlivesJob(t *testing.T) {
	fs, err := archive.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reports := archive.NewReportArchiver(fs, nil)
	handler, store := newBacktestHandler(t, reports)

	w := httptest.NewRecorder()
	handler.Create(w, postJSON("/api/v1/backtests", `{
		"symbol": "AAPL",
		"strategy": "ma_crossover",
		"params": {"fast_period": 2, "slow_period": 4},
		"archive": true
	}`))
	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	jobID := resp.Data.(map[string]any)["job_id"].(string)
	waitDone(t, store, jobID)

	// a fresh handler has no record of the job
	fresh, _ := newBacktestHandler(t, reports)
	req := httptest.NewRequest("GET", "/api/v1/backtests/"+jobID, nil)
	req.SetPathValue("id", jobID)
	w = httptest.NewRecorder()
	fresh.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected archived result, got %d: %s", w.Code, w.Body.String())
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.(map[string]any)["archived"] != true {
		t.Error("expected archived flag")
	}
}
