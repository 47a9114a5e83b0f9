package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/feed"
	"github.com/newthinker/quantguard/internal/risk"
	"go.uber.org/zap"
)

// TickRequest is one observed price.
type TickRequest struct {
	Symbol string     `json:"symbol"`
	Price  float64    `json:"price"`
	Time   *time.Time `json:"time,omitempty"`
}

// StopsHandler manages stop-loss orders and accepts price ticks.
type StopsHandler struct {
	monitor *risk.Monitor
	quotes  *feed.Quotes
	clock   core.Clock
	logger  *zap.Logger
}

// NewStopsHandler creates a new stops handler.
func NewStopsHandler(monitor *risk.Monitor, quotes *feed.Quotes, clock core.Clock, logger *zap.Logger) *StopsHandler {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StopsHandler{monitor: monitor, quotes: quotes, clock: clock, logger: logger}
}

// List returns stored orders, filtered by symbol, status and limit.
func (h *StopsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := risk.OrderFilter{
		Symbol: q.Get("symbol"),
		Status: risk.OrderStatus(strings.ToUpper(q.Get("status"))),
	}
	switch filter.Status {
	case "", risk.StatusActive, risk.StatusTriggered, risk.StatusCancelled:
	default:
		response.FromError(w, core.WrapError(core.ErrInvalidInput, fmt.Errorf("unknown status %q", filter.Status)))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.FromError(w, core.WrapError(core.ErrInvalidInput, fmt.Errorf("limit must be a non-negative integer")))
			return
		}
		filter.Limit = n
	}

	orders, err := h.monitor.List(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if orders == nil {
		orders = []risk.StopOrder{}
	}
	response.JSON(w, http.StatusOK, orders)
}

// Get returns one order in any state.
func (h *StopsHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.monitor.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, o)
}

// Place creates an ACTIVE order.
func (h *StopsHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req risk.PlaceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, err)
		return
	}

	o, err := h.monitor.Place(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, o)
}

// Cancel cancels an ACTIVE order.
func (h *StopsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.monitor.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, o)
}

// Tick records a price and checks the symbol's orders against it.
func (h *StopsHandler) Tick(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, err)
		return
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	at := h.clock.Now()
	if req.Time != nil {
		at = *req.Time
	}

	if err := h.quotes.Set(req.Symbol, req.Price, at); err != nil {
		response.FromError(w, err)
		return
	}
	events, err := h.monitor.OnTick(r.Context(), req.Symbol, req.Price, at)
	if events == nil {
		events = []risk.TriggerEvent{}
	}
	if err != nil {
		h.logger.Error("tick evaluation failed",
			zap.String("symbol", req.Symbol),
			zap.Int("triggered", len(events)),
			zap.Error(err),
		)
		// orders that did trigger are durable; report them with the error
		response.FromErrorWithData(w, err, map[string]any{"triggered": events})
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"symbol":    req.Symbol,
		"price":     req.Price,
		"triggered": events,
	})
}
