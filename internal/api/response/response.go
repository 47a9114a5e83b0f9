// internal/api/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/quantguard/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format. Data carries any
// partial result that was produced before the error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
	Data  any         `json:"data,omitempty"`
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err, nil)
}

func writeError(w http.ResponseWriter, status int, err error, data any) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}

	resp := ErrorResponse{Error: detail, Data: data}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// FromError writes err with the status its code maps to.
func FromError(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

// FromErrorWithData writes err along with the partial result data.
func FromErrorWithData(w http.ResponseWriter, err error, data any) {
	writeError(w, StatusFor(err), err, data)
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(err error) int {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		return http.StatusInternalServerError
	}
	switch coreErr.Code {
	case core.ErrInvalidInput.Code, core.ErrInvalidStopPrice.Code,
		core.ErrStrategyNotFound.Code, core.ErrConfigInvalid.Code, core.ErrConfigMissing.Code:
		return http.StatusBadRequest
	case core.ErrNotFound.Code, core.ErrNoData.Code:
		return http.StatusNotFound
	case core.ErrBreakerOpen.Code, core.ErrOrderNotActive.Code,
		core.ErrDuplicateTrigger.Code, core.ErrLimitExceeded.Code:
		return http.StatusConflict
	case core.ErrInsufficientHistory.Code:
		return http.StatusUnprocessableEntity
	case core.ErrPersistenceFailure.Code:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
