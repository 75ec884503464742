package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"embykeeper/internal/ocr"
	"embykeeper/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service and pool errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case ocr.IsTimeout(err):
		return http.StatusGatewayTimeout
	case ocr.IsAssetError(err):
		return http.StatusBadGateway
	case ocr.IsInferenceError(err):
		return http.StatusUnprocessableEntity
	case ocr.IsWorkerStopped(err), errors.Is(err, ocr.ErrTooManyConfigs):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
