package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eblade/dbmq/pkg/broker"
	"github.com/eblade/dbmq/pkg/node"
)

// errBadRequest marks malformed requests the broker never sees.
var errBadRequest = errors.New("bad request")

// StatusCode maps a broker error to an HTTP status code.
func StatusCode(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, node.ErrInvalidToken), errors.Is(err, node.ErrInvalidSecret):
		return http.StatusUnauthorized
	case errors.Is(err, broker.ErrMissingKey), errors.Is(err, broker.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, broker.ErrKeyConflict), errors.Is(err, broker.ErrInactiveVersion):
		return http.StatusConflict
	case errors.Is(err, broker.ErrBadSubscriptionType),
		errors.Is(err, broker.ErrBadSubscriptionURL),
		errors.Is(err, broker.ErrBadChannelName),
		errors.Is(err, broker.ErrBadVersion),
		errors.Is(err, broker.ErrEmptyKey),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, broker.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, broker.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) err(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	h.respondJSON(w, code, errorResponse{Error: err.Error()})
}

func (h *handler) respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response", "error", err)
	}
}
