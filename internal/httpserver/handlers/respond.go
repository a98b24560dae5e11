package handlers

import (
	"errors"
	"net/http"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
	"github.com/vladcalin/emerald/internal/logger"
)

// writeError maps registry errors to HTTP statuses: invalid input is the
// caller's fault, anything storage related is retryable.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflictRetryExhausted):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Error(err))
	}
	respond.Error(w, status, err.Error())
}
