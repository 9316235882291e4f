package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"hradmin/internal/domain/apperr"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInvalidOperation, apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// FailError writes err using the taxonomy. Errors outside it are logged and
// reported as internal errors with fallbackCode; lock timeouts become 503.
func FailError(w http.ResponseWriter, err error, fallbackCode, requestID string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		var details any
		if len(appErr.Fields) > 0 {
			details = map[string]any{"fields": appErr.Fields}
		}
		FailWithDetails(w, StatusFor(appErr.Kind), string(appErr.Kind), appErr.Message, details, requestID)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("operation timed out", "code", fallbackCode, "err", err, "request_id", requestID)
		Fail(w, http.StatusServiceUnavailable, "busy", "resource is busy, retry shortly", requestID)
		return
	}
	slog.Error("request failed", "code", fallbackCode, "err", err, "request_id", requestID)
	Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", requestID)
}
