package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/order-reconciler/internal/cleanmaster"
	"github.com/ignite/order-reconciler/internal/pipeline"
	"github.com/ignite/order-reconciler/internal/pkg/httputil"
	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/service/banned"
)

// =============================================================================
// ERROR SANITIZER
// Known domain errors map to 4xx responses with their message. Everything
// else is logged in full and answered with a generic 5xx message so database
// details and file paths never reach API consumers.
// =============================================================================

func respondError(w http.ResponseWriter, err error) {
	var cfgErr *cleanmaster.ConfigError
	switch {
	case errors.Is(err, cleanmaster.ErrLockBusy):
		httputil.Conflict(w, "build_running", err.Error())
	case errors.As(err, &cfgErr):
		httputil.Unprocessable(w, "config_error", cfgErr.Error())
	case errors.Is(err, banned.ErrInvalidEntry):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, banned.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, pipeline.ErrUnknownPlatform), errors.Is(err, pipeline.ErrBackfillDisabled):
		httputil.ErrorCode(w, http.StatusNotImplemented, "not_configured", err.Error())
	default:
		logger.Error("api: request failed", "err", err)
		httputil.Error(w, http.StatusInternalServerError, safeErrorMessage(err))
	}
}

// safeErrorMessage maps common internal error patterns to public-safe messages.
func safeErrorMessage(internalErr error) string {
	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "redis") ||
		strings.Contains(errStr, "dynamodb") ||
		strings.Contains(errStr, "database"):
		return "A storage error occurred"

	case strings.Contains(errStr, "api error (status"):
		return "Upstream platform request failed"

	case strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "access denied"):
		return "Access denied"

	default:
		return "An internal error occurred"
	}
}
