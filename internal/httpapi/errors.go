// Package httpapi exposes the checkout engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/selfcheckout/internal/engine"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeJSONError aborts the request with the given status and payload.
func writeJSONError(c *gin.Context, status int, code, details string) {
	c.AbortWithStatusJSON(status, jsonError{Error: code, Details: details})
}

// statusFor maps an engine error code to an HTTP status.
func statusFor(err error) int {
	switch engine.CodeOf(err) {
	case engine.ErrCodeNotFound:
		return http.StatusNotFound
	case engine.ErrCodeInvalidStateTransition, engine.ErrCodeFrameConflict:
		return http.StatusConflict
	case engine.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case engine.ErrCodeStorageFailure:
		return http.StatusServiceUnavailable
	case engine.ErrCodeClassifierUnavailable:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Engine errors keep their code; anything else is
// an opaque INTERNAL error.
func writeError(c *gin.Context, err error) {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		slog.Error("unhandled request error",
			"path", c.FullPath(),
			"request_id", requestID(c),
			"error", err,
		)
		writeJSONError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", c.FullPath(),
			"request_id", requestID(c),
			"code", ee.Code,
			"error", err,
		)
	}
	writeJSONError(c, status, string(ee.Code), ee.Message)
}
