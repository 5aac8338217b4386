package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// retryAfterSeconds is advertised on 503s caused by a dependency outage or a
// full scan queue.
const retryAfterSeconds = "5"

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		if code == http.StatusServiceUnavailable {
			c.Response().Header().Set("Retry-After", retryAfterSeconds)
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrInvalidTokenID),
		errors.Is(err, domain.ErrInvalidCheckIn),
		errors.Is(err, domain.ErrInvalidTokenKind),
		errors.Is(err, domain.ErrOwnerRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, domain.ErrTokenNotOwned):
		return http.StatusForbidden, "token not owned by user"
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden, "token not owned by caller"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "access forbidden"
	case errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusNotFound, "token not found"
	case errors.Is(err, domain.ErrCheckInNotFound):
		return http.StatusNotFound, "check-in not found"
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return http.StatusConflict, "token already registered"
	case errors.Is(err, domain.ErrTokenInactive):
		return http.StatusConflict, "token is inactive"
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, domain.ErrNoTokensRegistered):
		return http.StatusUnprocessableEntity, "no tokens registered"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "too many check-ins"
	case errors.Is(err, domain.ErrScanQueueFull):
		return http.StatusServiceUnavailable, "scan queue full"
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Warn().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("dependency unavailable")
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, domain.ErrIssuanceExhausted):
		log.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("token issuance exhausted")
		return http.StatusInternalServerError, "token issuance exhausted"
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
