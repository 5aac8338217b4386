package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Context keys set by middleware.Auth.
const (
	CtxUserID    = "user_id"
	CtxRole      = "role"
	CtxJTI       = "jti"
	CtxExpiresAt = "expires_at"
)

type authClaims struct {
	UserID    string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

// ctxClaims extracts the auth claims injected by the Auth middleware and
// fails fast before any service call. A missing user id means the middleware
// did not run or the JWT had no subject; the owner id is always the user id.
func ctxClaims(c echo.Context) (authClaims, error) {
	var cl authClaims
	cl.UserID, _ = c.Get(CtxUserID).(string)
	cl.Role, _ = c.Get(CtxRole).(string)
	if cl.UserID == "" || cl.Role == "" {
		return authClaims{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	cl.JTI, _ = c.Get(CtxJTI).(string)
	cl.ExpiresAt, _ = c.Get(CtxExpiresAt).(time.Time)
	return cl, nil
}
