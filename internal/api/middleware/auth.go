package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/99minutos/attendance-system/internal/api/handler"
	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

// Auth validates the JWT, rejects logged-out sessions and injects the claims
// into context. revoker may be nil, in which case logout is not enforced.
func Auth(jwtSecret string, revoker ports.SessionRevoker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims := jwt.MapClaims{}
			tkn, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			sub, _ := claims.GetSubject()
			role, _ := claims["role"].(string)
			jti, _ := claims["jti"].(string)
			if sub == "" || role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if revoker != nil && jti != "" {
				revoked, err := revoker.IsRevoked(c.Request().Context(), jti)
				if err != nil {
					// Fail closed: a logged-out token must not slip through an outage.
					return fmt.Errorf("check session revocation: %w: %v", domain.ErrStoreUnavailable, err)
				}
				if revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "session revoked")
				}
			}

			c.Set(handler.CtxUserID, sub)
			c.Set(handler.CtxRole, role)
			c.Set(handler.CtxJTI, jti)
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				c.Set(handler.CtxExpiresAt, exp.Time)
			}

			return next(c)
		}
	}
}
