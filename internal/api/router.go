package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/attendance-system/docs"
	"github.com/99minutos/attendance-system/internal/api/handler"
	"github.com/99minutos/attendance-system/internal/api/middleware"
	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

// Deps carries everything the HTTP layer needs. The caller owns lifecycles;
// the router only wires routes.
type Deps struct {
	JWTSecret string
	Log       zerolog.Logger

	Auth     ports.AuthService
	Revoker  ports.SessionRevoker
	Identity ports.IdentityStore
	Issuer   ports.TokenIssuer
	Resolver ports.TokenResolver
	Ledger   ports.CheckInLedger
	Feed     ports.CheckInFeed
	Scans    handler.ScanQueue

	CheckInLimiter *middleware.RateLimiter
	Readiness      *handler.HealthDependenciesHandler

	Subjects []string
	Rooms    []string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddleware("attendance"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth)
	tokenHandler := handler.NewTokenHandler(d.Identity, d.Issuer, d.Resolver, d.Log)
	checkInHandler := handler.NewCheckInHandler(d.Ledger, d.Resolver, d.Feed, d.Log)
	scanHandler := handler.NewScanHandler(d.Scans)
	catalogHandler := handler.NewCatalogHandler(d.Subjects, d.Rooms)
	authMiddleware := middleware.Auth(d.JWTSecret, d.Revoker)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/logout", authHandler.Logout, authMiddleware)

	// --- Attendance API ---
	v1 := e.Group("/v1", authMiddleware)

	v1.GET("/me", authHandler.Me)

	v1.GET("/tokens", tokenHandler.List)
	v1.GET("/tokens/active", tokenHandler.Active)
	v1.POST("/tokens/virtual", tokenHandler.IssueVirtual)
	v1.POST("/tokens/physical", tokenHandler.RegisterPhysical)
	v1.GET("/tokens/:token_id", tokenHandler.Get)
	v1.PATCH("/tokens/:token_id", tokenHandler.SetActive)
	v1.DELETE("/tokens/:token_id", tokenHandler.Unlink)

	var checkInLimit []echo.MiddlewareFunc
	if d.CheckInLimiter != nil {
		checkInLimit = append(checkInLimit, d.CheckInLimiter.Middleware())
	}
	v1.POST("/checkins", checkInHandler.Submit, checkInLimit...)
	v1.GET("/checkins", checkInHandler.History)
	v1.GET("/checkins/summary", checkInHandler.Summary)
	v1.GET("/checkins/stream", checkInHandler.Stream)

	v1.GET("/catalog", catalogHandler.Get)

	// Reader bridge: only device and admin accounts may push scans.
	v1.POST("/scans", scanHandler.Ingest, middleware.RBAC(domain.RoleDevice, domain.RoleAdmin))

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	e.GET("/health", healthHandler.Liveness) // liveness  – is the process alive?
	if d.Readiness != nil {
		e.GET("/health/ready", d.Readiness.Readiness) // readiness – are dependencies up?
	}

	// --- Ops ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger emits one zerolog line per request in place of Echo's text logger.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
