package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/api/handler"
	"github.com/99minutos/attendance-system/internal/core/domain"
)

func limitedCall(rl *RateLimiter, userID string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkins", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set(handler.CtxUserID, userID)
	}
	err := rl.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	return rec, err
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(2, zerolog.Nop())
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		if _, err := limitedCall(rl, "alice"); err != nil {
			t.Fatalf("request %d should pass: %v", i, err)
		}
	}
	rec, err := limitedCall(rl, "alice")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected Retry-After 30, got %q", rec.Header().Get("Retry-After"))
	}

	if _, err := limitedCall(rl, "bob"); err != nil {
		t.Fatalf("other users keep their own budget: %v", err)
	}
	if _, err := limitedCall(rl, ""); err != nil {
		t.Fatalf("anonymous clients are keyed by ip: %v", err)
	}
	if rl.Len() != 3 {
		t.Fatalf("expected 3 tracked clients, got %d", rl.Len())
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, zerolog.Nop())
	defer rl.Stop()

	for i := 0; i < 50; i++ {
		if _, err := limitedCall(rl, "alice"); err != nil {
			t.Fatalf("disabled limiter rejected request %d: %v", i, err)
		}
	}
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10, zerolog.Nop())
	defer rl.Stop()

	_, _ = limitedCall(rl, "alice")
	rl.cleanup(time.Now())
	if rl.Len() != 1 {
		t.Fatalf("fresh entry must survive cleanup")
	}
	rl.cleanup(time.Now().Add(3 * defaultCleanupInterval))
	if rl.Len() != 0 {
		t.Fatalf("idle entry should be dropped, %d left", rl.Len())
	}
}
