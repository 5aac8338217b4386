package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/api/handler"
)

// NewRouter registers Prometheus collectors, so it is built once per package.
func TestRouter_Wiring(t *testing.T) {
	e := NewRouter(Deps{
		JWTSecret: "secret",
		Log:       zerolog.Nop(),
		Readiness: handler.NewHealthChecks(),
		Subjects:  []string{"Math"},
		Rooms:     []string{"Room A"},
	})

	cases := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/v1/tokens", http.StatusUnauthorized},
		{http.MethodPost, "/v1/checkins", http.StatusUnauthorized},
		{http.MethodPost, "/v1/scans", http.StatusUnauthorized},
		{http.MethodGet, "/v1/me", http.StatusUnauthorized},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.code {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.code, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint: expected 200, got %d", rec.Code)
	}
}
