package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

type stubAuthRepo struct {
	users map[string]*domain.User
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubAuthRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if _, exists := r.users[user.Email]; exists {
		return nil, domain.ErrUserExists
	}
	copy := cloneUser(user)
	if copy.ID == "" {
		copy.ID = "uid_" + user.Email
	}
	r.users[copy.Email] = cloneUser(copy)
	return cloneUser(copy), nil
}

func (r *stubAuthRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := r.users[email]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubAuthRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

type stubRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func newStubRevoker() *stubRevoker {
	return &stubRevoker{revoked: make(map[string]time.Duration)}
}

func (r *stubRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.revoked[jti] = ttl
	return nil
}

func (r *stubRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[jti]
	return ok, r.err
}

func newTestAuth() (*AuthService, *stubRevoker) {
	revoker := newStubRevoker()
	return NewAuthService(newStubAuthRepo(), revoker, "secret", time.Hour), revoker
}

func TestAuthService_Register_Success(t *testing.T) {
	svc, _ := newTestAuth()

	user, err := svc.Register(context.Background(), "Alice Doe", "Alice@Example.com ", "pass123", "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user == nil {
		t.Fatalf("expected user, got nil")
	}
	if user.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if user.Role != domain.RoleStudent {
		t.Fatalf("expected default role student, got %s", user.Role)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc, _ := newTestAuth()
	ctx := context.Background()

	cases := []struct {
		name, displayName, email, password, role string
	}{
		{"no name", "", "a@example.com", "pass123", ""},
		{"bad email", "A", "not-an-email", "pass123", ""},
		{"short password", "A", "a@example.com", "123", ""},
		{"bad role", "A", "a@example.com", "pass123", "wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.displayName, tc.email, tc.password, tc.role); err != domain.ErrInvalidCredentials {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	svc, _ := newTestAuth()

	_, _ = svc.Register(context.Background(), "Bob", "bob@example.com", "pass123", "")
	if _, err := svc.Register(context.Background(), "Bobby", "BOB@example.com", "pass456", ""); err != domain.ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	svc, _ := newTestAuth()

	if _, err := svc.Register(context.Background(), "Carol", "carol@example.com", "s3cret", domain.RoleAdmin); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, user, err := svc.Login(context.Background(), "carol@example.com", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token, got empty")
	}
	if user == nil || user.DisplayName != "Carol" {
		t.Fatalf("unexpected user: %+v", user)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims["role"] != domain.RoleAdmin {
		t.Fatalf("expected role %s, got %v", domain.RoleAdmin, claims["role"])
	}
	if claims["sub"] != user.ID {
		t.Fatalf("expected sub %s, got %v", user.ID, claims["sub"])
	}
	if jti, _ := claims["jti"].(string); jti == "" {
		t.Fatalf("expected a jti claim")
	}
}

func TestAuthService_Login_InvalidPassword(t *testing.T) {
	svc, _ := newTestAuth()

	_, _ = svc.Register(context.Background(), "Dave", "dave@example.com", "goodpass", "")
	if _, _, err := svc.Login(context.Background(), "dave@example.com", "badpass"); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	svc, _ := newTestAuth()

	if _, _, err := svc.Login(context.Background(), "ghost@example.com", "pass"); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	svc, revoker := newTestAuth()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = fixedClock(now)
	ctx := context.Background()

	if err := svc.Logout(ctx, "jti-1", now.Add(30*time.Minute)); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if ttl := revoker.revoked["jti-1"]; ttl != 30*time.Minute {
		t.Fatalf("expected revocation ttl 30m, got %v", ttl)
	}

	if err := svc.Logout(ctx, "jti-expired", now.Add(-time.Minute)); err != nil {
		t.Fatalf("expired session logout should be a no-op: %v", err)
	}
	if _, ok := revoker.revoked["jti-expired"]; ok {
		t.Fatalf("expired session should not be stored")
	}

	revoker.err = errors.New("redis down")
	if err := svc.Logout(ctx, "jti-2", now.Add(time.Minute)); err == nil {
		t.Fatalf("expected revoker error to surface")
	}
}

func TestAuthService_Me(t *testing.T) {
	svc, _ := newTestAuth()
	created, _ := svc.Register(context.Background(), "Erin", "erin@example.com", "pass123", "")

	user, err := svc.Me(context.Background(), created.ID)
	if err != nil || user.Email != "erin@example.com" {
		t.Fatalf("unexpected Me result: %+v, %v", user, err)
	}
	if _, err := svc.Me(context.Background(), "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
