package ports

import (
	"context"
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// AuthService is the auth provider adapter. The attendance core only consumes
// the User it returns; ownerId is always User.ID.
type AuthService interface {
	Register(ctx context.Context, displayName, email, password, role string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	Logout(ctx context.Context, jti string, expiresAt time.Time) error
	Me(ctx context.Context, userID string) (*domain.User, error)
}
