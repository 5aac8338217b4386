package ports

import (
	"context"
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// TokenRepository is the durable token store keyed by token id with a
// secondary index on owner id.
type TokenRepository interface {
	// Insert writes t only when no token with the same id exists. It is a single
	// conditional write and returns domain.ErrAlreadyRegistered otherwise.
	Insert(ctx context.Context, t *domain.Token) error
	FindByID(ctx context.Context, tokenID string) (*domain.Token, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Token, error)
	// UpdateLastUsed never moves last_used_at backwards.
	UpdateLastUsed(ctx context.Context, tokenID string, at time.Time) error
	SetActive(ctx context.Context, tokenID, ownerID string, active bool) error
	// Delete removes the token when ownerID owns it; domain.ErrNotOwner otherwise.
	Delete(ctx context.Context, tokenID, ownerID string) error
}
