package ports

import (
	"context"
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// IdentityStore maps tokens to their owners.
type IdentityStore interface {
	RegisterToken(ctx context.Context, tokenID, ownerID string, kind domain.TokenKind, meta domain.TokenMetadata) (*domain.Token, error)
	GetToken(ctx context.Context, tokenID string) (*domain.Token, error)
	ListTokensForOwner(ctx context.Context, ownerID string) ([]*domain.Token, error)
	// TouchLastUsed is best effort: failures are logged, never returned.
	TouchLastUsed(ctx context.Context, tokenID string, at time.Time)
	UnlinkToken(ctx context.Context, tokenID, ownerID string) error
	SetTokenActive(ctx context.Context, tokenID, ownerID string, active bool) (*domain.Token, error)
}
