package ports

import (
	"context"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// TokenResolver picks the token a check-in should use.
type TokenResolver interface {
	// ResolveActiveToken returns the explicit token when it is given and owned,
	// otherwise the most recently used selectable token.
	ResolveActiveToken(ctx context.Context, ownerID, explicitTokenID string) (*domain.Token, error)
	ListSelectable(ctx context.Context, ownerID string) ([]*domain.Token, error)
}
