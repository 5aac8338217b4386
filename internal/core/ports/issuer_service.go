package ports

import (
	"context"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// RegisterPhysicalInput carries a reader-supplied card id to bind to an owner.
type RegisterPhysicalInput struct {
	TokenID              string
	OwnerID              string
	DisplayName          string
	WithVirtualCompanion bool
}

// PhysicalRegistration is the outcome of RegisterPhysicalToken. Virtual is nil
// when no companion was requested.
type PhysicalRegistration struct {
	Physical *domain.Token
	Virtual  *domain.Token
}

// TokenIssuer generates virtual token ids and orchestrates physical registration.
type TokenIssuer interface {
	IssueVirtualToken(ctx context.Context, ownerID, displayName string) (*domain.Token, error)
	RegisterPhysicalToken(ctx context.Context, in RegisterPhysicalInput) (*PhysicalRegistration, error)
}
