package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

// ResolverService implements ports.TokenResolver. It holds no state of its own.
type ResolverService struct {
	identity ports.IdentityStore
}

func NewResolverService(identity ports.IdentityStore) *ResolverService {
	return &ResolverService{identity: identity}
}

// ResolveActiveToken picks the token for a check-in: the explicit one when it
// belongs to ownerID, otherwise the first of ListSelectable.
func (s *ResolverService) ResolveActiveToken(ctx context.Context, ownerID, explicitTokenID string) (*domain.Token, error) {
	if explicitTokenID != "" {
		token, err := s.identity.GetToken(ctx, explicitTokenID)
		if errors.Is(err, domain.ErrTokenNotFound) || errors.Is(err, domain.ErrInvalidTokenID) {
			return nil, fmt.Errorf("resolve token: %w", domain.ErrTokenNotOwned)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if token.OwnerID != ownerID {
			return nil, fmt.Errorf("resolve token: %w", domain.ErrTokenNotOwned)
		}
		if !token.Active {
			return nil, fmt.Errorf("resolve token: %w", domain.ErrTokenInactive)
		}
		return token, nil
	}

	selectable, err := s.ListSelectable(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(selectable) == 0 {
		return nil, fmt.Errorf("resolve token: %w", domain.ErrNoTokensRegistered)
	}
	return selectable[0], nil
}

// ListSelectable returns the owner's active tokens, most recent activity
// first. Activity is lastUsedAt, or createdAt for a token never used, so a
// card registered after another card's last tap ranks above it.
func (s *ResolverService) ListSelectable(ctx context.Context, ownerID string) ([]*domain.Token, error) {
	tokens, err := s.identity.ListTokensForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list selectable: %w", err)
	}

	selectable := make([]*domain.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Active {
			selectable = append(selectable, t)
		}
	}
	sort.SliceStable(selectable, func(i, j int) bool {
		return selectsBefore(selectable[i], selectable[j])
	})
	return selectable, nil
}

func selectsBefore(a, b *domain.Token) bool {
	aAt, bAt := a.LastActivity(), b.LastActivity()
	switch {
	case !aAt.Equal(bAt):
		return aAt.After(bAt)
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.After(b.CreatedAt)
	default:
		return a.TokenID < b.TokenID
	}
}
