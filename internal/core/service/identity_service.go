package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/api/metrics"
	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

// IdentityService implements ports.IdentityStore on top of a TokenRepository.
// Token ids are normalised here so every repository sees the canonical form.
type IdentityService struct {
	repo  ports.TokenRepository
	clock func() time.Time
	log   zerolog.Logger
}

func NewIdentityService(repo ports.TokenRepository, log zerolog.Logger) *IdentityService {
	return &IdentityService{repo: repo, clock: time.Now, log: log}
}

// RegisterToken binds tokenID to ownerID. It is never an upsert: an id that is
// already registered, to anyone, fails with domain.ErrAlreadyRegistered.
func (s *IdentityService) RegisterToken(
	ctx context.Context,
	tokenID, ownerID string,
	kind domain.TokenKind,
	meta domain.TokenMetadata,
) (*domain.Token, error) {
	id, err := domain.NormalizeTokenID(tokenID)
	if err != nil {
		return nil, fmt.Errorf("register token: %w", err)
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("register token: %w", domain.ErrOwnerRequired)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("register token: %w: %q", domain.ErrInvalidTokenKind, kind)
	}

	var linked string
	if meta.LinkedPhysicalTokenID != "" {
		if linked, err = domain.NormalizeTokenID(meta.LinkedPhysicalTokenID); err != nil {
			return nil, fmt.Errorf("register token: linked physical: %w", err)
		}
	}

	name := strings.TrimSpace(meta.DisplayName)
	if name == "" {
		name = domain.DefaultTokenName(kind)
	}

	token := &domain.Token{
		TokenID:               id,
		Kind:                  kind,
		OwnerID:               ownerID,
		LinkedPhysicalTokenID: linked,
		DisplayName:           name,
		Active:                true,
		CreatedAt:             toMillis(s.clock()),
	}

	if err := s.repo.Insert(ctx, token); err != nil {
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			metrics.TokenConflictsTotal.WithLabelValues(string(kind)).Inc()
			s.log.Info().Str("token_id", id).Str("owner_id", ownerID).Msg("token already registered")
		}
		return nil, fmt.Errorf("register token: %w", err)
	}

	metrics.TokensRegisteredTotal.WithLabelValues(string(kind)).Inc()
	s.log.Info().
		Str("token_id", id).
		Str("owner_id", ownerID).
		Str("kind", string(kind)).
		Msg("token registered")

	return token, nil
}

// GetToken returns domain.ErrTokenNotFound when no token has the given id.
func (s *IdentityService) GetToken(ctx context.Context, tokenID string) (*domain.Token, error) {
	id, err := domain.NormalizeTokenID(tokenID)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return s.repo.FindByID(ctx, id)
}

func (s *IdentityService) ListTokensForOwner(ctx context.Context, ownerID string) ([]*domain.Token, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("list tokens: %w", domain.ErrOwnerRequired)
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// TouchLastUsed records token use. Last-used is telemetry, so failures are
// logged and counted but never surfaced to the caller.
func (s *IdentityService) TouchLastUsed(ctx context.Context, tokenID string, at time.Time) {
	id, err := domain.NormalizeTokenID(tokenID)
	if err == nil {
		err = s.repo.UpdateLastUsed(ctx, id, toMillis(at))
	}
	if err != nil {
		metrics.TouchFailuresTotal.Inc()
		s.log.Warn().Err(err).Str("token_id", tokenID).Msg("failed to update token last used")
	}
}

// UnlinkToken removes tokenID when ownerID owns it. A virtual companion of a
// physical card is a token in its own right and stays registered.
func (s *IdentityService) UnlinkToken(ctx context.Context, tokenID, ownerID string) error {
	id, err := domain.NormalizeTokenID(tokenID)
	if err != nil {
		return fmt.Errorf("unlink token: %w", err)
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		if errors.Is(err, domain.ErrNotOwner) {
			s.log.Warn().Str("token_id", id).Str("owner_id", ownerID).Msg("unlink refused: not owner")
		}
		return fmt.Errorf("unlink token: %w", err)
	}

	s.log.Info().Str("token_id", id).Str("owner_id", ownerID).Msg("token unlinked")
	return nil
}

func (s *IdentityService) SetTokenActive(ctx context.Context, tokenID, ownerID string, active bool) (*domain.Token, error) {
	id, err := domain.NormalizeTokenID(tokenID)
	if err != nil {
		return nil, fmt.Errorf("set token active: %w", err)
	}
	if err := s.repo.SetActive(ctx, id, ownerID, active); err != nil {
		return nil, fmt.Errorf("set token active: %w", err)
	}
	return s.repo.FindByID(ctx, id)
}

// toMillis drops sub-millisecond precision so values round-trip through the
// store's integer millisecond timestamps unchanged.
func toMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
