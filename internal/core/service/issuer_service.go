package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/99minutos/attendance-system/internal/api/metrics"
	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

const defaultIssuanceAttempts = 5

// virtualIDAlphabet is Crockford base32: uppercase alphanumerics without the
// easily misread I, L, O and U.
const virtualIDAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// IssuerService generates virtual token ids and orchestrates physical card
// registration. Collision handling lives here; the store only refuses.
type IssuerService struct {
	store       ports.IdentityStore
	maxAttempts int
	generate    func(ownerID string, now time.Time) (string, error)
	clock       func() time.Time
	log         zerolog.Logger
}

// NewIssuerService returns an issuer that retries colliding ids up to
// maxAttempts times (defaultIssuanceAttempts when <= 0).
func NewIssuerService(store ports.IdentityStore, maxAttempts int, log zerolog.Logger) *IssuerService {
	if maxAttempts <= 0 {
		maxAttempts = defaultIssuanceAttempts
	}
	return &IssuerService{
		store:       store,
		maxAttempts: maxAttempts,
		generate:    generateVirtualTokenID,
		clock:       time.Now,
		log:         log,
	}
}

// IssueVirtualToken registers a freshly generated virtual token for ownerID.
func (s *IssuerService) IssueVirtualToken(ctx context.Context, ownerID, displayName string) (*domain.Token, error) {
	return s.issue(ctx, ownerID, domain.TokenMetadata{DisplayName: displayName})
}

// RegisterPhysicalToken binds a reader-supplied card id to the owner and
// optionally issues a virtual companion linked to it. When the companion
// fails the physical registration stands and is returned with the error.
func (s *IssuerService) RegisterPhysicalToken(ctx context.Context, in ports.RegisterPhysicalInput) (*ports.PhysicalRegistration, error) {
	physical, err := s.store.RegisterToken(ctx, in.TokenID, in.OwnerID, domain.TokenPhysical, domain.TokenMetadata{
		DisplayName: in.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	result := &ports.PhysicalRegistration{Physical: physical}
	if !in.WithVirtualCompanion {
		return result, nil
	}

	virtual, err := s.issue(ctx, in.OwnerID, domain.TokenMetadata{LinkedPhysicalTokenID: physical.TokenID})
	if err != nil {
		s.log.Error().Err(err).
			Str("owner_id", in.OwnerID).
			Str("token_id", physical.TokenID).
			Msg("virtual companion issuance failed")
		return result, fmt.Errorf("issue companion for %s: %w", physical.TokenID, err)
	}
	result.Virtual = virtual
	return result, nil
}

func (s *IssuerService) issue(ctx context.Context, ownerID string, meta domain.TokenMetadata) (*domain.Token, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		id, err := s.generate(ownerID, s.clock())
		if err != nil {
			return nil, fmt.Errorf("issue virtual token: %w", err)
		}

		token, err := s.store.RegisterToken(ctx, id, ownerID, domain.TokenVirtual, meta)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, domain.ErrAlreadyRegistered) {
			return nil, err
		}

		s.log.Warn().
			Str("owner_id", ownerID).
			Str("token_id", id).
			Int("attempt", attempt).
			Msg("virtual token id collision, regenerating")
	}

	metrics.IssuanceExhaustedTotal.Inc()
	s.log.Error().Str("owner_id", ownerID).Int("attempts", s.maxAttempts).Msg("virtual token issuance exhausted")
	return nil, fmt.Errorf("issue virtual token after %d attempts: %w", s.maxAttempts, domain.ErrIssuanceExhausted)
}

// generateVirtualTokenID returns an id in the format V-XXXX-XXXX-XXXX. The 60
// bits behind the twelve symbols come from hashing 128 random bits together
// with the owner id and the wall clock.
func generateVirtualTokenID(ownerID string, now time.Time) (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixNano()))

	h := blake3.New()
	_, _ = h.Write(nonce[:])
	_, _ = h.Write([]byte(ownerID))
	_, _ = h.Write(ts[:])
	v := binary.BigEndian.Uint64(h.Sum(nil)[:8])

	var b strings.Builder
	b.Grow(16)
	b.WriteByte('V')
	for i := 0; i < 12; i++ {
		if i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(virtualIDAlphabet[v>>59])
		v <<= 5
	}
	return b.String(), nil
}
