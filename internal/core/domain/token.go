package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenKind distinguishes NFC cards from software-emulated ones.
type TokenKind string

const (
	TokenPhysical TokenKind = "physical"
	TokenVirtual  TokenKind = "virtual"
)

// MaxTokenIDLength bounds every token identifier on the wire and in storage.
const MaxTokenIDLength = 32

var (
	ErrAlreadyRegistered  = errors.New("token already registered")
	ErrTokenNotFound      = errors.New("token not found")
	ErrNotOwner           = errors.New("token not owned by caller")
	ErrNoTokensRegistered = errors.New("no tokens registered")
	ErrIssuanceExhausted  = errors.New("token issuance exhausted")
	ErrInvalidTokenID     = errors.New("invalid token id")
	ErrTokenInactive      = errors.New("token is inactive")
	ErrInvalidTokenKind   = errors.New("invalid token kind")
	ErrOwnerRequired      = errors.New("owner id required")
)

// Valid reports whether k is a known token kind.
func (k TokenKind) Valid() bool {
	return k == TokenPhysical || k == TokenVirtual
}

// CheckInMethod is the method implied by presenting a token of this kind to a reader.
func (k TokenKind) CheckInMethod() CheckInMethod {
	if k == TokenVirtual {
		return MethodVirtualNFC
	}
	return MethodPhysicalNFC
}

// Token is an identification credential bound to exactly one owner for its lifetime.
type Token struct {
	TokenID               string     `json:"token_id"`
	Kind                  TokenKind  `json:"kind"`
	OwnerID               string     `json:"owner_id"`
	LinkedPhysicalTokenID string     `json:"linked_physical_token_id,omitempty"`
	DisplayName           string     `json:"display_name"`
	Active                bool       `json:"active"`
	CreatedAt             time.Time  `json:"created_at"`
	LastUsedAt            *time.Time `json:"last_used_at,omitempty"`
}

// LastActivity is LastUsedAt when the token has been used, CreatedAt otherwise.
func (t *Token) LastActivity() time.Time {
	if t.LastUsedAt != nil {
		return *t.LastUsedAt
	}
	return t.CreatedAt
}

// TokenMetadata carries the optional attributes supplied at registration.
type TokenMetadata struct {
	DisplayName           string
	LinkedPhysicalTokenID string
}

// NormalizeTokenID upper-cases id, trims whitespace and turns reader-style colon
// separators into hyphens. The result is uppercase alphanumeric groups joined by
// single hyphens, at most MaxTokenIDLength characters.
func NormalizeTokenID(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, ":", "-")

	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTokenID)
	}
	if len(id) > MaxTokenIDLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidTokenID, MaxTokenIDLength)
	}
	if id[0] == '-' || id[len(id)-1] == '-' || strings.Contains(id, "--") {
		return "", fmt.Errorf("%w: misplaced separator", ErrInvalidTokenID)
	}
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidTokenID, r)
		}
	}
	return id, nil
}

// DefaultTokenName is the label used when registration does not supply one.
func DefaultTokenName(kind TokenKind) string {
	if kind == TokenVirtual {
		return "Phone Virtual NFC"
	}
	return "Student ID Card"
}
