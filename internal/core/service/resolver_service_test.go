package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

func seedToken(t *testing.T, repo *stubTokenRepo, id, owner string, created time.Time, lastUsed *time.Time, active bool) {
	t.Helper()
	err := repo.Insert(context.Background(), &domain.Token{
		TokenID:    id,
		Kind:       domain.TokenPhysical,
		OwnerID:    owner,
		Active:     active,
		CreatedAt:  created,
		LastUsedAt: lastUsed,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestResolverService_ListSelectable_Order(t *testing.T) {
	identity, repo := newTestIdentity(t)
	resolver := NewResolverService(identity)
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	seedToken(t, repo, "OLD-USED", "alice", base, ptr(base.Add(time.Hour)), true)
	seedToken(t, repo, "RECENT-USED", "alice", base, ptr(base.Add(2*time.Hour)), true)
	seedToken(t, repo, "NEW-UNUSED", "alice", base.Add(3*time.Hour), nil, true)
	seedToken(t, repo, "OLD-UNUSED", "alice", base.Add(-time.Hour), nil, true)
	seedToken(t, repo, "DISABLED", "alice", base.Add(4*time.Hour), ptr(base.Add(5*time.Hour)), false)
	seedToken(t, repo, "BOBS", "bob", base, ptr(base.Add(9*time.Hour)), true)

	got, err := resolver.ListSelectable(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListSelectable returned error: %v", err)
	}

	want := []string{"NEW-UNUSED", "RECENT-USED", "OLD-USED", "OLD-UNUSED"}
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].TokenID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].TokenID)
		}
	}
}

func TestResolverService_ListSelectable_UsedAtTiesBreakByCreatedAt(t *testing.T) {
	identity, repo := newTestIdentity(t)
	resolver := NewResolverService(identity)
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	// FRESH was created exactly when OLDER was last used.
	seedToken(t, repo, "OLDER", "alice", base, ptr(base.Add(time.Hour)), true)
	seedToken(t, repo, "FRESH", "alice", base.Add(time.Hour), nil, true)

	got, _ := resolver.ListSelectable(context.Background(), "alice")
	if len(got) != 2 || got[0].TokenID != "FRESH" {
		t.Fatalf("expected newer createdAt first on equal activity, got %+v", got)
	}
}

func TestResolverService_ResolveActiveToken_NewCardBeatsStaleUse(t *testing.T) {
	identity, repo := newTestIdentity(t)
	resolver := NewResolverService(identity)
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	seedToken(t, repo, "OLD-CARD", "alice", base, ptr(base.Add(time.Hour)), true)
	seedToken(t, repo, "NEW-CARD", "alice", base.Add(30*24*time.Hour), nil, true)

	got, err := resolver.ResolveActiveToken(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("ResolveActiveToken returned error: %v", err)
	}
	if got.TokenID != "NEW-CARD" {
		t.Fatalf("expected NEW-CARD (registered after OLD-CARD's last use), got %s", got.TokenID)
	}

	// Once the old card is tapped again it takes over.
	if err := repo.UpdateLastUsed(context.Background(), "OLD-CARD", base.Add(31*24*time.Hour)); err != nil {
		t.Fatalf("UpdateLastUsed: %v", err)
	}
	got, _ = resolver.ResolveActiveToken(context.Background(), "alice", "")
	if got.TokenID != "OLD-CARD" {
		t.Fatalf("expected OLD-CARD after fresh use, got %s", got.TokenID)
	}
}

func TestResolverService_ListSelectable_TieBreaksByID(t *testing.T) {
	identity, repo := newTestIdentity(t)
	resolver := NewResolverService(identity)
	at := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	seedToken(t, repo, "B", "alice", at, nil, true)
	seedToken(t, repo, "A", "alice", at, nil, true)

	got, _ := resolver.ListSelectable(context.Background(), "alice")
	if len(got) != 2 || got[0].TokenID != "A" {
		t.Fatalf("expected A first on full tie, got %+v", got)
	}
}

func TestResolverService_ResolveActiveToken(t *testing.T) {
	identity, repo := newTestIdentity(t)
	resolver := NewResolverService(identity)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	if _, err := resolver.ResolveActiveToken(ctx, "alice", ""); !errors.Is(err, domain.ErrNoTokensRegistered) {
		t.Fatalf("expected ErrNoTokensRegistered, got %v", err)
	}

	seedToken(t, repo, "ONLY", "alice", base, nil, true)
	got, err := resolver.ResolveActiveToken(ctx, "alice", "")
	if err != nil || got.TokenID != "ONLY" {
		t.Fatalf("expected the single token, got %+v, %v", got, err)
	}

	seedToken(t, repo, "USED", "alice", base, ptr(base.Add(time.Minute)), true)
	got, _ = resolver.ResolveActiveToken(ctx, "alice", "")
	if got.TokenID != "USED" {
		t.Fatalf("expected most recently used token, got %s", got.TokenID)
	}

	got, err = resolver.ResolveActiveToken(ctx, "alice", "only")
	if err != nil || got.TokenID != "ONLY" {
		t.Fatalf("explicit token should win, got %+v, %v", got, err)
	}
}

func TestResolverService_ResolveActiveToken_Explicit(t *testing.T) {
	identity, repo := newTestIdentity(t)
	resolver := NewResolverService(identity)
	ctx := context.Background()
	now := time.Now()

	seedToken(t, repo, "MINE", "alice", now, nil, true)
	seedToken(t, repo, "OFF", "alice", now, nil, false)
	seedToken(t, repo, "THEIRS", "bob", now, nil, true)

	tests := []struct {
		name     string
		explicit string
		wantErr  error
	}{
		{"foreign", "THEIRS", domain.ErrTokenNotOwned},
		{"unknown", "NOPE", domain.ErrTokenNotOwned},
		{"inactive", "OFF", domain.ErrTokenInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolver.ResolveActiveToken(ctx, "alice", tt.explicit); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestResolverService_InactiveOnlyMeansNone(t *testing.T) {
	identity, repo := newTestIdentity(t)
	resolver := NewResolverService(identity)
	seedToken(t, repo, "OFF", "alice", time.Now(), nil, false)

	if _, err := resolver.ResolveActiveToken(context.Background(), "alice", ""); !errors.Is(err, domain.ErrNoTokensRegistered) {
		t.Fatalf("expected ErrNoTokensRegistered, got %v", err)
	}
}
