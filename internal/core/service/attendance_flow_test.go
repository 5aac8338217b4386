package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

type attendanceCore struct {
	identity *IdentityService
	issuer   *IssuerService
	ledger   *CheckInService
	resolver *ResolverService
}

func newAttendanceCore(t *testing.T) *attendanceCore {
	t.Helper()
	identity := NewIdentityService(newStubTokenRepo(), zerolog.Nop())
	return &attendanceCore{
		identity: identity,
		issuer:   NewIssuerService(identity, 5, zerolog.Nop()),
		ledger:   NewCheckInService(identity, newStubCheckInRepo(), newStubDedupCache(), &stubFeed{}, CheckInOptions{}, zerolog.Nop()),
		resolver: NewResolverService(identity),
	}
}

func TestAttendanceFlow_VirtualTokenCheckIn(t *testing.T) {
	core := newAttendanceCore(t)
	ctx := context.Background()

	v1, err := core.issuer.IssueVirtualToken(ctx, "U1", "")
	if err != nil {
		t.Fatalf("IssueVirtualToken: %v", err)
	}

	res, err := core.ledger.SubmitCheckIn(ctx, ports.SubmitCheckInInput{
		OwnerID:    "U1",
		TokenID:    v1.TokenID,
		Subject:    "Physics 101",
		Room:       "Lab 1",
		Method:     domain.MethodVirtualNFC,
		OccurredAt: windowStart,
	})
	if err != nil {
		t.Fatalf("SubmitCheckIn: %v", err)
	}
	core.ledger.Wait()

	if res.Event.Status != domain.StatusSuccess || res.Event.TokenID != v1.TokenID {
		t.Fatalf("unexpected event: %+v", res.Event)
	}

	selectable, err := core.resolver.ListSelectable(ctx, "U1")
	if err != nil {
		t.Fatalf("ListSelectable: %v", err)
	}
	if len(selectable) != 1 || selectable[0].TokenID != v1.TokenID {
		t.Fatalf("expected [%s], got %+v", v1.TokenID, selectable)
	}
	if selectable[0].LastUsedAt == nil || !selectable[0].LastUsedAt.Equal(res.Event.OccurredAt) {
		t.Fatalf("expected lastUsedAt %v, got %v", res.Event.OccurredAt, selectable[0].LastUsedAt)
	}
}

func TestAttendanceFlow_PhysicalWithCompanion(t *testing.T) {
	core := newAttendanceCore(t)
	ctx := context.Background()

	reg, err := core.issuer.RegisterPhysicalToken(ctx, ports.RegisterPhysicalInput{
		TokenID:              "P1",
		OwnerID:              "U1",
		WithVirtualCompanion: true,
	})
	if err != nil {
		t.Fatalf("RegisterPhysicalToken: %v", err)
	}

	tokens, err := core.identity.ListTokensForOwner(ctx, "U1")
	if err != nil {
		t.Fatalf("ListTokensForOwner: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}

	kinds := map[domain.TokenKind]*domain.Token{}
	for _, tok := range tokens {
		kinds[tok.Kind] = tok
	}
	if p := kinds[domain.TokenPhysical]; p == nil || p.TokenID != "P1" {
		t.Fatalf("expected physical P1, got %+v", p)
	}
	v := kinds[domain.TokenVirtual]
	if v == nil || v.TokenID != reg.Virtual.TokenID || v.LinkedPhysicalTokenID != "P1" {
		t.Fatalf("expected virtual companion linked to P1, got %+v", v)
	}
}
