package mongo

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

// testDB connects to ATTENDANCE_TEST_MONGO_URI and returns a throwaway database.
func testDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("ATTENDANCE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ATTENDANCE_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	name := "attendance_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	client, db, err := Connect(ctx, Config{URI: uri, Database: name})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestTokenRepository_Integration(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	created := time.UnixMilli(1_760_000_000_000).UTC()
	token := &domain.Token{TokenID: "CARD-1", Kind: domain.TokenPhysical, OwnerID: "alice", DisplayName: "Card", Active: true, CreatedAt: created}

	// Concurrent registrations: exactly one wins.
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(ctx, token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrAlreadyRegistered):
				conflicts++
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != 7 {
		t.Fatalf("expected 1 win and 7 conflicts, got %d/%d", wins, conflicts)
	}

	later := created.Add(time.Hour)
	if err := repo.UpdateLastUsed(ctx, "CARD-1", later); err != nil {
		t.Fatalf("UpdateLastUsed: %v", err)
	}
	if err := repo.UpdateLastUsed(ctx, "CARD-1", created); err != nil {
		t.Fatalf("UpdateLastUsed (older): %v", err)
	}
	got, err := repo.FindByID(ctx, "CARD-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(later) {
		t.Fatalf("expected last used %v, got %v", later, got.LastUsedAt)
	}

	if err := repo.Delete(ctx, "CARD-1", "bob"); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := repo.SetActive(ctx, "GHOST", "alice", false); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "CARD-1", "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, "CARD-1"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestCheckInRepository_Integration(t *testing.T) {
	db := testDB(t)
	repo := NewCheckInRepository(db)
	ctx := context.Background()
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	at := time.UnixMilli(1_760_000_040_000).UTC()
	event := func(id, key string, occurred time.Time) *domain.CheckInEvent {
		return &domain.CheckInEvent{
			EventID: id, OwnerID: "alice", TokenID: "CARD-1", Subject: "Math 101", Room: "Room A",
			Method: domain.MethodPhysicalNFC, OccurredAt: occurred, DedupKey: key, Status: domain.StatusSuccess,
		}
	}

	first, err := repo.Append(ctx, event("e1", "k1", at))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	prior, err := repo.Append(ctx, event("e2", "k1", at))
	if !errors.Is(err, domain.ErrDuplicateSubmission) || prior.EventID != "e1" {
		t.Fatalf("expected duplicate of e1, got %+v, %v", prior, err)
	}
	second, err := repo.Append(ctx, event("e3", "k2", at))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing seq, got %d then %d", first.Seq, second.Seq)
	}

	page, err := repo.ListByOwner(ctx, ports.ListCheckInsFilter{OwnerID: "alice", Limit: 1})
	if err != nil || len(page) != 1 || page[0].EventID != "e3" {
		t.Fatalf("expected e3 first, got %+v, %v", page, err)
	}
	rest, err := repo.ListByOwner(ctx, ports.ListCheckInsFilter{OwnerID: "alice", Before: page[0].OccurredAt, BeforeSeq: page[0].Seq, Limit: 10})
	if err != nil || len(rest) != 1 || rest[0].EventID != "e1" {
		t.Fatalf("expected e1 on the next page, got %+v, %v", rest, err)
	}

	n, err := repo.CountByOwner(ctx, "alice", at)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 events, got %d, %v", n, err)
	}
}
