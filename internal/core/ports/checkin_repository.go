package ports

import (
	"context"
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// ListCheckInsFilter selects a reverse-chronological page of one owner's events.
// A zero Before starts from the newest event; otherwise only events strictly
// older than (Before, BeforeSeq) are returned.
type ListCheckInsFilter struct {
	OwnerID   string
	Before    time.Time
	BeforeSeq int64
	Limit     int
}

// CheckInRepository is the append-only ledger store.
type CheckInRepository interface {
	// Append assigns Seq and inserts e unless an event with the same DedupKey
	// exists, in which case the stored event is returned together with
	// domain.ErrDuplicateSubmission.
	Append(ctx context.Context, e *domain.CheckInEvent) (*domain.CheckInEvent, error)
	FindByID(ctx context.Context, eventID string) (*domain.CheckInEvent, error)
	ListByOwner(ctx context.Context, filter ListCheckInsFilter) ([]*domain.CheckInEvent, error)
	// CountByOwner counts events at or after since; a zero since counts all.
	CountByOwner(ctx context.Context, ownerID string, since time.Time) (int64, error)
}

// CheckInFeed is the subscribe-for-changes primitive over the ledger.
type CheckInFeed interface {
	Publish(ctx context.Context, e *domain.CheckInEvent) error
	// Subscribe streams events appended for ownerID until ctx is done or the
	// returned cancel func is called.
	Subscribe(ctx context.Context, ownerID string) (<-chan *domain.CheckInEvent, func(), error)
}
