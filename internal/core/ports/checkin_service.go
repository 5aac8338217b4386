package ports

import (
	"context"
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// SubmitCheckInInput is the DTO passed from the transport layer to the ledger.
type SubmitCheckInInput struct {
	OwnerID    string
	TokenID    string
	Subject    string
	Room       string
	Method     domain.CheckInMethod
	OccurredAt time.Time // zero = now
	DeviceID   string    // optional: reader that produced the scan
}

// CheckInResult is returned by SubmitCheckIn.
type CheckInResult struct {
	Event *domain.CheckInEvent
	// Replayed is true when the submission matched an event already in its dedup window.
	Replayed bool
}

// HistoryInput pages through one owner's check-ins, newest first.
type HistoryInput struct {
	OwnerID   string
	Limit     int
	Before    time.Time
	BeforeSeq int64
}

// HistoryResult is one page of history. Next is set when more events exist.
type HistoryResult struct {
	Items []*domain.CheckInEvent
	Limit int
	Next  *HistoryCursor
}

// HistoryCursor points just past the last item of a page.
type HistoryCursor struct {
	Before    time.Time
	BeforeSeq int64
}

// CheckInSummary backs the home view.
type CheckInSummary struct {
	Total int64
	Today int64
	Last  *domain.CheckInEvent
}

// CheckInLedger accepts check-ins and serves read projections over them.
type CheckInLedger interface {
	SubmitCheckIn(ctx context.Context, in SubmitCheckInInput) (*CheckInResult, error)
	History(ctx context.Context, in HistoryInput) (*HistoryResult, error)
	Summary(ctx context.Context, ownerID string, now time.Time) (*CheckInSummary, error)
}
