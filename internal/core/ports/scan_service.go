package ports

import (
	"context"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// ScanProcessor turns a reader scan into a check-in for the token's owner.
type ScanProcessor interface {
	Process(ctx context.Context, scan domain.ScanEvent) (*CheckInResult, error)
}

// ScanSource is a pull-based stream of reader scans. Next blocks until a scan
// is available or ctx is done.
type ScanSource interface {
	Next(ctx context.Context) (domain.ScanEvent, error)
}
