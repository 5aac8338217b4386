package domain

import (
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
)

// CheckInMethod records how the attendee presented themselves.
type CheckInMethod string

const (
	MethodManual      CheckInMethod = "manual"
	MethodVirtualNFC  CheckInMethod = "virtual_nfc"
	MethodPhysicalNFC CheckInMethod = "physical_nfc"
	MethodQR          CheckInMethod = "qr"
)

// Valid reports whether m is a known check-in method.
func (m CheckInMethod) Valid() bool {
	switch m {
	case MethodManual, MethodVirtualNFC, MethodPhysicalNFC, MethodQR:
		return true
	}
	return false
}

// CheckInStatus is the terminal outcome of a submission.
type CheckInStatus string

const (
	StatusSuccess  CheckInStatus = "success"
	StatusRejected CheckInStatus = "rejected"
)

var (
	ErrTokenNotOwned       = errors.New("token not owned by user")
	ErrDuplicateSubmission = errors.New("duplicate check-in submission")
	ErrInvalidCheckIn      = errors.New("invalid check-in")
	ErrCheckInNotFound     = errors.New("check-in not found")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrRateLimited         = errors.New("too many check-ins")
	ErrScanQueueFull       = errors.New("scan queue full")
)

// CheckInEvent is an immutable ledger record. Seq is the ledger-assigned
// generation order used to break OccurredAt ties.
type CheckInEvent struct {
	EventID    string        `json:"event_id"`
	Seq        int64         `json:"-"`
	OwnerID    string        `json:"owner_id"`
	TokenID    string        `json:"token_id"`
	Subject    string        `json:"subject"`
	Room       string        `json:"room"`
	Method     CheckInMethod `json:"method"`
	OccurredAt time.Time     `json:"occurred_at"`
	DedupKey   string        `json:"dedup_key"`
	Status     CheckInStatus `json:"status"`
	DeviceID   string        `json:"device_id,omitempty"`
}

// Newer reports whether e sorts before other in reverse-chronological order.
func (e *CheckInEvent) Newer(other *CheckInEvent) bool {
	if !e.OccurredAt.Equal(other.OccurredAt) {
		return e.OccurredAt.After(other.OccurredAt)
	}
	return e.Seq > other.Seq
}

// FloorToWindow truncates t to the start of its dedup window, counted in whole
// milliseconds since the epoch. A non-positive window disables flooring.
func FloorToWindow(t time.Time, window time.Duration) int64 {
	ms := t.UnixMilli()
	w := window.Milliseconds()
	if w <= 0 {
		return ms
	}
	bucket := ms - ms%w
	if ms < 0 && ms%w != 0 {
		bucket -= w
	}
	return bucket
}

// DedupKey hashes the fields that identify "the same" check-in within a window.
// Fields are length-prefixed so no two tuples share an encoding.
func DedupKey(ownerID, tokenID, subject, room string, occurredAt time.Time, window time.Duration) string {
	h := blake3.New()
	for _, part := range []string{ownerID, tokenID, subject, room} {
		_, _ = h.Write([]byte(strconv.Itoa(len(part)) + ":" + part))
	}
	_, _ = h.Write([]byte(strconv.FormatInt(FloorToWindow(occurredAt, window), 10)))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
