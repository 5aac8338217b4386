package handler

import (
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Auth ---

type registerRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=80"`
	Email       string `json:"email"        validate:"required,email"`
	Password    string `json:"password"     validate:"required,min=6"`
	Role        string `json:"role"         validate:"omitempty,oneof=student device admin"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token,omitempty"`
	User  *domain.User `json:"user,omitempty"`
}

// --- Tokens ---

type issueVirtualRequest struct {
	DisplayName string `json:"display_name" validate:"max=60"`
}

type registerPhysicalRequest struct {
	TokenID              string `json:"token_id"               validate:"required,tokenid"`
	DisplayName          string `json:"display_name"           validate:"max=60"`
	WithVirtualCompanion bool   `json:"with_virtual_companion"`
}

// tokenView is the wire form of a token. Times are epoch milliseconds.
type tokenView struct {
	TokenID               string `json:"token_id"`
	Kind                  string `json:"kind"`
	OwnerID               string `json:"owner_id"`
	LinkedPhysicalTokenID string `json:"linked_physical_token_id,omitempty"`
	DisplayName           string `json:"display_name"`
	Active                bool   `json:"active"`
	CreatedAt             int64  `json:"created_at"`
	LastUsedAt            *int64 `json:"last_used_at,omitempty"`
}

func newTokenView(t *domain.Token) *tokenView {
	if t == nil {
		return nil
	}
	v := &tokenView{
		TokenID:               t.TokenID,
		Kind:                  string(t.Kind),
		OwnerID:               t.OwnerID,
		LinkedPhysicalTokenID: t.LinkedPhysicalTokenID,
		DisplayName:           t.DisplayName,
		Active:                t.Active,
		CreatedAt:             t.CreatedAt.UnixMilli(),
	}
	if t.LastUsedAt != nil {
		ms := t.LastUsedAt.UnixMilli()
		v.LastUsedAt = &ms
	}
	return v
}

func newTokenViews(tokens []*domain.Token) []*tokenView {
	out := make([]*tokenView, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, newTokenView(t))
	}
	return out
}

type physicalRegistrationResponse struct {
	Physical *tokenView `json:"physical"`
	Virtual  *tokenView `json:"virtual,omitempty"`
	Warning  string     `json:"warning,omitempty"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type tokenListResponse struct {
	Items []*tokenView `json:"items"`
}

// --- Check-ins ---

type submitCheckInRequest struct {
	TokenID string `json:"token_id" validate:"omitempty,tokenid"`
	Subject string `json:"subject"  validate:"required,max=80"`
	Room    string `json:"room"     validate:"required,max=80"`
	Method  string `json:"method"   validate:"omitempty,oneof=manual virtual_nfc physical_nfc qr"`
	// OccurredAt is milliseconds since the epoch; zero means now.
	OccurredAt int64 `json:"occurred_at"`
}

// eventView is the wire form of a check-in. OccurredAt is epoch milliseconds.
type eventView struct {
	EventID    string `json:"event_id"`
	OwnerID    string `json:"owner_id"`
	TokenID    string `json:"token_id"`
	Subject    string `json:"subject"`
	Room       string `json:"room"`
	Method     string `json:"method"`
	OccurredAt int64  `json:"occurred_at"`
	DedupKey   string `json:"dedup_key"`
	Status     string `json:"status"`
	DeviceID   string `json:"device_id,omitempty"`
}

func newEventView(e *domain.CheckInEvent) *eventView {
	if e == nil {
		return nil
	}
	return &eventView{
		EventID:    e.EventID,
		OwnerID:    e.OwnerID,
		TokenID:    e.TokenID,
		Subject:    e.Subject,
		Room:       e.Room,
		Method:     string(e.Method),
		OccurredAt: e.OccurredAt.UnixMilli(),
		DedupKey:   e.DedupKey,
		Status:     string(e.Status),
		DeviceID:   e.DeviceID,
	}
}

type checkInResponse struct {
	Event    *eventView `json:"event"`
	Replayed bool       `json:"replayed"`
}

type historyResponse struct {
	Items      []*eventView `json:"items"`
	Limit      int          `json:"limit"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type summaryResponse struct {
	Total int64      `json:"total"`
	Today int64      `json:"today"`
	Last  *eventView `json:"last,omitempty"`
}

// --- Reader bridge ---

type scanRequest struct {
	ScanID   string `json:"scan_id"`
	TokenID  string `json:"token_id"  validate:"required,tokenid"`
	DeviceID string `json:"device_id" validate:"required,max=64"`
	Location string `json:"location"  validate:"max=80"`
	Subject  string `json:"subject"   validate:"max=80"`
	// Timestamp is milliseconds since the epoch; zero means now.
	Timestamp int64 `json:"timestamp"`
}

func (r scanRequest) toDomain() domain.ScanEvent {
	e := domain.ScanEvent{
		ScanID:   r.ScanID,
		TokenID:  r.TokenID,
		DeviceID: r.DeviceID,
		Location: r.Location,
		Subject:  r.Subject,
	}
	if r.Timestamp > 0 {
		e.Timestamp = time.UnixMilli(r.Timestamp).UTC()
	}
	return e
}

type scanBatchRequest struct {
	Scans []scanRequest `json:"scans" validate:"required,min=1,max=100,dive"`
}

type scanAcceptedResponse struct {
	Accepted int `json:"accepted"`
}

// --- Catalog ---

type catalogResponse struct {
	Subjects []string `json:"subjects"`
	Rooms    []string `json:"rooms"`
}
