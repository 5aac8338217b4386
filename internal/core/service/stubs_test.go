package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

// ── tokens ────────────────────────────────────────────────────────────────────

type stubTokenRepo struct {
	mu        sync.Mutex
	tokens    map[string]*domain.Token
	insertErr error
	touchErr  error
	touches   int
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{tokens: make(map[string]*domain.Token)}
}

func cloneToken(t *domain.Token) *domain.Token {
	if t == nil {
		return nil
	}
	clone := *t
	if t.LastUsedAt != nil {
		at := *t.LastUsedAt
		clone.LastUsedAt = &at
	}
	return &clone
}

func (r *stubTokenRepo) Insert(_ context.Context, t *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, exists := r.tokens[t.TokenID]; exists {
		return domain.ErrAlreadyRegistered
	}
	r.tokens[t.TokenID] = cloneToken(t)
	return nil
}

func (r *stubTokenRepo) FindByID(_ context.Context, tokenID string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return cloneToken(t), nil
}

func (r *stubTokenRepo) ListByOwner(_ context.Context, ownerID string) ([]*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Token
	for _, t := range r.tokens {
		if t.OwnerID == ownerID {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func (r *stubTokenRepo) UpdateLastUsed(_ context.Context, tokenID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches++
	if r.touchErr != nil {
		return r.touchErr
	}
	t, ok := r.tokens[tokenID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if t.LastUsedAt == nil || at.After(*t.LastUsedAt) {
		t.LastUsedAt = &at
	}
	return nil
}

func (r *stubTokenRepo) SetActive(_ context.Context, tokenID, ownerID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if t.OwnerID != ownerID {
		return domain.ErrNotOwner
	}
	t.Active = active
	return nil
}

func (r *stubTokenRepo) Delete(_ context.Context, tokenID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if t.OwnerID != ownerID {
		return domain.ErrNotOwner
	}
	delete(r.tokens, tokenID)
	return nil
}

func (r *stubTokenRepo) touchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touches
}

// ── check-ins ─────────────────────────────────────────────────────────────────

type stubCheckInRepo struct {
	mu        sync.Mutex
	events    []*domain.CheckInEvent
	byKey     map[string]*domain.CheckInEvent
	seq       int64
	appendErr error
	appends   int
}

func newStubCheckInRepo() *stubCheckInRepo {
	return &stubCheckInRepo{byKey: make(map[string]*domain.CheckInEvent)}
}

func cloneEvent(e *domain.CheckInEvent) *domain.CheckInEvent {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

func (r *stubCheckInRepo) Append(_ context.Context, e *domain.CheckInEvent) (*domain.CheckInEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appends++
	if r.appendErr != nil {
		return nil, r.appendErr
	}
	if prior, ok := r.byKey[e.DedupKey]; ok {
		return cloneEvent(prior), domain.ErrDuplicateSubmission
	}
	r.seq++
	stored := cloneEvent(e)
	stored.Seq = r.seq
	r.events = append(r.events, stored)
	r.byKey[stored.DedupKey] = stored
	return cloneEvent(stored), nil
}

func (r *stubCheckInRepo) FindByID(_ context.Context, eventID string) (*domain.CheckInEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventID == eventID {
			return cloneEvent(e), nil
		}
	}
	return nil, domain.ErrCheckInNotFound
}

func (r *stubCheckInRepo) ListByOwner(_ context.Context, f ports.ListCheckInsFilter) ([]*domain.CheckInEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CheckInEvent
	for _, e := range r.events {
		if e.OwnerID != f.OwnerID {
			continue
		}
		if !f.Before.IsZero() {
			older := e.OccurredAt.Before(f.Before) || (e.OccurredAt.Equal(f.Before) && e.Seq < f.BeforeSeq)
			if !older {
				continue
			}
		}
		out = append(out, cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Newer(out[j]) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *stubCheckInRepo) CountByOwner(_ context.Context, ownerID string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if e.OwnerID == ownerID && (since.IsZero() || !e.OccurredAt.Before(since)) {
			n++
		}
	}
	return n, nil
}

func (r *stubCheckInRepo) appendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appends
}

// ── dedup cache & feed ────────────────────────────────────────────────────────

type stubDedupCache struct {
	mu        sync.Mutex
	entries   map[string]string
	lookupErr error
}

func newStubDedupCache() *stubDedupCache {
	return &stubDedupCache{entries: make(map[string]string)}
}

func (c *stubDedupCache) Lookup(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return "", false, c.lookupErr
	}
	id, ok := c.entries[key]
	return id, ok, nil
}

func (c *stubDedupCache) Remember(_ context.Context, key, eventID string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = eventID
	return nil
}

type stubFeed struct {
	mu        sync.Mutex
	published []*domain.CheckInEvent
	err       error
}

func (f *stubFeed) Publish(_ context.Context, e *domain.CheckInEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, cloneEvent(e))
	return nil
}

func (f *stubFeed) Subscribe(context.Context, string) (<-chan *domain.CheckInEvent, func(), error) {
	ch := make(chan *domain.CheckInEvent)
	return ch, func() {}, nil
}

// fixedClock returns a clock that always reports t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
