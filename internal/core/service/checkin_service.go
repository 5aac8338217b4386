package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/api/metrics"
	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

const (
	defaultDedupWindow  = time.Minute
	defaultTouchTimeout = 5 * time.Second
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// DedupCache is a fast-path index from dedup key to event id (Redis). The
// ledger's conditional write stays authoritative; the cache only saves a
// round trip for rapid repeat taps.
type DedupCache interface {
	Lookup(ctx context.Context, dedupKey string) (eventID string, found bool, err error)
	Remember(ctx context.Context, dedupKey, eventID string, ttl time.Duration) error
}

// CheckInOptions tunes the ledger. Zero values pick the defaults.
type CheckInOptions struct {
	DedupWindow  time.Duration
	TouchTimeout time.Duration
	Location     *time.Location // day boundary for Summary.Today
}

// CheckInService implements ports.CheckInLedger.
type CheckInService struct {
	identity ports.IdentityStore
	repo     ports.CheckInRepository
	dedup    DedupCache
	feed     ports.CheckInFeed
	opts     CheckInOptions
	newID    func() (string, error)
	clock    func() time.Time
	log      zerolog.Logger

	touches sync.WaitGroup
}

// NewCheckInService wires the ledger. dedup and feed are optional.
func NewCheckInService(
	identity ports.IdentityStore,
	repo ports.CheckInRepository,
	dedup DedupCache,
	feed ports.CheckInFeed,
	opts CheckInOptions,
	log zerolog.Logger,
) *CheckInService {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = defaultDedupWindow
	}
	if opts.TouchTimeout <= 0 {
		opts.TouchTimeout = defaultTouchTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &CheckInService{
		identity: identity,
		repo:     repo,
		dedup:    dedup,
		feed:     feed,
		opts:     opts,
		newID:    newEventID,
		clock:    time.Now,
		log:      log,
	}
}

// SubmitCheckIn validates the token against the owner, derives the dedup key
// and appends a new event unless one already exists for that key. A duplicate
// is not an error for the caller: the original event comes back with
// Replayed set.
func (s *CheckInService) SubmitCheckIn(ctx context.Context, in ports.SubmitCheckInInput) (*ports.CheckInResult, error) {
	start := time.Now()

	// 1. Received → Validated.
	in.Subject = strings.TrimSpace(in.Subject)
	in.Room = strings.TrimSpace(in.Room)
	if in.OwnerID == "" || in.Subject == "" || in.Room == "" {
		return nil, s.reject(in, start, "invalid", fmt.Errorf("%w: owner, subject and room are required", domain.ErrInvalidCheckIn))
	}
	if !in.Method.Valid() {
		return nil, s.reject(in, start, "invalid", fmt.Errorf("%w: unknown method %q", domain.ErrInvalidCheckIn, in.Method))
	}

	token, err := s.identity.GetToken(ctx, in.TokenID)
	switch {
	case errors.Is(err, domain.ErrTokenNotFound), errors.Is(err, domain.ErrInvalidTokenID):
		return nil, s.reject(in, start, "token_not_owned", fmt.Errorf("submit check-in: %w", domain.ErrTokenNotOwned))
	case err != nil:
		return nil, s.reject(in, start, "store_error", fmt.Errorf("submit check-in: %w", err))
	case token.OwnerID != in.OwnerID:
		s.log.Warn().Str("owner_id", in.OwnerID).Str("token_id", token.TokenID).Msg("check-in with foreign token")
		return nil, s.reject(in, start, "token_not_owned", fmt.Errorf("submit check-in: %w", domain.ErrTokenNotOwned))
	case !token.Active:
		return nil, s.reject(in, start, "token_inactive", fmt.Errorf("submit check-in: %w", domain.ErrTokenInactive))
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock()
	}
	occurredAt = toMillis(occurredAt)

	// 2. Derive the idempotency key.
	key := domain.DedupKey(in.OwnerID, token.TokenID, in.Subject, in.Room, occurredAt, s.opts.DedupWindow)

	// 3. Fast path: a recent identical submission is already cached.
	if prior := s.cachedPrior(ctx, key); prior != nil {
		metrics.CheckInDedupTotal.WithLabelValues("hit", "cache").Inc()
		return s.replay(prior, start), nil
	}

	eventID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("submit check-in: event id: %w", err)
	}

	// 4. Conditional append, one write per dedup key.
	stored, err := s.repo.Append(ctx, &domain.CheckInEvent{
		EventID:    eventID,
		OwnerID:    in.OwnerID,
		TokenID:    token.TokenID,
		Subject:    in.Subject,
		Room:       in.Room,
		Method:     in.Method,
		OccurredAt: occurredAt,
		DedupKey:   key,
		Status:     domain.StatusSuccess,
		DeviceID:   in.DeviceID,
	})
	if errors.Is(err, domain.ErrDuplicateSubmission) {
		metrics.CheckInDedupTotal.WithLabelValues("hit", "store").Inc()
		s.remember(ctx, stored)
		return s.replay(stored, start), nil
	}
	if err != nil {
		metrics.CheckInDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		s.log.Error().Err(err).Str("owner_id", in.OwnerID).Str("dedup_key", key).Msg("check-in append failed")
		return nil, fmt.Errorf("submit check-in: %w", err)
	}
	metrics.CheckInDedupTotal.WithLabelValues("miss", "store").Inc()

	s.remember(ctx, stored)
	s.publish(ctx, stored)
	s.touchAsync(stored.TokenID, stored.OccurredAt)

	metrics.CheckInsTotal.WithLabelValues(string(stored.Method), string(domain.StatusSuccess)).Inc()
	metrics.CheckInDuration.WithLabelValues(string(domain.StatusSuccess)).Observe(time.Since(start).Seconds())
	s.log.Info().
		Str("event_id", stored.EventID).
		Str("owner_id", stored.OwnerID).
		Str("token_id", stored.TokenID).
		Str("method", string(stored.Method)).
		Msg("check-in recorded")

	return &ports.CheckInResult{Event: stored}, nil
}

// History returns a page of the owner's check-ins, newest first.
func (s *CheckInService) History(ctx context.Context, in ports.HistoryInput) (*ports.HistoryResult, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("history: %w", domain.ErrOwnerRequired)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	// One extra row tells us whether another page exists.
	items, err := s.repo.ListByOwner(ctx, ports.ListCheckInsFilter{
		OwnerID:   in.OwnerID,
		Before:    in.Before,
		BeforeSeq: in.BeforeSeq,
		Limit:     limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	result := &ports.HistoryResult{Items: items, Limit: limit}
	if len(items) > limit {
		result.Items = items[:limit]
		last := result.Items[limit-1]
		result.Next = &ports.HistoryCursor{Before: last.OccurredAt, BeforeSeq: last.Seq}
	}
	return result, nil
}

// Summary backs the home view: total and today's check-ins plus the latest one.
func (s *CheckInService) Summary(ctx context.Context, ownerID string, now time.Time) (*ports.CheckInSummary, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("summary: %w", domain.ErrOwnerRequired)
	}

	total, err := s.repo.CountByOwner(ctx, ownerID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("summary: total: %w", err)
	}

	local := now.In(s.opts.Location)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.opts.Location)
	today, err := s.repo.CountByOwner(ctx, ownerID, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("summary: today: %w", err)
	}

	summary := &ports.CheckInSummary{Total: total, Today: today}
	if total > 0 {
		latest, err := s.repo.ListByOwner(ctx, ports.ListCheckInsFilter{OwnerID: ownerID, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("summary: last: %w", err)
		}
		if len(latest) > 0 {
			summary.Last = latest[0]
		}
	}
	return summary, nil
}

// Wait blocks until every in-flight last-used update has finished. Call it
// on shutdown.
func (s *CheckInService) Wait() {
	s.touches.Wait()
}

func (s *CheckInService) cachedPrior(ctx context.Context, key string) *domain.CheckInEvent {
	if s.dedup == nil {
		return nil
	}
	eventID, found, err := s.dedup.Lookup(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("dedup_key", key).Msg("dedup lookup failed, falling back to store")
		return nil
	}
	if !found {
		return nil
	}
	prior, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		s.log.Warn().Err(err).Str("dedup_key", key).Str("event_id", eventID).Msg("cached dedup entry unresolved")
		return nil
	}
	return prior
}

func (s *CheckInService) remember(ctx context.Context, e *domain.CheckInEvent) {
	if s.dedup == nil || e == nil {
		return
	}
	// Keys are bucketed by window; two windows of TTL outlive the bucket.
	if err := s.dedup.Remember(ctx, e.DedupKey, e.EventID, 2*s.opts.DedupWindow); err != nil {
		s.log.Warn().Err(err).Str("dedup_key", e.DedupKey).Msg("failed to cache dedup key")
	}
}

func (s *CheckInService) publish(ctx context.Context, e *domain.CheckInEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("event_id", e.EventID).Msg("failed to publish check-in")
	}
}

// touchAsync updates last-used off the request path. It is detached from the
// caller's context so an abandoned request still records the use.
func (s *CheckInService) touchAsync(tokenID string, at time.Time) {
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.TouchTimeout)
		defer cancel()
		s.identity.TouchLastUsed(ctx, tokenID, at)
	}()
}

func (s *CheckInService) replay(prior *domain.CheckInEvent, start time.Time) *ports.CheckInResult {
	metrics.CheckInsTotal.WithLabelValues(string(prior.Method), "replayed").Inc()
	metrics.CheckInDuration.WithLabelValues("replayed").Observe(time.Since(start).Seconds())
	s.log.Debug().
		Str("event_id", prior.EventID).
		Str("owner_id", prior.OwnerID).
		Str("dedup_key", prior.DedupKey).
		Msg("duplicate check-in replayed")
	return &ports.CheckInResult{Event: prior, Replayed: true}
}

func (s *CheckInService) reject(in ports.SubmitCheckInInput, start time.Time, reason string, err error) error {
	metrics.CheckInsTotal.WithLabelValues(string(in.Method), string(domain.StatusRejected)).Inc()
	metrics.CheckInRejectionsTotal.WithLabelValues(reason).Inc()
	metrics.CheckInDuration.WithLabelValues(string(domain.StatusRejected)).Observe(time.Since(start).Seconds())
	s.log.Debug().Err(err).Str("owner_id", in.OwnerID).Str("token_id", in.TokenID).Msg("check-in rejected")
	return err
}

// newEventID returns a UUIDv7: time-ordered, so ids sort roughly by creation.
func newEventID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
