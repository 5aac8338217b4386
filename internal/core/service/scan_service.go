package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/api/metrics"
	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

const (
	defaultScanSubject = "General"
	defaultScanRoom    = "Room A"
)

// ScanService turns reader scans into check-ins. The reader only knows the
// card id, so the owner is whoever the identity store says holds it.
type ScanService struct {
	identity       ports.IdentityStore
	ledger         ports.CheckInLedger
	defaultSubject string
	log            zerolog.Logger
}

func NewScanService(identity ports.IdentityStore, ledger ports.CheckInLedger, defaultSubject string, log zerolog.Logger) *ScanService {
	if strings.TrimSpace(defaultSubject) == "" {
		defaultSubject = defaultScanSubject
	}
	return &ScanService{
		identity:       identity,
		ledger:         ledger,
		defaultSubject: defaultSubject,
		log:            log,
	}
}

// Process resolves the scanned token and submits a check-in for its owner.
func (s *ScanService) Process(ctx context.Context, scan domain.ScanEvent) (*ports.CheckInResult, error) {
	token, err := s.identity.GetToken(ctx, scan.TokenID)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) || errors.Is(err, domain.ErrInvalidTokenID) {
			metrics.ScansProcessedTotal.WithLabelValues("unknown_token").Inc()
			s.log.Warn().
				Str("token_id", scan.TokenID).
				Str("device_id", scan.DeviceID).
				Msg("scan for unregistered token")
		} else {
			metrics.ScansProcessedTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("process scan: %w", err)
	}

	subject := strings.TrimSpace(scan.Subject)
	if subject == "" {
		subject = s.defaultSubject
	}
	room := strings.TrimSpace(scan.Location)
	if room == "" {
		room = defaultScanRoom
	}

	result, err := s.ledger.SubmitCheckIn(ctx, ports.SubmitCheckInInput{
		OwnerID:    token.OwnerID,
		TokenID:    token.TokenID,
		Subject:    subject,
		Room:       room,
		Method:     token.Kind.CheckInMethod(),
		OccurredAt: scan.Timestamp,
		DeviceID:   scan.DeviceID,
	})
	if err != nil {
		metrics.ScansProcessedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("process scan: %w", err)
	}

	if result.Replayed {
		metrics.ScansProcessedTotal.WithLabelValues("replayed").Inc()
	} else {
		metrics.ScansProcessedTotal.WithLabelValues("checked_in").Inc()
	}
	s.log.Info().
		Str("token_id", token.TokenID).
		Str("device_id", scan.DeviceID).
		Str("event_id", result.Event.EventID).
		Bool("replayed", result.Replayed).
		Msg("scan processed")

	return result, nil
}
