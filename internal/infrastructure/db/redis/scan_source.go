package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// blockTimeout bounds each BLPOP so Next notices cancellation.
const blockTimeout = 2 * time.Second

// ScanMessage is the JSON readers push onto the scan list. Timestamps are
// integer milliseconds since the epoch.
type ScanMessage struct {
	ScanID    string `json:"scan_id"`
	TokenID   string `json:"token_id"`
	DeviceID  string `json:"device_id"`
	Location  string `json:"location"`
	Subject   string `json:"subject,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ToDomain converts the wire message; a zero timestamp means "now" downstream.
func (m ScanMessage) ToDomain() domain.ScanEvent {
	e := domain.ScanEvent{
		ScanID:   m.ScanID,
		TokenID:  m.TokenID,
		DeviceID: m.DeviceID,
		Location: m.Location,
		Subject:  m.Subject,
	}
	if m.Timestamp > 0 {
		e.Timestamp = time.UnixMilli(m.Timestamp).UTC()
	}
	return e
}

// ScanSource pulls reader scans from a Redis list.
type ScanSource struct {
	client *redis.Client
	key    string
}

func NewScanSource(client *redis.Client, key string) *ScanSource {
	return &ScanSource{client: client, key: key}
}

// Next blocks until a scan arrives or ctx is done. Malformed payloads are
// returned as errors so the consumer can log and move on.
func (s *ScanSource) Next(ctx context.Context) (domain.ScanEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ScanEvent{}, err
		}

		res, err := s.client.BLPop(ctx, blockTimeout, s.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return domain.ScanEvent{}, ctx.Err()
			}
			return domain.ScanEvent{}, fmt.Errorf("scan source: %w", err)
		}

		// res is [key, value].
		return DecodeScan([]byte(res[1]))
	}
}

// Push enqueues a scan; used by the reader simulator and tests.
func (s *ScanSource) Push(ctx context.Context, m ScanMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}
	return s.client.RPush(ctx, s.key, payload).Err()
}

// DecodeScan parses one ScanMessage payload.
func DecodeScan(payload []byte) (domain.ScanEvent, error) {
	var m ScanMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return domain.ScanEvent{}, fmt.Errorf("decode scan: %w", err)
	}
	if m.TokenID == "" {
		return domain.ScanEvent{}, fmt.Errorf("decode scan: %w: missing token_id", domain.ErrInvalidTokenID)
	}
	return m.ToDomain(), nil
}
