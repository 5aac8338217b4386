package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

const feedBuffer = 16

// CheckInFeed fans ledger appends out to live subscribers over Redis pub/sub.
// Delivery is at-most-once; History stays the source of truth.
// Channel format: checkins:<owner_id>
type CheckInFeed struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewCheckInFeed(client *redis.Client, log zerolog.Logger) *CheckInFeed {
	return &CheckInFeed{client: client, log: log}
}

func (f *CheckInFeed) Publish(ctx context.Context, e *domain.CheckInEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode check-in: %w", err)
	}
	if err := f.client.Publish(ctx, feedChannel(e.OwnerID), payload).Err(); err != nil {
		return fmt.Errorf("publish check-in: %w", err)
	}
	return nil
}

// Subscribe returns a channel of the owner's new check-ins. The channel is
// closed when ctx ends or cancel is called.
func (f *CheckInFeed) Subscribe(ctx context.Context, ownerID string) (<-chan *domain.CheckInEvent, func(), error) {
	sub := f.client.Subscribe(ctx, feedChannel(ownerID))
	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe check-ins: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *domain.CheckInEvent, feedBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e domain.CheckInEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					f.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed feed message")
					continue
				}
				select {
				case out <- &e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

func feedChannel(ownerID string) string {
	return "checkins:" + ownerID
}
