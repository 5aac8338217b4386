package queue

import (
	"context"
	"errors"

	"github.com/99minutos/attendance-system/internal/core/domain"
)

// ErrSourceClosed is returned by a ScanSource that will produce no more scans.
var ErrSourceClosed = errors.New("scan source closed")

// ChannelSource adapts a Go channel to ports.ScanSource. It stands in for the
// reader bridge in simulations and tests.
type ChannelSource struct {
	ch <-chan domain.ScanEvent
}

func NewChannelSource(ch <-chan domain.ScanEvent) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Next(ctx context.Context) (domain.ScanEvent, error) {
	select {
	case <-ctx.Done():
		return domain.ScanEvent{}, ctx.Err()
	case scan, ok := <-s.ch:
		if !ok {
			return domain.ScanEvent{}, ErrSourceClosed
		}
		return scan, nil
	}
}
