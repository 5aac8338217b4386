package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/api/metrics"
	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
	processTimeout = 10 * time.Second
)

// Dispatcher routes reader scans to a fixed set of workers using consistent
// hashing on the token id, so scans of one card are processed in order and a
// bounced tap always lands on the same worker as the original.
type Dispatcher struct {
	workers   []chan domain.ScanEvent
	processor ports.ScanProcessor
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, processor ports.ScanProcessor, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:   make([]chan domain.ScanEvent, numWorkers),
		processor: processor,
		log:       log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.ScanEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Once ctx is cancelled each worker
// processes the scans already buffered on its channel and then returns.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue hands a scan to the worker responsible for its token. It never
// blocks: a full worker channel yields domain.ErrScanQueueFull.
func (d *Dispatcher) Enqueue(scan domain.ScanEvent) error {
	idx := d.shardIndex(scan.TokenID)
	select {
	case d.workers[idx] <- scan:
		metrics.ScanQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
		return nil
	default:
		return domain.ErrScanQueueFull
	}
}

// EnqueueBatch enqueues scans in order and reports how many were accepted
// before the first rejection.
func (d *Dispatcher) EnqueueBatch(scans []domain.ScanEvent) (int, error) {
	for i, s := range scans {
		if err := d.Enqueue(s); err != nil {
			return i, err
		}
	}
	return len(scans), nil
}

// Consume feeds scans from src into the workers until ctx is done. Decode
// failures are logged and skipped; a full queue is logged and the scan
// dropped, since readers re-emit on the next tap.
func (d *Dispatcher) Consume(ctx context.Context, src ports.ScanSource) error {
	for {
		scan, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, ErrSourceClosed) {
				return nil
			}
			d.log.Warn().Err(err).Msg("scan source error")
			continue
		}
		if err := d.Enqueue(scan); err != nil {
			d.log.Warn().Err(err).
				Str("token_id", scan.TokenID).
				Str("device_id", scan.DeviceID).
				Msg("scan dropped")
		}
	}
}

// shardIndex maps a token id deterministically to a worker index. Ids are
// normalised first so "04:a2" and "04-A2" share a worker.
func (d *Dispatcher) shardIndex(tokenID string) int {
	if norm, err := domain.NormalizeTokenID(tokenID); err == nil {
		tokenID = norm
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(tokenID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.ScanEvent) {
	defer d.wg.Done()
	depth := metrics.ScanQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx, id, depth, ch)
			return
		case scan, ok := <-ch:
			if !ok {
				return
			}
			d.process(ctx, id, depth, scan)
		}
	}
}

// drain processes whatever is buffered on ch without waiting for more.
func (d *Dispatcher) drain(ctx context.Context, id int, depth prometheus.Gauge, ch <-chan domain.ScanEvent) {
	drained := 0
	defer func() {
		if drained > 0 {
			d.log.Info().Int("worker_id", id).Int("scans", drained).Msg("drained buffered scans")
		}
	}()
	for {
		select {
		case scan, ok := <-ch:
			if !ok {
				return
			}
			d.process(ctx, id, depth, scan)
			drained++
		default:
			return
		}
	}
}

// process runs one accepted scan. The scan was already acknowledged to the
// reader, so it is not tied to the worker's cancellation.
func (d *Dispatcher) process(ctx context.Context, id int, depth prometheus.Gauge, scan domain.ScanEvent) {
	depth.Dec()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
	defer cancel()
	if _, err := d.processor.Process(pctx, scan); err != nil {
		d.log.Error().Err(err).
			Str("token_id", scan.TokenID).
			Str("device_id", scan.DeviceID).
			Int("worker_id", id).
			Msg("scan processing failed")
	}
}
