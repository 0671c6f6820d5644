package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgate/llmgate/adapters/metrics"
	"github.com/llmgate/llmgate/domain/usage"
	"github.com/llmgate/llmgate/ports"
)

// LocalUsageRecorder buffers usage records and writes them to the store in
// batches. Record never blocks the request path: when the buffer is full the
// oldest record is dropped and counted, not the caller stalled.
type LocalUsageRecorder struct {
	store         ports.UsageStore
	log           zerolog.Logger
	metrics       *metrics.Collector
	batchSize     int
	flushInterval time.Duration
	maxBuffer     int

	mu     sync.Mutex
	buffer []usage.Record

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// RecorderOptions configures the local usage recorder. Zero values fall
// back to defaults.
type RecorderOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxBuffer     int
	Metrics       *metrics.Collector
	Log           zerolog.Logger
}

// NewLocalUsageRecorder creates a recorder and starts its flush loop.
func NewLocalUsageRecorder(store ports.UsageStore, opts RecorderOptions) *LocalUsageRecorder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 10 * time.Second
	}
	if opts.MaxBuffer <= 0 {
		opts.MaxBuffer = 10_000
	}

	r := &LocalUsageRecorder{
		store:         store,
		log:           opts.Log,
		metrics:       opts.Metrics,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		maxBuffer:     opts.MaxBuffer,
		buffer:        make([]usage.Record, 0, opts.BatchSize),
		stopCh:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record queues a usage record for batched persistence.
func (r *LocalUsageRecorder) Record(rec usage.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buffer) >= r.maxBuffer {
		r.buffer = r.buffer[1:]
		if r.metrics != nil {
			r.metrics.RecorderQueueDrops.Inc()
		}
		r.log.Warn().Str("record_id", rec.ID).Msg("usage buffer full, dropping oldest record")
	}

	r.buffer = append(r.buffer, rec)

	if len(r.buffer) >= r.batchSize {
		r.flushAsyncLocked()
	}
}

// Flush writes all queued records synchronously.
func (r *LocalUsageRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.takeLocked()
	r.mu.Unlock()

	return r.write(ctx, batch)
}

// takeLocked removes and returns the current buffer contents.
func (r *LocalUsageRecorder) takeLocked() []usage.Record {
	if len(r.buffer) == 0 {
		return nil
	}
	batch := make([]usage.Record, len(r.buffer))
	copy(batch, r.buffer)
	r.buffer = r.buffer[:0]
	return batch
}

// flushAsyncLocked hands the current buffer to a background write so the
// request path never waits on the database.
func (r *LocalUsageRecorder) flushAsyncLocked() {
	batch := r.takeLocked()
	if batch == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.write(ctx, batch)
	}()
}

func (r *LocalUsageRecorder) write(ctx context.Context, batch []usage.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if err := r.store.InsertBatch(ctx, batch); err != nil {
		if r.metrics != nil {
			r.metrics.RecorderFlushErrors.Inc()
		}
		r.log.Error().Err(err).Int("count", len(batch)).Msg("usage batch write failed")
		return err
	}
	return nil
}

func (r *LocalUsageRecorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			r.Flush(ctx)
			cancel()
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the flush loop and writes any remaining records.
func (r *LocalUsageRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = r.Flush(ctx)
	})
	return err
}

// Ensure interface compliance.
var _ ports.UsageRecorder = (*LocalUsageRecorder)(nil)
