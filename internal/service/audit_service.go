// Package service contains the application services wiring the domain to
// the outbound adapters.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actiongate/actiongate/internal/domain/audit"
)

// AuditService provides async action logging with a buffered channel and a
// single background worker. Invocations are logged without blocking the
// interception hot path; because every entry flows through the one worker's
// FIFO channel, entries reach the store in Record order, so the queued entry
// for a pending action always precedes its decision and terminal entries.
type AuditService struct {
	store         audit.Store
	entryChan     chan audit.Entry
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	// Backpressure: a full channel blocks Record up to sendTimeout, then
	// drops. Drops are counted for alerting; losing an entry is preferable
	// to stalling every organization's requests on a slow store.
	channelSize int
	sendTimeout time.Duration
	dropCount   atomic.Int64

	warningThreshold int          // channel depth percent that triggers a warning
	lastWarning      atomic.Int64 // rate-limits warning logs (Unix nanos)

	dropHook func() // called once per dropped entry
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets the number of entries to batch before writing.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		s.batchSize = size
	}
}

// WithFlushInterval sets the interval to flush pending entries.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		s.flushInterval = interval
	}
}

// WithChannelSize sets the size of the entry channel buffer.
func WithChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		s.entryChan = make(chan audit.Entry, size)
		s.channelSize = size
	}
}

// WithSendTimeout sets the backpressure timeout.
// 0 = drop immediately when full, >0 = block up to this duration first.
func WithSendTimeout(timeout time.Duration) AuditOption {
	return func(s *AuditService) {
		s.sendTimeout = timeout
	}
}

// WithWarningThreshold sets the channel depth warning percentage (0-100).
func WithWarningThreshold(percent int) AuditOption {
	return func(s *AuditService) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		s.warningThreshold = percent
	}
}

// WithDropHook sets a callback invoked once per dropped entry, for feeding a
// metrics counter. Must not block.
func WithDropHook(hook func()) AuditOption {
	return func(s *AuditService) {
		s.dropHook = hook
	}
}

// NewAuditService creates a new AuditService with the given store and options.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	defaultChannelSize := 1000
	s := &AuditService{
		store:            store,
		entryChan:        make(chan audit.Entry, defaultChannelSize),
		logger:           logger,
		batchSize:        100,
		flushInterval:    time.Second,
		channelSize:      defaultChannelSize,
		sendTimeout:      100 * time.Millisecond,
		warningThreshold: 80,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the background worker that batches and writes entries.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record sends an action log entry to the background worker.
// Fast non-blocking send first, then blocks up to sendTimeout; if the
// timeout expires, the entry is dropped and counted.
func (s *AuditService) Record(entry audit.Entry) {
	if s.warningThreshold > 0 {
		depth := len(s.entryChan)
		threshold := s.channelSize * s.warningThreshold / 100
		if depth >= threshold {
			s.warnChannelDepth(depth)
		}
	}

	select {
	case s.entryChan <- entry:
		return
	default:
		// Channel full - apply backpressure.
	}

	if s.sendTimeout <= 0 {
		s.recordDrop(entry)
		return
	}

	select {
	case s.entryChan <- entry:
	case <-time.After(s.sendTimeout):
		s.recordDrop(entry)
	}
}

func (s *AuditService) recordDrop(entry audit.Entry) {
	drops := s.dropCount.Add(1)
	if s.dropHook != nil {
		s.dropHook()
	}
	s.logger.Warn("action log entry dropped",
		"capability", entry.CapabilityName,
		"org_id", entry.OrganizationID,
		"outcome", entry.Outcome,
		"total_drops", drops,
	)
}

// warnChannelDepth logs a capacity warning, rate-limited to once per second.
func (s *AuditService) warnChannelDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()

	if now-last < int64(time.Second) {
		return
	}

	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("action log channel approaching capacity",
			"depth", depth,
			"capacity", s.channelSize,
			"percent", depth*100/s.channelSize,
		)
	}
}

// DroppedEntries returns the total dropped entries (for metrics/alerting).
func (s *AuditService) DroppedEntries() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns current channel usage (for monitoring).
func (s *AuditService) ChannelDepth() int {
	return len(s.entryChan)
}

// ChannelCapacity returns the channel buffer size (for monitoring).
func (s *AuditService) ChannelCapacity() int {
	return s.channelSize
}

// Stop signals the worker to stop and waits for it to finish.
// Pending entries are flushed before returning.
func (s *AuditService) Stop() {
	close(s.entryChan)
	s.wg.Wait()
}

// worker is the background goroutine that collects and flushes entries.
func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-s.entryChan:
			if !ok {
				// Channel closed - final flush with bounded deadline.
				if len(batch) > 0 {
					flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.flush(flushCtx, batch)
					flushCancel()
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Context cancelled - drain channel and flush with bounded deadline.
			for entry := range s.entryChan {
				batch = append(batch, entry)
			}
			if len(batch) > 0 {
				flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.flush(flushCtx, batch)
				flushCancel()
			}
			return
		}
	}
}

// flush writes a batch of entries to the store.
// Errors are logged but not propagated - logging must not fail invocations.
func (s *AuditService) flush(ctx context.Context, batch []audit.Entry) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write action log batch",
			"error", err,
			"count", len(batch),
		)
	}
}
