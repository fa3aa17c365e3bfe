// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/actiongate/actiongate/internal/domain/audit"
)

const defaultRecentCap = 10000

// AuditStore implements audit.Store writing JSON lines to stdout or a file,
// with a bounded in-memory ring buffer serving queries. Entries whose
// AttemptKey was already stored are silently dropped, so a retried caller
// cannot double-record the same logical attempt.
type AuditStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	// recent is a bounded ring buffer of the most recent entries.
	recent []audit.Entry
	cap    int
	seen   map[uint64]struct{}
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewAuditStore creates an audit store writing to stdout.
// An optional capacity parameter sets the ring buffer size.
func NewAuditStore(capacity ...int) *AuditStore {
	return NewAuditStoreWithWriter(os.Stdout, capacity...)
}

// NewAuditStoreWithWriter creates an audit store writing to the given writer.
func NewAuditStoreWithWriter(w io.Writer, capacity ...int) *AuditStore {
	cap := resolveCapacity(capacity...)
	return &AuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.Entry, 0, cap),
		cap:     cap,
		seen:    make(map[uint64]struct{}),
	}
}

// Append stores entries in arrival order, writing each as a JSON line and
// keeping it in the ring buffer. Duplicate attempt keys are dropped.
func (s *AuditStore) Append(ctx context.Context, entries ...audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.AttemptKey != 0 {
			if _, dup := s.seen[e.AttemptKey]; dup {
				continue
			}
			s.seen[e.AttemptKey] = struct{}{}
		}
		if err := s.encoder.Encode(e); err != nil {
			return err
		}
		if len(s.recent) >= s.cap {
			// Shift left, drop oldest.
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = e
		} else {
			s.recent = append(s.recent, e)
		}
	}
	return nil
}

// Flush forces pending entries to storage.
// No-op for this implementation (no buffering).
func (s *AuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close releases resources.
func (s *AuditStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Query retrieves entries matching the filter from the ring buffer, newest
// first. The cursor is the id of the last entry of the previous page.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	// Skip entries until just past the cursor position.
	skipping := filter.Cursor != ""

	var result []audit.Entry
	for i := len(s.recent) - 1; i >= 0; i-- {
		e := s.recent[i]
		if skipping {
			if e.ID == filter.Cursor {
				skipping = false
			}
			continue
		}
		if !matchesFilter(e, filter) {
			continue
		}
		if len(result) == limit {
			// One past the page: there is a next page starting after the
			// last returned entry.
			return result, result[len(result)-1].ID, nil
		}
		result = append(result, e)
	}
	return result, "", nil
}

func matchesFilter(e audit.Entry, filter audit.Filter) bool {
	if e.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.CapabilityName != "" && e.CapabilityName != filter.CapabilityName {
		return false
	}
	if filter.Category != "" && e.Category != filter.Category {
		return false
	}
	if filter.Outcome != "" && e.Outcome != filter.Outcome {
		return false
	}
	if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}

// Compile-time interface verification.
var (
	_ audit.Store      = (*AuditStore)(nil)
	_ audit.QueryStore = (*AuditStore)(nil)
)
