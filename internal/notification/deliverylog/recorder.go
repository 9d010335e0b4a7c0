// Package deliverylog appends one audit entry per dispatch.
package deliverylog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"notification-dispatch/internal/models"
)

// Recorder appends an entry. Entries are never updated after a write.
type Recorder interface {
	Record(ctx context.Context, entry models.DeliveryLogEntry) error
}

// Reader looks an entry up by ID for re-sends.
type Reader interface {
	Get(ctx context.Context, id string) (*models.DeliveryLogEntry, error)
}

var ErrEntryNotFound = errors.New("delivery log entry not found")

// SinkError names the sink that failed inside a Multi.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("%s: %v", e.Sink, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

type namedRecorder struct {
	name string
	rec  Recorder
}

// Multi writes to every sink and joins the failures. One failing sink does
// not stop the others.
type Multi struct {
	sinks []namedRecorder
}

func NewMulti() *Multi {
	return &Multi{}
}

func (m *Multi) Add(name string, rec Recorder) *Multi {
	m.sinks = append(m.sinks, namedRecorder{name: name, rec: rec})
	return m
}

func (m *Multi) Record(ctx context.Context, entry models.DeliveryLogEntry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.rec.Record(ctx, entry); err != nil {
			errs = append(errs, &SinkError{Sink: s.name, Err: err})
		}
	}
	return errors.Join(errs...)
}

// MemoryRecorder keeps entries in process; used by the CLI dry-run mode and tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []models.DeliveryLogEntry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, entry models.DeliveryLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryRecorder) Get(_ context.Context, id string) (*models.DeliveryLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			e := m.entries[i]
			return &e, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Entries returns a copy in write order.
func (m *MemoryRecorder) Entries() []models.DeliveryLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DeliveryLogEntry(nil), m.entries...)
}
