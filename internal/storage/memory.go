package storage

import (
	"context"
	"sync"
)

// ensure Memory implements Backend
var _ Backend = (*Memory)(nil)

// Memory is an in-process Backend. It backs the run summary when no audit
// database is configured and is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	records []*FetchRecord
}

// NewMemory returns an empty in-memory Backend.
func NewMemory() *Memory {
	return &Memory{}
}

// Save keeps a copy of record without its body and headers, matching what
// the persistent backends store.
func (m *Memory) Save(ctx context.Context, record *FetchRecord) error {
	stored := *record
	stored.Body = nil
	stored.Headers = nil

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, &stored)
	return nil
}

// Query returns matching records newest first, like the database backends.
func (m *Memory) Query(ctx context.Context, filter Filter) ([]*FetchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*FetchRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if filter.Match(m.records[i]) {
			matched = append(matched, m.records[i])
		}
	}
	return Paginate(matched, filter), nil
}

func (m *Memory) Close() error { return nil }

// Paginate applies the filter's Offset and Limit to an already ordered slice.
func Paginate(records []*FetchRecord, filter Filter) []*FetchRecord {
	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return []*FetchRecord{}
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(records) {
		records = records[:filter.Limit]
	}
	return records
}
