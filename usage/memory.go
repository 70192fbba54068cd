package usage

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore is an in-memory Store for tests and development.
type memoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
	order   []uuid.UUID // append order, oldest first
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[uuid.UUID]Record),
	}
}

func copyRecord(r Record) Record {
	r.InputData = maps.Clone(r.InputData)
	r.ResultData = maps.Clone(r.ResultData)
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		r.CompletedAt = &completed
	}
	return r
}

func (s *memoryStore) Append(ctx context.Context, userID, toolID uuid.UUID, input map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := Record{
		ID:        uuid.New(),
		UserID:    userID,
		ToolID:    toolID,
		Status:    StatusStarted,
		InputData: maps.Clone(input),
		StartedAt: time.Now().UTC(),
	}
	s.records[record.ID] = record
	s.order = append(s.order, record.ID)

	out := copyRecord(record)
	return &out, nil
}

func (s *memoryStore) Update(ctx context.Context, recordID, userID uuid.UUID, status Status, result map[string]any) (*Record, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if record.UserID != userID {
		return nil, ErrNotRecordOwner
	}
	if record.Status.Terminal() {
		return nil, ErrRecordFinalized
	}

	record.Status = status
	if result != nil {
		record.ResultData = maps.Clone(result)
	}
	if status.Terminal() {
		now := time.Now().UTC()
		record.CompletedAt = &now
	}
	s.records[recordID] = record

	out := copyRecord(record)
	return &out, nil
}

func (s *memoryStore) Get(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := copyRecord(record)
	return &out, nil
}

func (s *memoryStore) CountSince(ctx context.Context, userID, toolID uuid.UUID, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if record.UserID == userID && record.ToolID == toolID && !record.StartedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) StatsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]ToolStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uuid.UUID]int64)
	for _, record := range s.records {
		if record.UserID == userID && !record.StartedAt.Before(since) {
			counts[record.ToolID]++
		}
	}

	stats := make([]ToolStat, 0, len(counts))
	for toolID, count := range counts {
		stats = append(stats, ToolStat{ToolID: toolID, Count: count})
	}
	slices.SortFunc(stats, func(a, b ToolStat) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		}
		return 0
	})
	return stats, nil
}

func (s *memoryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for i := len(s.order) - 1; i >= 0; i-- {
		record := s.records[s.order[i]]
		if record.UserID != userID {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		records = append(records, copyRecord(record))
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}
