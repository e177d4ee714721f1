// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu    sync.Mutex
	execs map[string]*ExecutionRecord  // "sid\x00eid"
	items map[string]*ItemResultRecord // "eid\x00iid"

	// FailPuts, when set, makes every write return the given error. Used to
	// exercise best-effort persistence paths.
	FailPuts error

	// Write counters, readable by tests.
	PutExecutionCalls    int
	UpdateExecutionCalls int
	PutItemResultCalls   int
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		execs: make(map[string]*ExecutionRecord),
		items: make(map[string]*ItemResultRecord),
	}
}

func memKey(a, b string) string { return a + "\x00" + b }

func (s *MemoryStore) PutExecution(_ context.Context, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutExecutionCalls++
	if s.FailPuts != nil {
		return s.FailPuts
	}
	cp := *rec
	s.execs[memKey(rec.SessionID, rec.ExecutionID)] = &cp
	return nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, sessionID, executionID string, mutate func(*ExecutionRecord)) (*ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateExecutionCalls++
	if s.FailPuts != nil {
		return nil, s.FailPuts
	}
	rec, ok := s.execs[memKey(sessionID, executionID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	mutate(&cp)
	s.execs[memKey(sessionID, executionID)] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) PutItemResult(_ context.Context, rec *ItemResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutItemResultCalls++
	if s.FailPuts != nil {
		return s.FailPuts
	}
	cp := *rec
	s.items[memKey(rec.ExecutionID, rec.ItemID)] = &cp
	return nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, sessionID string) ([]*ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ExecutionRecord
	for _, rec := range s.execs {
		if rec.SessionID == sessionID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) ListItemResults(_ context.Context, executionID string) ([]*ItemResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ItemResultRecord
	for _, rec := range s.items {
		if rec.ExecutionID == executionID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// Execution returns a stored execution record, or nil.
func (s *MemoryStore) Execution(sessionID, executionID string) *ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.execs[memKey(sessionID, executionID)]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (s *MemoryStore) Close() error { return nil }
