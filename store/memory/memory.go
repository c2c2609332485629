/*
Package memory provides an in-memory implementation of the storage
interfaces for tests and demos.

Semantics match store/sqlite: hash-keyed dedup on insert, idempotent
crossing writes, ErrNotFound on absent configuration. A sync.RWMutex
stands in for the database's concurrency control.
*/
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/commission"
	"github.com/steppingstone/commission-engine/normalize"
)

// Store implements canonical.RecordStore and commission.ConfigStore
// in memory.
type Store struct {
	mu sync.RWMutex

	records map[string]canonical.Record // by row hash
	order   []string                    // insertion order of hashes

	tiers      map[string]commission.TierList  // rep|line
	objectives map[string]commission.Objective // rep|line|year-month
	crossings  map[string]commission.Crossing  // Crossing.Key()
	services   normalize.ServiceMap
	reps       normalize.RepDirectory
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records:    map[string]canonical.Record{},
		tiers:      map[string]commission.TierList{},
		objectives: map[string]commission.Objective{},
		crossings:  map[string]commission.Crossing{},
		services:   normalize.ServiceMap{},
	}
}

func tierKey(rep canonical.RepID, line canonical.ProductLine) string {
	return fmt.Sprintf("%s|%s", rep, line)
}

func objectiveKey(rep canonical.RepID, line canonical.ProductLine, m canonical.Month) string {
	return fmt.Sprintf("%s|%s|%s", rep, line, m)
}

// =============================================================================
// RECORD STORE
// =============================================================================

// InsertBatch appends records, skipping hashes already present.
func (s *Store) InsertBatch(ctx context.Context, records []canonical.Record) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, duplicates := 0, 0
	for _, r := range records {
		if _, ok := s.records[r.RowHash]; ok {
			duplicates++
			continue
		}
		s.records[r.RowHash] = r
		s.order = append(s.order, r.RowHash)
		inserted++
	}
	return inserted, duplicates, nil
}

// HashExists reports whether a row hash is already stored.
func (s *Store) HashExists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[hash]
	return ok, nil
}

// RecordsForMonth returns one rep-line-month slice of the history.
func (s *Store) RecordsForMonth(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, m canonical.Month) ([]canonical.Record, error) {
	return s.RecordsInRange(ctx, rep, line, m, m)
}

// RecordsInRange returns records for [from, to] inclusive, ordered by
// date then invoice reference.
func (s *Store) RecordsInRange(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, from, to canonical.Month) ([]canonical.Record, error) {
	return s.Query(ctx, canonical.RecordFilter{Rep: &rep, Line: &line, From: &from, To: &to})
}

// Query returns records matching the filter, ordered by date.
func (s *Store) Query(ctx context.Context, f canonical.RecordFilter) ([]canonical.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []canonical.Record
	for _, hash := range s.order {
		r := s.records[hash]
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	canonical.SortByDate(out)
	return out, nil
}

// =============================================================================
// CONFIG STORE
// =============================================================================

// TierList returns the tier configuration for a rep and line.
func (s *Store) TierList(ctx context.Context, rep canonical.RepID, line canonical.ProductLine) (commission.TierList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.tiers[tierKey(rep, line)]
	if !ok {
		return commission.TierList{}, fmt.Errorf("tiers for rep %q line %q: %w", rep, line, canonical.ErrNotFound)
	}
	return list, nil
}

// SaveTierList validates and replaces a tier configuration.
func (s *Store) SaveTierList(ctx context.Context, list commission.TierList) error {
	if err := list.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tiers[tierKey(list.Rep, list.Line)] = list
	return nil
}

// Objective returns the target for a rep, line, and period.
func (s *Store) Objective(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, period canonical.Month) (commission.Objective, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objectives[objectiveKey(rep, line, period)]
	if !ok {
		return commission.Objective{}, fmt.Errorf("objective for rep %q line %q %s: %w",
			rep, line, period, canonical.ErrNotFound)
	}
	return obj, nil
}

// SaveObjective creates or replaces an objective.
func (s *Store) SaveObjective(ctx context.Context, obj commission.Objective) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objectives[objectiveKey(obj.Rep, obj.Line, obj.Period)] = obj
	return nil
}

// Crossings returns the recorded crossings for a rep, line, and year.
func (s *Store) Crossings(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, year int) ([]commission.Crossing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []commission.Crossing
	for _, c := range s.crossings {
		if c.Rep == rep && c.Line == line && c.EffectiveDate.Year() == year {
			out = append(out, c)
		}
	}
	return out, nil
}

// SaveCrossing records a crossing if none exists for its key.
func (s *Store) SaveCrossing(ctx context.Context, c commission.Crossing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.crossings[c.Key()]; ok {
		return false, nil
	}
	s.crossings[c.Key()] = c
	return true, nil
}

// Services returns the service-to-product mapping snapshot.
func (s *Store) Services(ctx context.Context) (normalize.ServiceMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(normalize.ServiceMap, len(s.services))
	for k, v := range s.services {
		out[k] = v
	}
	return out, nil
}

// SaveService creates or replaces one service mapping.
func (s *Store) SaveService(ctx context.Context, m normalize.ServiceMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.services[m.Label] = m
	return nil
}

// Reps returns the rep directory snapshot.
func (s *Store) Reps(ctx context.Context) (normalize.RepDirectory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(normalize.RepDirectory, len(s.reps))
	copy(out, s.reps)
	return out, nil
}

// SaveRepMapping appends one rep mapping.
func (s *Store) SaveRepMapping(ctx context.Context, m normalize.RepMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reps = append(s.reps, m)
	return nil
}
