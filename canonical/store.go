/*
store.go - Persistence interface for the harmonized history

PURPOSE:
  Defines the seam between the pipeline and the database. The record
  store is APPEND-ONLY with hash-keyed deduplication: there is no
  Update and no per-record Delete, corrections arrive as new records.

ATOMIC BATCHES:
  InsertBatch is all-or-nothing. An upload of 500 rows either lands
  completely or not at all; duplicates within the batch are counted
  and skipped without failing the batch.

CONCURRENCY CONTRACT:
  Implementations must serialize the per-record dedup check so that
  concurrent uploads of overlapping data cannot double-insert: either
  a store-level uniqueness constraint on the row hash, or an explicit
  mutual-exclusion scope around check-and-insert.

IMPLEMENTATIONS:
  - store/sqlite: production store, unique index on row_hash
  - store/memory: mutex-guarded in-memory store for tests
*/
package canonical

import "context"

// =============================================================================
// RECORD STORE - Append-only harmonized history
// =============================================================================

// RecordStore persists canonical records keyed by row hash.
type RecordStore interface {
	// InsertBatch appends records atomically. Records whose hash already
	// exists (in the store or earlier in the batch) are skipped and
	// counted as duplicates. Either every new record lands or none do.
	InsertBatch(ctx context.Context, records []Record) (inserted, duplicates int, err error)

	// HashExists reports whether a row hash is already harmonized.
	HashExists(ctx context.Context, hash string) (bool, error)

	// RecordsForMonth returns a rep's records for one product line and
	// month, ordered by date then invoice reference.
	RecordsForMonth(ctx context.Context, rep RepID, line ProductLine, m Month) ([]Record, error)

	// RecordsInRange returns records for [from, to] inclusive, ordered
	// by date then invoice reference.
	RecordsInRange(ctx context.Context, rep RepID, line ProductLine, from, to Month) ([]Record, error)

	// Query returns records matching the filter, ordered by date.
	// This is the read-only aggregation surface the reporting layer uses.
	Query(ctx context.Context, f RecordFilter) ([]Record, error)
}

// RecordFilter narrows a record query. Nil fields match everything.
type RecordFilter struct {
	Rep  *RepID
	Line *ProductLine
	From *Month
	To   *Month
}

// Matches reports whether a record satisfies the filter.
func (f RecordFilter) Matches(r Record) bool {
	if f.Rep != nil && r.Rep != *f.Rep {
		return false
	}
	if f.Line != nil && r.Line != *f.Line {
		return false
	}
	if f.From != nil && r.Month().Before(*f.From) {
		return false
	}
	if f.To != nil && r.Month().After(*f.To) {
		return false
	}
	return true
}
