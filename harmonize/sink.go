/*
Package harmonize lands normalized records in the shared record store.

PURPOSE:
  The sink is the single write path into the harmonized record set.
  It stamps provenance, enforces content-hash dedup through the store,
  and reports exactly what one upload did: inserted, skipped as
  duplicate, rejected. Re-uploading the same file is therefore safe
  and changes nothing.

KEY CONCEPTS:
  - Sink: validate + hash + stamp + atomic batch insert
  - Pipeline: parse output -> normalize -> sink, the whole upload path
  - BatchResult: the per-upload accounting the API reports back

DESIGN PRINCIPLES:
  - A duplicate is NOT an error. Agencies resend statements.
  - A rejection is NOT an error either. It is per-row feedback.
  - A store failure IS an error. A clean rollback is labeled Aborted
    (safe to retry as-is); a failure with confirmed inserts is labeled
    PartialCommit so the caller knows dedup will absorb the re-upload.

SEE ALSO:
  - normalize/normalizer.go: where rejections originate
  - canonical/store.go: the RecordStore the sink writes through
*/
package harmonize

import (
	"context"
	"errors"
	"time"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/normalize"
	"github.com/steppingstone/commission-engine/parse"
)

// =============================================================================
// BATCH RESULT - Per-upload accounting
// =============================================================================

// BatchResult reports what one upload batch did to the record set.
type BatchResult struct {
	Inserted   int
	Duplicates int
	Skipped    int
	Rejections []normalize.Rejection
}

// Rejected is the number of rows rejected with a reason.
func (r BatchResult) Rejected() int { return len(r.Rejections) }

// =============================================================================
// SINK
// =============================================================================

// Sink appends normalized records to the harmonized record set.
type Sink struct {
	store canonical.RecordStore
	now   func() time.Time
}

// NewSink wires a sink onto a record store.
func NewSink(store canonical.RecordStore) *Sink {
	return &Sink{store: store, now: time.Now}
}

// Append lands a batch of records atomically. Every record is
// validated and hashed before anything is written; records whose hash
// already exists are counted as duplicates, not inserted again.
func (s *Sink) Append(ctx context.Context, records []canonical.Record, sourceFile string) (BatchResult, error) {
	var result BatchResult
	stamped := make([]canonical.Record, 0, len(records))
	uploadedAt := s.now().UTC()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			result.Rejections = append(result.Rejections, normalize.Rejection{Err: err})
			continue
		}
		if rec.RowHash == "" {
			rec.RowHash = rec.ComputeHash()
		}
		rec.SourceFile = sourceFile
		rec.UploadedAt = uploadedAt
		stamped = append(stamped, rec)
	}

	if len(stamped) == 0 {
		return result, nil
	}

	inserted, duplicates, err := s.store.InsertBatch(ctx, stamped)
	result.Inserted = inserted
	result.Duplicates = duplicates
	if err != nil {
		var serr *canonical.SinkError
		if errors.As(err, &serr) {
			return result, err
		}
		// Nothing confirmed means the store rolled back cleanly;
		// only a failure with inserts on record is a partial commit.
		kind := canonical.SinkAborted
		if inserted > 0 {
			kind = canonical.SinkPartialCommit
		}
		return result, &canonical.SinkError{Kind: kind, Inserted: inserted, Err: err}
	}
	return result, nil
}

// =============================================================================
// PIPELINE - The full upload path
// =============================================================================

// Pipeline is the end-to-end upload path: raw rows through a source
// normalizer into the sink.
type Pipeline struct {
	sink *Sink
}

// NewPipeline wires the upload path onto a sink.
func NewPipeline(sink *Sink) *Pipeline {
	return &Pipeline{sink: sink}
}

// Run normalizes an extracted batch and lands the accepted records.
// A failed context requirement (missing attribution period) aborts
// before any row is touched.
func (p *Pipeline) Run(ctx context.Context, rows []parse.RawRow, n normalize.SourceNormalizer, nctx normalize.Context, sourceFile string) (BatchResult, error) {
	outcome, err := normalize.RunBatch(rows, n, nctx)
	if err != nil {
		return BatchResult{}, err
	}

	result, err := p.sink.Append(ctx, outcome.Records, sourceFile)
	result.Skipped = outcome.Skipped
	result.Rejections = append(outcome.Rejections, result.Rejections...)
	return result, err
}
