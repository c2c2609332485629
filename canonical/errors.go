/*
errors.go - The rejection and failure taxonomy for the pipeline

PURPOSE:
  All error types in one place. Each pipeline stage has its own error
  type carrying a Kind, so callers can report per-row rejections with
  machine-readable reasons and the upload surface can translate them
  for the uploader.

ERROR CATEGORIES:
  1. ParseError     - structural extraction failed (whole file)
  2. NormalizeError - a single row could not become a canonical record
  3. SinkError      - the harmonized history could not be appended safely
  4. EngineError    - a commission computation cannot proceed

PROPAGATION POLICY:
  Parse and normalize failures are PER-ROW: a batch completes with
  explicit accepted/rejected/duplicate counts. Only file-level
  unreadability or sink atomicity failures abort an upload. Engine
  errors are fatal to one (rep, product line, month) computation only.

USAGE:
  var nerr *canonical.NormalizeError
  if errors.As(err, &nerr) && nerr.Kind == canonical.NormalizeUnmappedService {
      // surface to the uploader for manual mapping
  }
*/
package canonical

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when configuration or records are absent.
	ErrNotFound = errors.New("not found")

	// ErrTierOrder is returned when a tier list is not strictly
	// ascending by threshold.
	ErrTierOrder = errors.New("tier thresholds must be strictly ascending")
)

// =============================================================================
// PARSE ERRORS - Structural extraction failures
// =============================================================================

type ParseKind string

const (
	ParseUnrecognizedLayout ParseKind = "UnrecognizedLayout"
	ParseUnreadable         ParseKind = "Unreadable"
	ParseTooLarge           ParseKind = "TooLarge"
)

type ParseError struct {
	Kind ParseKind
	File string
	Err  error
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("parse %s: %s: %s", e.File, e.Kind, e.Msg)
	}
	return fmt.Sprintf("parse %s: %s: %v", e.File, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// =============================================================================
// NORMALIZE ERRORS - Per-row rejections
// =============================================================================

type NormalizeKind string

const (
	NormalizeMissingField         NormalizeKind = "MissingField"
	NormalizeBadNumeric           NormalizeKind = "BadNumeric"
	NormalizeUnmappedService      NormalizeKind = "UnmappedService"
	NormalizeMissingPeriodContext NormalizeKind = "MissingPeriodContext"
	NormalizeNegativeAmount       NormalizeKind = "NegativeAmount"
)

type NormalizeError struct {
	Kind   NormalizeKind
	Field  string
	Row    int
	Detail string
}

func (e *NormalizeError) Error() string {
	msg := fmt.Sprintf("normalize row %d: %s", e.Row, e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// =============================================================================
// SINK ERRORS - Harmonized history append failures
// =============================================================================

type SinkKind string

const (
	// SinkAborted is a failed batch with nothing committed: the store
	// rolled back cleanly and the upload can simply be retried.
	SinkAborted SinkKind = "Aborted"
	// SinkPartialCommit is a failed batch with confirmed inserts: some
	// records landed before the failure, so the re-upload relies on
	// hash dedup to skip them.
	SinkPartialCommit SinkKind = "PartialCommit"
)

type SinkError struct {
	Kind     SinkKind
	Inserted int
	Err      error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s after %d inserts: %v", e.Kind, e.Inserted, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// =============================================================================
// ENGINE ERRORS - Commission computation failures
// =============================================================================

type EngineKind string

const (
	EngineNoTierConfig EngineKind = "NoTierConfig"
)

type EngineError struct {
	Kind EngineKind
	Rep  RepID
	Line ProductLine
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("commission engine %s for rep %q line %q", e.Kind, e.Rep, e.Line)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRejection reports whether the error is a per-row rejection that the
// batch should record and continue past, rather than abort on.
func IsRejection(err error) bool {
	var nerr *NormalizeError
	return errors.As(err, &nerr)
}

// IsNotFound reports whether the error indicates absent data or config.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
