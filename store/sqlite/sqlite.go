/*
Package sqlite provides the SQLite-backed implementation of the
storage interfaces.

PURPOSE:
  Implements canonical.RecordStore and commission.ConfigStore on
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The harmonized record set is append-only:
  - No UPDATE statements on harmonised_records
  - No per-record DELETE
  - Corrections arrive as new uploads

KEY TABLES:
  harmonised_records:   Immutable canonical sales facts, keyed by hash
  commission_tiers:     Tier lists per rep x product line
  business_objectives:  Monthly targets per rep x product line
  tier_crossings:       One row per (rep, line, year, tier) crossing
  service_mappings:     QuickBooks service label -> product line
  rep_mappings:         Source value -> rep, with validity windows

DEDUPLICATION:
  The UNIQUE primary key on row_hash is what makes re-uploads
  idempotent: the insert runs ON CONFLICT DO NOTHING inside one
  transaction, and rows the conflict swallowed are counted as
  duplicates from RowsAffected.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - canonical/store.go: RecordStore definition
  - commission/store.go: ConfigStore definition
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/commission"
	"github.com/steppingstone/commission-engine/normalize"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

// Store implements both storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) a store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Harmonized canonical records (append-only)
	CREATE TABLE IF NOT EXISTS harmonised_records (
		row_hash TEXT PRIMARY KEY,
		sales_rep TEXT NOT NULL,
		product_line TEXT NOT NULL,
		customer TEXT NOT NULL,
		invoice_ref TEXT NOT NULL,
		sku TEXT,
		record_date TEXT NOT NULL,
		revenue TEXT NOT NULL,
		commission_base TEXT NOT NULL,
		source_file TEXT,
		uploaded_at TEXT NOT NULL
	);

	-- Composite index for the monthly aggregation hot path
	CREATE INDEX IF NOT EXISTS idx_records_rep_line_date
		ON harmonised_records(sales_rep, product_line, record_date);
	CREATE INDEX IF NOT EXISTS idx_records_date
		ON harmonised_records(record_date);

	-- Commission tier lists
	CREATE TABLE IF NOT EXISTS commission_tiers (
		sales_rep TEXT NOT NULL,
		product_line TEXT NOT NULL,
		tier_number INTEGER NOT NULL,
		rate TEXT NOT NULL,
		metric TEXT NOT NULL DEFAULT 'ytd',
		threshold TEXT NOT NULL,
		proration TEXT NOT NULL DEFAULT 'transaction_order',
		PRIMARY KEY (sales_rep, product_line, tier_number)
	);

	-- Monthly business objectives
	CREATE TABLE IF NOT EXISTS business_objectives (
		sales_rep TEXT NOT NULL,
		product_line TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		target_revenue TEXT NOT NULL,
		target_commission TEXT NOT NULL,
		PRIMARY KEY (sales_rep, product_line, year, month)
	);

	-- Threshold crossings. The primary key is what makes recording a
	-- crossing idempotent: recomputing a month hits the conflict and
	-- writes nothing.
	CREATE TABLE IF NOT EXISTS tier_crossings (
		sales_rep TEXT NOT NULL,
		product_line TEXT NOT NULL,
		year INTEGER NOT NULL,
		tier_number INTEGER NOT NULL,
		effective_date TEXT NOT NULL,
		metric_value TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (sales_rep, product_line, year, tier_number)
	);

	-- QuickBooks service label -> product line
	CREATE TABLE IF NOT EXISTS service_mappings (
		label TEXT PRIMARY KEY,
		product_line TEXT NOT NULL,
		item_id TEXT
	);

	-- Source-native value -> rep, with validity windows
	CREATE TABLE IF NOT EXISTS rep_mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		sales_rep TEXT NOT NULL,
		valid_from TEXT,
		valid_until TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rep_mappings_source_value
		ON rep_mappings(source, value);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (canonical.RecordStore interface)
// =============================================================================

// InsertBatch appends records in one transaction. Hashes that already
// exist are counted as duplicates and skipped; either every new
// record lands or none do.
func (s *Store) InsertBatch(ctx context.Context, records []canonical.Record) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO harmonised_records
		(row_hash, sales_rep, product_line, customer, invoice_ref, sku,
		 record_date, revenue, commission_base, source_file, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(row_hash) DO NOTHING
	`

	inserted, duplicates := 0, 0
	for _, r := range records {
		res, err := tx.ExecContext(ctx, query,
			r.RowHash,
			string(r.Rep),
			string(r.Line),
			r.Customer,
			r.InvoiceRef,
			r.SKU,
			r.Date.Format(dateLayout),
			r.Revenue.String(),
			r.CommissionBase.String(),
			r.SourceFile,
			r.UploadedAt.Format(timeLayout),
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert record %s: %w", r.RowHash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if n == 0 {
			duplicates++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return inserted, duplicates, nil
}

// HashExists reports whether a row hash is already harmonized.
func (s *Store) HashExists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM harmonised_records WHERE row_hash = ?",
		hash,
	).Scan(&count)
	return count > 0, err
}

// RecordsForMonth returns one rep-line-month slice of the history.
func (s *Store) RecordsForMonth(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, m canonical.Month) ([]canonical.Record, error) {
	return s.RecordsInRange(ctx, rep, line, m, m)
}

// RecordsInRange returns records for [from, to] inclusive.
func (s *Store) RecordsInRange(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, from, to canonical.Month) ([]canonical.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT row_hash, sales_rep, product_line, customer, invoice_ref, sku,
		       record_date, revenue, commission_base, source_file, uploaded_at
		FROM harmonised_records
		WHERE sales_rep = ? AND product_line = ?
		  AND record_date >= ? AND record_date <= ?
		ORDER BY record_date ASC, invoice_ref ASC
	`

	return s.queryRecords(ctx, query,
		string(rep), string(line),
		from.Start().Format(dateLayout), to.End().Format(dateLayout))
}

// Query returns records matching a filter, ordered by date.
func (s *Store) Query(ctx context.Context, f canonical.RecordFilter) ([]canonical.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		clauses []string
		args    []any
	)
	if f.Rep != nil {
		clauses = append(clauses, "sales_rep = ?")
		args = append(args, string(*f.Rep))
	}
	if f.Line != nil {
		clauses = append(clauses, "product_line = ?")
		args = append(args, string(*f.Line))
	}
	if f.From != nil {
		clauses = append(clauses, "record_date >= ?")
		args = append(args, f.From.Start().Format(dateLayout))
	}
	if f.To != nil {
		clauses = append(clauses, "record_date <= ?")
		args = append(args, f.To.End().Format(dateLayout))
	}

	query := `
		SELECT row_hash, sales_rep, product_line, customer, invoice_ref, sku,
		       record_date, revenue, commission_base, source_file, uploaded_at
		FROM harmonised_records
	`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY record_date ASC, invoice_ref ASC"

	return s.queryRecords(ctx, query, args...)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]canonical.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []canonical.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (canonical.Record, error) {
	var (
		rec        canonical.Record
		rep, line  string
		sku        sql.NullString
		date       string
		revenue    string
		base       string
		sourceFile sql.NullString
		uploadedAt string
	)

	err := rows.Scan(&rec.RowHash, &rep, &line, &rec.Customer, &rec.InvoiceRef,
		&sku, &date, &revenue, &base, &sourceFile, &uploadedAt)
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.Rep = canonical.RepID(rep)
	rec.Line = canonical.ProductLine(line)
	rec.SKU = sku.String
	rec.SourceFile = sourceFile.String
	rec.Date, _ = time.Parse(dateLayout, date)
	rec.UploadedAt, _ = time.Parse(timeLayout, uploadedAt)

	if rec.Revenue, err = decimal.NewFromString(revenue); err != nil {
		return rec, fmt.Errorf("corrupt revenue %q for %s: %w", revenue, rec.RowHash, err)
	}
	if rec.CommissionBase, err = decimal.NewFromString(base); err != nil {
		return rec, fmt.Errorf("corrupt commission base %q for %s: %w", base, rec.RowHash, err)
	}
	return rec, nil
}

// =============================================================================
// TIER CONFIGURATION (commission.ConfigStore interface)
// =============================================================================

// TierList returns the tier configuration for a rep and line.
func (s *Store) TierList(ctx context.Context, rep canonical.RepID, line canonical.ProductLine) (commission.TierList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT tier_number, rate, metric, threshold, proration
		FROM commission_tiers
		WHERE sales_rep = ? AND product_line = ?
		ORDER BY tier_number ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(rep), string(line))
	if err != nil {
		return commission.TierList{}, err
	}
	defer rows.Close()

	list := commission.TierList{Rep: rep, Line: line}
	for rows.Next() {
		var (
			t               commission.Tier
			rate, threshold string
			metric          string
			proration       string
		)
		if err := rows.Scan(&t.Number, &rate, &metric, &threshold, &proration); err != nil {
			return commission.TierList{}, err
		}
		if t.Rate, err = decimal.NewFromString(rate); err != nil {
			return commission.TierList{}, fmt.Errorf("corrupt tier rate %q: %w", rate, err)
		}
		if t.Threshold, err = decimal.NewFromString(threshold); err != nil {
			return commission.TierList{}, fmt.Errorf("corrupt tier threshold %q: %w", threshold, err)
		}
		t.Metric = commission.Metric(metric)
		list.Proration = commission.Proration(proration)
		list.Tiers = append(list.Tiers, t)
	}
	if err := rows.Err(); err != nil {
		return commission.TierList{}, err
	}
	if len(list.Tiers) == 0 {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM commission_tiers WHERE sales_rep = ? AND product_line = ?",
		string(list.Rep), string(list.Line),
	); err != nil {
		return err
	}

	query := `
		INSERT INTO commission_tiers
		(sales_rep, product_line, tier_number, rate, metric, threshold, proration)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, t := range list.Tiers {
		if _, err := tx.ExecContext(ctx, query,
			string(list.Rep), string(list.Line), t.Number,
			t.Rate.String(), string(t.MetricOrDefault()),
			t.Threshold.String(), string(list.ProrationOrDefault()),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// OBJECTIVES
// =============================================================================

// Objective returns the target for a rep, line, and period.
func (s *Store) Objective(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, period canonical.Month) (commission.Objective, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var revenue, target string
	err := s.db.QueryRowContext(ctx, `
		SELECT target_revenue, target_commission
		FROM business_objectives
		WHERE sales_rep = ? AND product_line = ? AND year = ? AND month = ?`,
		string(rep), string(line), period.Year, int(period.Month),
	).Scan(&revenue, &target)

	if err == sql.ErrNoRows {
		return commission.Objective{}, fmt.Errorf("objective for rep %q line %q %s: %w",
			rep, line, period, canonical.ErrNotFound)
	}
	if err != nil {
		return commission.Objective{}, err
	}

	obj := commission.Objective{Rep: rep, Line: line, Period: period}
	if obj.TargetRevenue, err = decimal.NewFromString(revenue); err != nil {
		return commission.Objective{}, fmt.Errorf("corrupt target revenue %q: %w", revenue, err)
	}
	if obj.TargetCommission, err = decimal.NewFromString(target); err != nil {
		return commission.Objective{}, fmt.Errorf("corrupt target commission %q: %w", target, err)
	}
	return obj, nil
}

// SaveObjective creates or replaces an objective.
func (s *Store) SaveObjective(ctx context.Context, obj commission.Objective) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO business_objectives
		(sales_rep, product_line, year, month, target_revenue, target_commission)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sales_rep, product_line, year, month) DO UPDATE SET
			target_revenue = excluded.target_revenue,
			target_commission = excluded.target_commission
	`

	_, err := s.db.ExecContext(ctx, query,
		string(obj.Rep), string(obj.Line), obj.Period.Year, int(obj.Period.Month),
		obj.TargetRevenue.String(), obj.TargetCommission.String(),
	)
	return err
}

// =============================================================================
// CROSSINGS
// =============================================================================

// Crossings returns the recorded crossings for a rep, line, and year.
func (s *Store) Crossings(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, year int) ([]commission.Crossing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT tier_number, effective_date, metric_value
		FROM tier_crossings
		WHERE sales_rep = ? AND product_line = ? AND year = ?
		ORDER BY tier_number ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(rep), string(line), year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crossings []commission.Crossing
	for rows.Next() {
		var (
			c           commission.Crossing
			date, value string
		)
		if err := rows.Scan(&c.Tier, &date, &value); err != nil {
			return nil, err
		}
		c.Rep = rep
		c.Line = line
		c.EffectiveDate, _ = time.Parse(dateLayout, date)
		if c.MetricValue, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("corrupt crossing metric %q: %w", value, err)
		}
		crossings = append(crossings, c)
	}
	return crossings, rows.Err()
}

// SaveCrossing records a crossing if none exists for its key. The
// primary key absorbs the conflict, so recording the same crossing
// twice writes a single row.
func (s *Store) SaveCrossing(ctx context.Context, c commission.Crossing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tier_crossings
		(sales_rep, product_line, year, tier_number, effective_date, metric_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sales_rep, product_line, year, tier_number) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		string(c.Rep), string(c.Line), c.EffectiveDate.Year(), c.Tier,
		c.EffectiveDate.Format(dateLayout), c.MetricValue.String(),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// NORMALIZATION MAPPINGS
// =============================================================================

// Services returns the service-to-product mapping snapshot.
func (s *Store) Services(ctx context.Context) (normalize.ServiceMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT label, product_line, item_id FROM service_mappings ORDER BY label",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := normalize.ServiceMap{}
	for rows.Next() {
		var (
			m      normalize.ServiceMapping
			line   string
			itemID sql.NullString
		)
		if err := rows.Scan(&m.Label, &line, &itemID); err != nil {
			return nil, err
		}
		m.Line = canonical.ProductLine(line)
		m.ItemID = itemID.String
		services[m.Label] = m
	}
	return services, rows.Err()
}

// SaveService creates or replaces one service mapping.
func (s *Store) SaveService(ctx context.Context, m normalize.ServiceMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO service_mappings (label, product_line, item_id)
		VALUES (?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			product_line = excluded.product_line,
			item_id = excluded.item_id
	`

	_, err := s.db.ExecContext(ctx, query, m.Label, string(m.Line), m.ItemID)
	return err
}

// Reps returns the rep directory snapshot.
func (s *Store) Reps(ctx context.Context) (normalize.RepDirectory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, field, value, sales_rep, valid_from, valid_until
		FROM rep_mappings ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dir normalize.RepDirectory
	for rows.Next() {
		var (
			m                    normalize.RepMapping
			source, rep          string
			validFrom, validTill sql.NullString
		)
		if err := rows.Scan(&source, &m.Field, &m.Value, &rep, &validFrom, &validTill); err != nil {
			return nil, err
		}
		m.Source = canonical.ProductLine(source)
		m.Rep = canonical.RepID(rep)
		if validFrom.Valid {
			t, _ := time.Parse(dateLayout, validFrom.String)
			m.ValidFrom = &t
		}
		if validTill.Valid {
			t, _ := time.Parse(dateLayout, validTill.String)
			m.ValidUntil = &t
		}
		dir = append(dir, m)
	}
	return dir, rows.Err()
}

// SaveRepMapping appends one rep mapping.
func (s *Store) SaveRepMapping(ctx context.Context, m normalize.RepMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var validFrom, validTill *string
	if m.ValidFrom != nil {
		v := m.ValidFrom.Format(dateLayout)
		validFrom = &v
	}
	if m.ValidUntil != nil {
		v := m.ValidUntil.Format(dateLayout)
		validTill = &v
	}

	query := `
		INSERT INTO rep_mappings (source, field, value, sales_rep, valid_from, valid_until)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		string(m.Source), m.Field, m.Value, string(m.Rep), validFrom, validTill,
	)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"harmonised_records", "commission_tiers", "business_objectives",
		"tier_crossings", "service_mappings", "rep_mappings",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
