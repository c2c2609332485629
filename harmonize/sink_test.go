package harmonize_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/harmonize"
	"github.com/steppingstone/commission-engine/normalize"
	"github.com/steppingstone/commission-engine/parse"
	"github.com/steppingstone/commission-engine/store/memory"
)

func record(ref string, amount string) canonical.Record {
	return canonical.Record{
		Rep:            "rep-kim",
		Line:           canonical.LineSunoptic,
		Customer:       "Northside",
		InvoiceRef:     ref,
		Date:           time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC),
		Revenue:        decimal.RequireFromString(amount),
		CommissionBase: decimal.RequireFromString(amount).Div(decimal.NewFromInt(10)),
	}
}

func TestSink_AppendStampsProvenance(t *testing.T) {
	store := memory.New()
	sink := harmonize.NewSink(store)

	result, err := sink.Append(context.Background(), []canonical.Record{record("SN-1", "800.00")}, "june.xlsx")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	stored, err := store.RecordsForMonth(context.Background(), "rep-kim", canonical.LineSunoptic, canonical.NewMonth(2025, time.June))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "june.xlsx", stored[0].SourceFile)
	assert.False(t, stored[0].UploadedAt.IsZero())
	assert.NotEmpty(t, stored[0].RowHash)
}

func TestSink_ReuploadIsIdempotent(t *testing.T) {
	store := memory.New()
	sink := harmonize.NewSink(store)
	batch := []canonical.Record{record("SN-1", "800.00"), record("SN-2", "120.00")}

	first, err := sink.Append(context.Background(), batch, "june.xlsx")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Duplicates)

	// WHEN the agency resends the same statement under a new filename
	second, err := sink.Append(context.Background(), batch, "june-resend.xlsx")

	// THEN nothing new lands; both rows count as duplicates
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Duplicates)

	stored, err := store.Query(context.Background(), canonical.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSink_InvalidRecordsBecomeRejections(t *testing.T) {
	store := memory.New()
	sink := harmonize.NewSink(store)

	bad := record("SN-1", "800.00")
	bad.Rep = ""

	result, err := sink.Append(context.Background(), []canonical.Record{bad, record("SN-2", "120.00")}, "june.xlsx")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Rejected())
	assert.True(t, canonical.IsRejection(result.Rejections[0].Err))
}

// failingStore fails InsertBatch after reporting a fixed number of
// confirmed inserts.
type failingStore struct {
	*memory.Store
	inserted int
	err      error
}

func (s *failingStore) InsertBatch(ctx context.Context, records []canonical.Record) (int, int, error) {
	return s.inserted, 0, s.err
}

func TestSink_StoreFailureLabels(t *testing.T) {
	boom := errors.New("disk full")

	t.Run("clean rollback is an abort", func(t *testing.T) {
		sink := harmonize.NewSink(&failingStore{Store: memory.New(), err: boom})

		_, err := sink.Append(context.Background(), []canonical.Record{record("SN-1", "800.00")}, "june.xlsx")

		var serr *canonical.SinkError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, canonical.SinkAborted, serr.Kind)
		assert.Equal(t, 0, serr.Inserted)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("confirmed inserts are a partial commit", func(t *testing.T) {
		sink := harmonize.NewSink(&failingStore{Store: memory.New(), inserted: 1, err: boom})

		_, err := sink.Append(context.Background(), []canonical.Record{
			record("SN-1", "800.00"), record("SN-2", "120.00"),
		}, "june.xlsx")

		var serr *canonical.SinkError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, canonical.SinkPartialCommit, serr.Kind)
		assert.Equal(t, 1, serr.Inserted)
	})
}

func TestPipeline_Run(t *testing.T) {
	store := memory.New()
	pipeline := harmonize.NewPipeline(harmonize.NewSink(store))
	period := canonical.NewMonth(2025, time.June)

	rows := []parse.RawRow{
		{Index: 2, Cells: map[string]string{
			"Customer ID": "NS-1", "Bill Name": "Northside", "Sales Rep Name": "rep-kim",
			"Invoice ID": "SN-9", "Line Amount": "800.00", "Commission $": "80.00",
		}},
		{Index: 3, Cells: map[string]string{
			"Customer ID": "NS-1", "Bill Name": "Northside", "Sales Rep Name": "rep-kim",
			"Invoice ID": "SN-10", "Line Amount": "oops", "Commission $": "80.00",
		}},
	}

	result, err := pipeline.Run(context.Background(), rows, normalize.Sunoptic{},
		normalize.Context{Period: &period}, "june.xlsx")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, 3, result.Rejections[0].Row)

	// Replaying the identical upload changes nothing.
	again, err := pipeline.Run(context.Background(), rows, normalize.Sunoptic{},
		normalize.Context{Period: &period}, "june.xlsx")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 1, again.Duplicates)
}
