package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/steppingstone/commission-engine/api"
	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/commission"
	"github.com/steppingstone/commission-engine/parse"
	"github.com/steppingstone/commission-engine/store/memory"
)

func newTestServer(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.New()
	handler := api.NewHandler(store, store, parse.DefaultLimits())
	return store, api.NewRouter(handler)
}

func doRequest(t *testing.T, router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func asAdmin(req *http.Request) *http.Request {
	req.Header.Set("X-Role", "admin")
	return req
}

func asRep(req *http.Request, rep string) *http.Request {
	req.Header.Set("X-Role", "rep")
	req.Header.Set("X-Sales-Rep", rep)
	return req
}

// sunopticUpload builds a small Sunoptic export and wraps it in a
// multipart body.
func sunopticUpload(t *testing.T, period string) (*bytes.Buffer, string) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Customer ID", "Bill Name", "Sales Rep Name", "Invoice ID",
			"Invoice Date", "Item ID", "Line Amount", "Commission %", "Commission $"},
		{"NS-1", "Northside", "rep-kim", "SN-9", "6/12/2025", "LED-300", "800.00", "10%", "80.00"},
		{"NS-1", "Northside", "rep-kim", "SN-10", "6/20/2025", "LED-300", "1,200.00", "10%", "120.00"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	wb, err := f.WriteToBuffer()
	require.NoError(t, err)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "june.xlsx")
	require.NoError(t, err)
	_, err = io.Copy(part, wb)
	require.NoError(t, err)
	if period != "" {
		require.NoError(t, mw.WriteField("period", period))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUpload_Sunoptic(t *testing.T) {
	store, router := newTestServer(t)

	body, contentType := sunopticUpload(t, "2025-06")
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/api/uploads/sunoptic", body))
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, router, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result api.UploadResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Rejected)
	assert.Equal(t, "Sunoptic", result.Line)

	records, err := store.Query(context.Background(), canonical.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "june.xlsx", records[0].SourceFile)

	// Re-uploading the same file is a no-op.
	body, contentType = sunopticUpload(t, "2025-06")
	req = asAdmin(httptest.NewRequest(http.MethodPost, "/api/uploads/sunoptic", body))
	req.Header.Set("Content-Type", contentType)
	rec = doRequest(t, router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 2, result.Duplicates)
}

func TestUpload_SunopticNeedsPeriod(t *testing.T) {
	_, router := newTestServer(t)

	body, contentType := sunopticUpload(t, "")
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/api/uploads/sunoptic", body))
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, router, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpload_RequiresAdmin(t *testing.T) {
	_, router := newTestServer(t)

	body, contentType := sunopticUpload(t, "2025-06")
	req := asRep(httptest.NewRequest(http.MethodPost, "/api/uploads/sunoptic", body), "rep-kim")
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, router, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpload_UnknownLine(t *testing.T) {
	_, router := newTestServer(t)

	body, contentType := sunopticUpload(t, "2025-06")
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/api/uploads/acme", body))
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, router, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seedCommissionData(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveTierList(ctx, commission.TierList{
		Rep:  "rep-kim",
		Line: canonical.LineSunoptic,
		Tiers: []commission.Tier{
			{Number: 1, Rate: decimal.RequireFromString("0.05"), Threshold: decimal.Zero},
		},
	}))

	rec := canonical.Record{
		Rep:        "rep-kim",
		Line:       canonical.LineSunoptic,
		Customer:   "Northside",
		InvoiceRef: "SN-9",
		Date:       time.Date(2025, time.June, 12, 0, 0, 0, 0, time.UTC),
		Revenue:    decimal.RequireFromString("10000.00"),
		CommissionBase: decimal.RequireFromString("10000.00"),
	}
	rec.RowHash = rec.ComputeHash()
	_, _, err := store.InsertBatch(ctx, []canonical.Record{rec})
	require.NoError(t, err)
}

func TestGetCommission(t *testing.T) {
	store, router := newTestServer(t)
	seedCommissionData(t, store)

	t.Run("admin reads anyone", func(t *testing.T) {
		req := asAdmin(httptest.NewRequest(http.MethodGet, "/api/commissions/rep-kim/sunoptic/2025-06", nil))
		rec := doRequest(t, router, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var result api.ResultDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "500.00", result.TotalCommission)
		assert.Equal(t, 1, result.TierReached)
		assert.Nil(t, result.Objective)
	})

	t.Run("rep reads themselves", func(t *testing.T) {
		req := asRep(httptest.NewRequest(http.MethodGet, "/api/commissions/rep-kim/sunoptic/2025-06", nil), "rep-kim")
		rec := doRequest(t, router, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rep cannot read another rep", func(t *testing.T) {
		req := asRep(httptest.NewRequest(http.MethodGet, "/api/commissions/rep-kim/sunoptic/2025-06", nil), "rep-lee")
		rec := doRequest(t, router, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unconfigured line is unprocessable", func(t *testing.T) {
		req := asAdmin(httptest.NewRequest(http.MethodGet, "/api/commissions/rep-kim/cygnus/2025-06", nil))
		rec := doRequest(t, router, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestGetAnnualReport(t *testing.T) {
	store, router := newTestServer(t)
	seedCommissionData(t, store)

	req := asAdmin(httptest.NewRequest(http.MethodGet, "/api/commissions/rep-kim/annual/2025", nil))
	rec := doRequest(t, router, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report api.AnnualReportDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2025, report.Year)
	require.Len(t, report.Lines, len(canonical.AllLines()))

	var sunoptic *api.LineReportDTO
	for i := range report.Lines {
		if report.Lines[i].Line == "Sunoptic" {
			sunoptic = &report.Lines[i]
		} else {
			assert.False(t, report.Lines[i].Configured, "line %s has no tiers", report.Lines[i].Line)
		}
	}
	require.NotNil(t, sunoptic)
	assert.True(t, sunoptic.Configured)
	assert.Equal(t, "500.00", sunoptic.TotalCommission)
	assert.Equal(t, "10000.00", sunoptic.TotalRevenue)
}

func TestListRecords_RepScoping(t *testing.T) {
	store, router := newTestServer(t)
	seedCommissionData(t, store)

	other := canonical.Record{
		Rep:        "rep-lee",
		Line:       canonical.LineSunoptic,
		Customer:   "Southside",
		InvoiceRef: "SN-77",
		Date:       time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC),
		Revenue:    decimal.RequireFromString("400.00"),
		CommissionBase: decimal.RequireFromString("40.00"),
	}
	other.RowHash = other.ComputeHash()
	_, _, err := store.InsertBatch(context.Background(), []canonical.Record{other})
	require.NoError(t, err)

	t.Run("rep sees only their own records", func(t *testing.T) {
		// Even when the rep asks for someone else's.
		req := asRep(httptest.NewRequest(http.MethodGet, "/api/records?rep=rep-lee", nil), "rep-kim")
		rec := doRequest(t, router, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var records []api.RecordDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "rep-kim", records[0].Rep)
	})

	t.Run("admin filters freely", func(t *testing.T) {
		req := asAdmin(httptest.NewRequest(http.MethodGet, "/api/records?line=sunoptic&from=2025-06&to=2025-06", nil))
		rec := doRequest(t, router, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var records []api.RecordDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		assert.Len(t, records, 2)
	})
}

func TestTierConfigEndpoints(t *testing.T) {
	_, router := newTestServer(t)

	payload := `{
		"proration": "transaction_order",
		"tiers": [
			{"number": 1, "rate": "0.05", "threshold": "0"},
			{"number": 2, "rate": "0.08", "metric": "ytd", "threshold": "50000"}
		]
	}`

	t.Run("write requires admin", func(t *testing.T) {
		req := asRep(httptest.NewRequest(http.MethodPut, "/api/config/tiers/rep-kim/logiquip",
			strings.NewReader(payload)), "rep-kim")
		rec := doRequest(t, router, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("round trip", func(t *testing.T) {
		req := asAdmin(httptest.NewRequest(http.MethodPut, "/api/config/tiers/rep-kim/logiquip",
			strings.NewReader(payload)))
		rec := doRequest(t, router, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req = asRep(httptest.NewRequest(http.MethodGet, "/api/config/tiers/rep-kim/logiquip", nil), "rep-kim")
		rec = doRequest(t, router, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var list api.TierListDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list.Tiers, 2)
		assert.Equal(t, "0.08", list.Tiers[1].Rate)
	})

	t.Run("bad tier order", func(t *testing.T) {
		bad := `{"tiers": [
			{"number": 1, "rate": "0.05", "threshold": "100"},
			{"number": 2, "rate": "0.08", "threshold": "100"}
		]}`
		req := asAdmin(httptest.NewRequest(http.MethodPut, "/api/config/tiers/rep-kim/logiquip",
			strings.NewReader(bad)))
		rec := doRequest(t, router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing tiers is 404", func(t *testing.T) {
		req := asAdmin(httptest.NewRequest(http.MethodGet, "/api/config/tiers/rep-kim/cygnus", nil))
		rec := doRequest(t, router, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestObjectiveEndpoints(t *testing.T) {
	_, router := newTestServer(t)

	payload := `{"target_revenue": "10000.00", "target_commission": "500.00"}`
	req := asAdmin(httptest.NewRequest(http.MethodPut, "/api/config/objectives/rep-kim/sunoptic/2025-06",
		strings.NewReader(payload)))
	rec := doRequest(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = asRep(httptest.NewRequest(http.MethodGet, "/api/config/objectives/rep-kim/sunoptic/2025-06", nil), "rep-kim")
	rec = doRequest(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var obj api.ObjectiveDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	assert.Equal(t, "10000.00", obj.TargetRevenue)
	assert.Equal(t, "2025-06", obj.Period)
}

func TestMappingEndpoints(t *testing.T) {
	_, router := newTestServer(t)

	req := asAdmin(httptest.NewRequest(http.MethodPut, "/api/config/services",
		strings.NewReader(`{"label": "Imaging Service", "product_line": "Cygnus", "item_id": "IMG-1"}`)))
	rec := doRequest(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/config/services", nil)
	rec = doRequest(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var services []api.ServiceMappingDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &services))
	require.Len(t, services, 1)
	assert.Equal(t, "Cygnus", services[0].Line)

	req = asAdmin(httptest.NewRequest(http.MethodPost, "/api/config/reps",
		strings.NewReader(`{"source": "Logiquip", "field": "Rep", "value": "JD", "sales_rep": "rep-dunn", "valid_from": "2025-01-01"}`)))
	rec = doRequest(t, router, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/config/reps", nil)
	rec = doRequest(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var reps []api.RepMappingDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reps))
	require.Len(t, reps, 1)
	assert.Equal(t, "rep-dunn", reps[0].Rep)
	assert.Equal(t, "2025-01-01", reps[0].ValidFrom)
}
