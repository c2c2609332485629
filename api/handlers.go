/*
handlers.go - HTTP handlers for uploads, commissions, and configuration

PURPOSE:
  Implements all REST endpoints. Handlers translate HTTP to domain
  calls and domain errors back to status codes; no commission or
  normalization logic lives here.

ENDPOINT GROUPS:
  Uploads:       POST /api/uploads/{line}
  Records:       GET  /api/records
  Commissions:   GET  /api/commissions/{rep}/{line}/{period}
                 GET  /api/commissions/{rep}/annual/{year}
  Configuration: GET/PUT tiers, objectives, services, rep mappings

ERROR MAPPING:
  ParseError(TooLarge)                 -> 413
  ParseError(other)                    -> 400
  NormalizeError(MissingPeriodContext) -> 422 (aborts before any row)
  EngineError(NoTierConfig)            -> 422
  ErrTierOrder                         -> 400
  canonical.ErrNotFound                -> 404
  SinkError                            -> 500 (batch may need re-upload)

  Per-row rejections are NOT errors: an upload with rejections still
  returns 200 with the rejection list in the body.

SEE ALSO:
  - server.go: Route wiring
  - dto.go: Request/response shapes
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/commission"
	"github.com/steppingstone/commission-engine/harmonize"
	"github.com/steppingstone/commission-engine/normalize"
	"github.com/steppingstone/commission-engine/parse"
)

// Handler carries the dependencies all endpoints share.
type Handler struct {
	Records  canonical.RecordStore
	Config   commission.ConfigStore
	Engine   *commission.Engine
	Pipeline *harmonize.Pipeline
	Limits   parse.Limits
}

// NewHandler wires a handler onto the stores.
func NewHandler(records canonical.RecordStore, config commission.ConfigStore, limits parse.Limits) *Handler {
	return &Handler{
		Records:  records,
		Config:   config,
		Engine:   commission.NewEngine(records, config),
		Pipeline: harmonize.NewPipeline(harmonize.NewSink(records)),
		Limits:   limits,
	}
}

// =============================================================================
// UPLOAD ENDPOINT
// =============================================================================

// Upload ingests one source file for a product line.
// POST /api/uploads/{line} (multipart: file, optional period=YYYY-MM)
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	line, ok := canonical.ParseLine(chi.URLParam(r, "line"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown product line", nil)
		return
	}

	normalizer, err := normalize.ForLine(line)
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown product line", err)
		return
	}

	if err := r.ParseMultipartForm(h.Limits.MaxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.Limits.MaxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}
	if int64(len(data)) > h.Limits.MaxBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Upload exceeds %d byte ceiling", h.Limits.MaxBytes), nil)
		return
	}

	nctx := normalize.Context{}
	if periodStr := r.FormValue("period"); periodStr != "" {
		period, err := canonical.ParseMonth(periodStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
		nctx.Period = &period
	}

	if nctx.Services, err = h.Config.Services(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load service mappings", err)
		return
	}
	if nctx.Reps, err = h.Config.Reps(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rep directory", err)
		return
	}

	var rows []parse.RawRow
	if line == canonical.LineSummitMedical {
		doc, err := parse.PDFTable(bytes.NewReader(data), int64(len(data)),
			header.Filename, normalize.SummitPDFLayout(), h.Limits)
		if err != nil {
			writeParseError(w, err)
			return
		}
		rows = doc.Rows
		if nctx.Period == nil {
			nctx.Period = doc.Period
		}
		nctx.AccountCode = doc.AccountCode
	} else {
		rows, _, err = parse.Workbook(bytes.NewReader(data), header.Filename,
			normalizer.Layout(), h.Limits)
		if err != nil {
			writeParseError(w, err)
			return
		}
	}

	result, err := h.Pipeline.Run(ctx, rows, normalizer, nctx, header.Filename)
	if err != nil {
		var nerr *canonical.NormalizeError
		if errors.As(err, &nerr) && nerr.Kind == canonical.NormalizeMissingPeriodContext {
			writeError(w, http.StatusUnprocessableEntity,
				"Upload needs an attribution period (period=YYYY-MM)", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to store batch", err)
		return
	}

	writeJSON(w, http.StatusOK, toUploadResultDTO(header.Filename, line, result))
}

func writeParseError(w http.ResponseWriter, err error) {
	var perr *canonical.ParseError
	if errors.As(err, &perr) {
		status := http.StatusBadRequest
		if perr.Kind == canonical.ParseTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, fmt.Sprintf("Could not parse file: %s", perr.Kind), err)
		return
	}
	writeError(w, http.StatusBadRequest, "Could not parse file", err)
}

// =============================================================================
// RECORD ENDPOINTS
// =============================================================================

// ListRecords returns harmonized records matching the query.
// GET /api/records?rep=&line=&from=YYYY-MM&to=YYYY-MM
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter canonical.RecordFilter
	repParam := r.URL.Query().Get("rep")
	if callerRole(r) != roleAdmin {
		// Reps see their own records only.
		repParam = callerRep(r)
		if repParam == "" {
			writeError(w, http.StatusForbidden, "Rep identity required", nil)
			return
		}
	}
	if repParam != "" {
		rep := canonical.RepID(repParam)
		filter.Rep = &rep
	}
	if lineParam := r.URL.Query().Get("line"); lineParam != "" {
		line, ok := canonical.ParseLine(lineParam)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown product line", nil)
			return
		}
		filter.Line = &line
	}
	if fromParam := r.URL.Query().Get("from"); fromParam != "" {
		from, err := canonical.ParseMonth(fromParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from month (use YYYY-MM)", err)
			return
		}
		filter.From = &from
	}
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		to, err := canonical.ParseMonth(toParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to month (use YYYY-MM)", err)
			return
		}
		filter.To = &to
	}

	records, err := h.Records.Query(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query records", err)
		return
	}

	dtos := make([]RecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COMMISSION ENDPOINTS
// =============================================================================

// GetCommission computes one rep x product line x month result.
// GET /api/commissions/{rep}/{line}/{period}
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rep := chi.URLParam(r, "rep")
	if !canReadRep(r, rep) {
		writeError(w, http.StatusForbidden, "Cannot read another rep's commissions", nil)
		return
	}
	line, ok := canonical.ParseLine(chi.URLParam(r, "line"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown product line", nil)
		return
	}
	period, err := canonical.ParseMonth(chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	result, err := h.Engine.Compute(ctx, canonical.RepID(rep), line, period)
	if err != nil {
		var eerr *canonical.EngineError
		if errors.As(err, &eerr) {
			writeError(w, http.StatusUnprocessableEntity,
				"No commission tiers configured for this rep and product line", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to compute commission", err)
		return
	}

	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// GetAnnualReport computes a rep's 12-month matrix for a year.
// GET /api/commissions/{rep}/annual/{year}
func (h *Handler) GetAnnualReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rep := chi.URLParam(r, "rep")
	if !canReadRep(r, rep) {
		writeError(w, http.StatusForbidden, "Cannot read another rep's commissions", nil)
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 2000 || year > 2200 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	report, err := h.Engine.AnnualReport(ctx, canonical.RepID(rep), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build annual report", err)
		return
	}

	writeJSON(w, http.StatusOK, toAnnualReportDTO(report))
}

// =============================================================================
// TIER CONFIGURATION ENDPOINTS
// =============================================================================

// GetTiers returns the tier list for a rep and product line.
// GET /api/config/tiers/{rep}/{line}
func (h *Handler) GetTiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rep := chi.URLParam(r, "rep")
	if !canReadRep(r, rep) {
		writeError(w, http.StatusForbidden, "Cannot read another rep's configuration", nil)
		return
	}
	line, ok := canonical.ParseLine(chi.URLParam(r, "line"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown product line", nil)
		return
	}

	list, err := h.Config.TierList(ctx, canonical.RepID(rep), line)
	if err != nil {
		if canonical.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "No tiers configured", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load tiers", err)
		return
	}
	writeJSON(w, http.StatusOK, toTierListDTO(list))
}

// PutTiers replaces the tier list for a rep and product line.
// PUT /api/config/tiers/{rep}/{line}
func (h *Handler) PutTiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	line, ok := canonical.ParseLine(chi.URLParam(r, "line"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown product line", nil)
		return
	}

	var req TierListDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	list := commission.TierList{
		Rep:       canonical.RepID(chi.URLParam(r, "rep")),
		Line:      line,
		Proration: commission.Proration(req.Proration),
	}
	for _, t := range req.Tiers {
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid rate %q", t.Rate), err)
			return
		}
		threshold, err := decimal.NewFromString(t.Threshold)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid threshold %q", t.Threshold), err)
			return
		}
		list.Tiers = append(list.Tiers, commission.Tier{
			Number:    t.Number,
			Rate:      rate,
			Metric:    commission.Metric(t.Metric),
			Threshold: threshold,
		})
	}

	if err := h.Config.SaveTierList(ctx, list); err != nil {
		if errors.Is(err, canonical.ErrTierOrder) {
			writeError(w, http.StatusBadRequest, "Tier thresholds must strictly ascend", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save tiers", err)
		return
	}
	writeJSON(w, http.StatusOK, toTierListDTO(list))
}

// =============================================================================
// OBJECTIVE ENDPOINTS
// =============================================================================

// GetObjective returns the target for a rep, line, and period.
// GET /api/config/objectives/{rep}/{line}/{period}
func (h *Handler) GetObjective(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rep := chi.URLParam(r, "rep")
	if !canReadRep(r, rep) {
		writeError(w, http.StatusForbidden, "Cannot read another rep's configuration", nil)
		return
	}
	line, ok := canonical.ParseLine(chi.URLParam(r, "line"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown product line", nil)
		return
	}
	period, err := canonical.ParseMonth(chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	obj, err := h.Config.Objective(ctx, canonical.RepID(rep), line, period)
	if err != nil {
		if canonical.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "No objective configured", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load objective", err)
		return
	}

	writeJSON(w, http.StatusOK, ObjectiveDTO{
		Rep:              string(obj.Rep),
		Line:             string(obj.Line),
		Period:           obj.Period.String(),
		TargetRevenue:    obj.TargetRevenue.StringFixed(2),
		TargetCommission: obj.TargetCommission.StringFixed(2),
	})
}

// PutObjective creates or replaces a target.
// PUT /api/config/objectives/{rep}/{line}/{period}
func (h *Handler) PutObjective(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	line, ok := canonical.ParseLine(chi.URLParam(r, "line"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown product line", nil)
		return
	}
	period, err := canonical.ParseMonth(chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	var req ObjectiveDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	targetRevenue, err := decimal.NewFromString(req.TargetRevenue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid target_revenue", err)
		return
	}
	targetCommission, err := decimal.NewFromString(req.TargetCommission)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid target_commission", err)
		return
	}

	obj := commission.Objective{
		Rep:              canonical.RepID(chi.URLParam(r, "rep")),
		Line:             line,
		Period:           period,
		TargetRevenue:    targetRevenue,
		TargetCommission: targetCommission,
	}
	if err := h.Config.SaveObjective(ctx, obj); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save objective", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// MAPPING ENDPOINTS
// =============================================================================

// ListServices returns every service mapping.
// GET /api/config/services
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Config.Services(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load service mappings", err)
		return
	}

	dtos := make([]ServiceMappingDTO, 0, len(services))
	for _, m := range services {
		dtos = append(dtos, ServiceMappingDTO{
			Label:  m.Label,
			Line:   string(m.Line),
			ItemID: m.ItemID,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutService creates or replaces one service mapping.
// PUT /api/config/services
func (h *Handler) PutService(w http.ResponseWriter, r *http.Request) {
	var req ServiceMappingDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "Label is required", nil)
		return
	}
	line, ok := canonical.ParseLine(req.Line)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown product line", nil)
		return
	}

	m := normalize.ServiceMapping{Label: req.Label, Line: line, ItemID: req.ItemID}
	if err := h.Config.SaveService(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save service mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ListRepMappings returns the rep directory.
// GET /api/config/reps
func (h *Handler) ListRepMappings(w http.ResponseWriter, r *http.Request) {
	reps, err := h.Config.Reps(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rep directory", err)
		return
	}

	dtos := make([]RepMappingDTO, 0, len(reps))
	for _, m := range reps {
		dto := RepMappingDTO{
			Source: string(m.Source),
			Field:  m.Field,
			Value:  m.Value,
			Rep:    string(m.Rep),
		}
		if m.ValidFrom != nil {
			dto.ValidFrom = m.ValidFrom.Format("2006-01-02")
		}
		if m.ValidUntil != nil {
			dto.ValidUntil = m.ValidUntil.Format("2006-01-02")
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PostRepMapping appends one rep mapping.
// POST /api/config/reps
func (h *Handler) PostRepMapping(w http.ResponseWriter, r *http.Request) {
	var req RepMappingDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	source, ok := canonical.ParseLine(req.Source)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown source product line", nil)
		return
	}
	if req.Value == "" || req.Rep == "" {
		writeError(w, http.StatusBadRequest, "value and sales_rep are required", nil)
		return
	}

	m := normalize.RepMapping{
		Source: source,
		Field:  req.Field,
		Value:  req.Value,
		Rep:    canonical.RepID(req.Rep),
	}
	if req.ValidFrom != "" {
		t, err := time.Parse("2006-01-02", req.ValidFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid valid_from (use YYYY-MM-DD)", err)
			return
		}
		m.ValidFrom = &t
	}
	if req.ValidUntil != "" {
		t, err := time.Parse("2006-01-02", req.ValidUntil)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid valid_until (use YYYY-MM-DD)", err)
			return
		}
		m.ValidUntil = &t
	}

	if err := h.Config.SaveRepMapping(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rep mapping", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
