package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/spreadsheet"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/middleware"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
)

const (
	maxUploadBytes      = 32 << 20
	maxRecordBytes      = 1 << 20
	defaultHistoryLimit = 20
)

// DashboardService is the part of the batch orchestrator the dashboard
// routes need.
type DashboardService interface {
	StartBatch(ctx context.Context, userID, filename string, r io.Reader) (*entities.BatchRun, error)
	CancelBatch(userID string) bool
	Current(userID string) *entities.BatchRun
	History(ctx context.Context, userID string, limit int) ([]*entities.BatchRun, error)
	RunSingle(ctx context.Context, userID string, raw map[string]any) (entities.ExplanationResult, error)
	RunSample(ctx context.Context, userID string) (entities.ExplanationResult, error)
	Results(userID string) []entities.ExplanationResult
	Progress(userID string) entities.Progress
	Chart(userID string, index int) (entities.ContributionChart, error)
}

// DashboardHandler serves uploads, manual predictions and the result list
type DashboardHandler struct {
	service  DashboardService
	exporter providers.ResultExporter
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service DashboardService, exporter providers.ResultExporter) *DashboardHandler {
	return &DashboardHandler{
		service:  service,
		exporter: exporter,
	}
}

// StartBatch handles POST /api/batches (multipart field "file")
func (h *DashboardHandler) StartBatch(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "expected a multipart upload with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	run, err := h.service.StartBatch(r.Context(), user.ID, header.Filename, file)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, run)
}

// CurrentBatch handles GET /api/batches/current
func (h *DashboardHandler) CurrentBatch(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	run := h.service.Current(user.ID)
	if run == nil {
		respondWithError(w, http.StatusNotFound, "no batch has been started")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"batch":   run,
		"summary": run.Summary(),
	})
}

// CancelBatch handles DELETE /api/batches/current
func (h *DashboardHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	if !h.service.CancelBatch(user.ID) {
		respondWithError(w, http.StatusNotFound, "no batch is in progress")
		return
	}

	observability.LoggerFromContext(r.Context()).Info().Str("user_id", user.ID).Msg("Batch cancellation requested")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// BatchHistory handles GET /api/batches/history?limit=N
func (h *DashboardHandler) BatchHistory(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	runs, err := h.service.History(r.Context(), user.ID, limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"batches": runs,
		"count":   len(runs),
	})
}

// SubmitPrediction handles POST /api/predictions with one raw record
func (h *DashboardHandler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBytes))
	decoder.UseNumber()

	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil || raw == nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.RunSingle(r.Context(), user.ID, raw)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// SubmitSample handles POST /api/predictions/sample
func (h *DashboardHandler) SubmitSample(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	result, err := h.service.RunSample(r.Context(), user.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// ListResults handles GET /api/results
func (h *DashboardHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	results := h.service.Results(user.ID)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"results":  results,
		"count":    len(results),
		"progress": h.service.Progress(user.ID),
	})
}

// ExportResults handles GET /api/results/export
func (h *DashboardHandler) ExportResults(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	results := h.service.Results(user.ID)
	if len(results) == 0 {
		respondWithError(w, http.StatusNotFound, "there are no results to export")
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(&buf, results); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", spreadsheet.ExportContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", spreadsheet.ExportFilename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GetChart handles GET /api/results/{index}/chart
func (h *DashboardHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	user := middleware.PrincipalFromContext(r.Context())

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 1 {
		respondWithError(w, http.StatusBadRequest, "index must be a positive integer")
		return
	}

	chart, err := h.service.Chart(user.ID, index)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, chart)
}
