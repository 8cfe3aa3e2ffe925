package providers

import (
	"context"
	"io"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
)

// Explainer produces an explanation for one canonical record.
type Explainer interface {
	Explain(ctx context.Context, record entities.PatientRecord) (*entities.Explanation, error)
}

// StatusSource exposes the latest endpoint health status.
type StatusSource interface {
	Status() entities.EndpointStatus
}

// SpreadsheetReader turns the first sheet of an uploaded workbook into
// header-keyed rows. Empty cells are present with a nil value.
type SpreadsheetReader interface {
	ReadRows(filename string, r io.Reader) ([]map[string]any, error)
}

// ResultExporter writes a result list as a workbook.
type ResultExporter interface {
	Export(w io.Writer, results []entities.ExplanationResult) error
}
