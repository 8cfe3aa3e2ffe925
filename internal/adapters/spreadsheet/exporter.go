package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
)

const (
	// ExportSheet is the name of the only sheet in an export.
	ExportSheet = "Predictions"

	// ExportFilename is the suggested download name.
	ExportFilename = "readmission_predictions.xlsx"

	// ExportContentType is the MIME type of an export.
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultSheet = "Sheet1"
)

// ExportColumns is the header row of an export.
var ExportColumns = []string{"Index", "Patient ID", "Risk", "Probability", "Reasons", "Error"}

// Exporter writes result lists as .xlsx workbooks
type Exporter struct{}

// NewExporter creates a new exporter
func NewExporter() providers.ResultExporter {
	return &Exporter{}
}

// Export writes one header row and one row per result, in list order.
func (e *Exporter) Export(w io.Writer, results []entities.ExplanationResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, ExportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(r)
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func exportRow(r entities.ExplanationResult) []interface{} {
	patientID := ""
	if r.PatientID != nil {
		patientID = *r.PatientID
	}

	risk, probability, reasons := "", "", ""
	if !r.Failed() {
		risk = r.RiskLabel
		probability = fmt.Sprintf("%.4f", r.ReadmissionProbability)
		reasons = strings.Join(r.Reasons, "\n")
	}

	return []interface{}{r.Index, patientID, risk, probability, reasons, r.Error}
}
