package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

const (
	extXLS  = ".xls"
	extXLSX = ".xlsx"

	emptyHeader = "__EMPTY"
	xlsCharset  = "utf-8"
)

// Reader reads the first sheet of an .xls or .xlsx workbook into rows keyed
// by the header row.
type Reader struct{}

// NewReader creates a new spreadsheet reader
func NewReader() providers.SpreadsheetReader {
	return &Reader{}
}

// ReadRows parses the workbook. Blank rows are skipped, empty cells are
// present with a nil value and the result may be empty.
func (r *Reader) ReadRows(filename string, src io.Reader) ([]map[string]any, error) {
	var (
		grid [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case extXLSX:
		grid, err = readXLSX(src)
	case extXLS:
		grid, err = readXLS(src)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported file type %q", filepath.Base(filename)))
	}
	if err != nil {
		return nil, err
	}

	return rowsFromGrid(grid), nil
}

func readXLSX(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readXLS(src io.Reader) (grid [][]string, err error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}

	// The BIFF parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			grid, err = nil, fmt.Errorf("failed to parse workbook: %v", p)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), xlsCharset)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

// rowsFromGrid uses the first non-blank row as the header. Duplicate header
// names get a numeric suffix so that no column is lost.
func rowsFromGrid(grid [][]string) []map[string]any {
	headerAt := -1
	for i, cells := range grid {
		if !blank(cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return []map[string]any{}
	}

	headers := uniqueHeaders(grid[headerAt])
	rows := make([]map[string]any, 0, len(grid)-headerAt-1)
	for _, cells := range grid[headerAt+1:] {
		if blank(cells) {
			continue
		}
		row := make(map[string]any, len(headers))
		for j, h := range headers {
			var value any
			if j < len(cells) && strings.TrimSpace(cells[j]) != "" {
				value = cells[j]
			}
			row[h] = value
		}
		rows = append(rows, row)
	}
	return rows
}

func uniqueHeaders(cells []string) []string {
	seen := make(map[string]int, len(cells))
	headers := make([]string, len(cells))
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if name == "" {
			name = emptyHeader
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 0
		}
		headers[i] = name
	}
	return headers
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
