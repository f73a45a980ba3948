// Package design reads the design document: the tabular file mapping each
// subject's lesion filename to one or more behavioral score columns.
package design

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"govlsm/internal/errors"
)

// Row is one design-table entry: a lesion filename and its score columns.
type Row struct {
	Filename string
	Scores   []float64
}

// Table is the parsed design document. Rows keep file order, which fixes
// the subject ordering of the lesion matrix and score vector.
type Table struct {
	Header []string
	Rows   []Row
}

// Score returns the score of row i in the selected 0-based score column
// (the "domain").
func (t *Table) Score(i, domain int) (float64, error) {
	row := t.Rows[i]
	if domain < 0 || domain >= len(row.Scores) {
		return 0, errors.DesignInvalid(fmt.Sprintf(
			"subject %s: score column %d out of range (row has %d score columns)",
			row.Filename, domain, len(row.Scores)))
	}
	return row.Scores[domain], nil
}

// Reader handles reading xlsx and csv design documents.
type Reader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewReader creates a design reader; the format is chosen by extension.
func NewReader(filePath string) *Reader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &Reader{filePath: filePath, fileType: fileType}
}

// Read parses the design document. The first column is the lesion filename;
// every following column must be numeric. Malformed rows fail fast naming
// the offending entry.
func (r *Reader) Read() (*Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.DesignInvalid("design document not found: " + r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, errors.DesignInvalid("unsupported design document type: " + r.fileType)
	}
	if err != nil {
		return nil, err
	}

	return r.processRows(rows)
}

func (r *Reader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.IOError("failed to open design document", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.IOError("failed to read design sheet "+sheet, err)
	}
	return rows, nil
}

func (r *Reader) readCSVRows() ([][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.IOError("failed to open design document", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.DesignInvalid("failed to parse design CSV: " + err.Error())
	}
	return rows, nil
}

func (r *Reader) processRows(rows [][]string) (*Table, error) {
	if len(rows) < 2 {
		return nil, errors.DesignInvalid("design document must have a header row and at least one subject row")
	}

	table := &Table{Header: rows[0]}
	for i, raw := range rows[1:] {
		if len(raw) == 0 || strings.TrimSpace(raw[0]) == "" {
			continue // skip blank lines
		}
		if len(raw) < 2 {
			return nil, errors.DesignInvalid(fmt.Sprintf(
				"design row %d (%q) has no score columns", i+2, raw[0]))
		}

		row := Row{Filename: strings.TrimSpace(raw[0])}
		for c, cell := range raw[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, errors.DesignInvalid(fmt.Sprintf(
					"design row %d (%s): score column %d is not numeric: %q",
					i+2, row.Filename, c, cell))
			}
			row.Scores = append(row.Scores, v)
		}
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) == 0 {
		return nil, errors.DesignInvalid("design document contains no subject rows")
	}
	return table, nil
}
