// Package importfile reads uploaded transaction sheets into raw import rows
// and writes skipped rows back out in the same tabular shape.
package importfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"finflow/internal/services"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingColumns    = errors.New("missing required columns")
	ErrEmptyFile         = errors.New("empty file")
)

var columns = []string{"date", "amount", "currency", "category", "subcategory", "account", "note"}

var requiredColumns = []string{"date", "amount", "category", "account"}

// ParseFormat accepts a format name or a file name with a csv/xlsx extension.
func ParseFormat(value string) (Format, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if ext := filepath.Ext(value); ext != "" {
		value = strings.TrimPrefix(ext, ".")
	}
	switch Format(value) {
	case CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Decode reads a header row followed by data rows. Columns are matched by
// header name, so their order is free; unknown columns are ignored and blank
// rows are skipped.
func Decode(r io.Reader, format Format) ([]services.RawRow, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case CSV:
		records, err = readCSV(r)
	case XLSX:
		records, err = readXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	return toRows(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

// readXLSX reads the first sheet of the workbook.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func toRows(records [][]string) ([]services.RawRow, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	index := map[string]int{}
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	rows := make([]services.RawRow, 0, len(records)-1)
	for _, record := range records[1:] {
		if blank(record) {
			continue
		}
		rows = append(rows, services.RawRow{
			Date:        cell(record, "date"),
			Amount:      cell(record, "amount"),
			Currency:    cell(record, "currency"),
			Category:    cell(record, "category"),
			Subcategory: cell(record, "subcategory"),
			Account:     cell(record, "account"),
			Note:        cell(record, "note"),
		})
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func exportHeader() []string {
	header := append([]string{}, columns...)
	return append(header, "failure_reason")
}

func exportRecord(row services.SkippedRow) []string {
	return []string{row.Date, row.Amount, row.Currency, row.Category, row.Subcategory, row.Account, row.Note, row.FailureReason}
}

// ExportSkipped writes skipped rows with their failure reason so they can be
// fixed and uploaded again.
func ExportSkipped(w io.Writer, rows []services.SkippedRow, format Format) error {
	switch format {
	case CSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(exportHeader()); err != nil {
			return err
		}
		for _, row := range rows {
			if err := writer.Write(exportRecord(row)); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	case XLSX:
		return writeXLSX(w, rows)
	default:
		return ErrUnsupportedFormat
	}
}

const skippedSheet = "Skipped"

func writeXLSX(w io.Writer, rows []services.SkippedRow) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", skippedSheet); err != nil {
		return err
	}
	if err := setRow(f, 1, exportHeader()); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, i+2, exportRecord(row)); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(skippedSheet, "H", "H", 40); err != nil {
		return err
	}
	return f.Write(w)
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, value := range values {
		cells[i] = value
	}
	return f.SetSheetRow(skippedSheet, cell, &cells)
}
