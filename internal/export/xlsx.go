// Package export writes backend datasets as spreadsheets.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no records to export")

// leadingColumns are placed before all other columns, in this order.
var leadingColumns = []string{"date", "symbol"}

const maxSheetName = 31

// Columns returns the union of record keys: leading columns first, the rest
// sorted alphabetically.
func Columns(records []map[string]any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Slice(cols, func(i, j int) bool {
		ri, rj := leadingRank(cols[i]), leadingRank(cols[j])
		if ri != rj {
			return ri < rj
		}
		return cols[i] < cols[j]
	})
	return cols
}

func leadingRank(key string) int {
	for i, c := range leadingColumns {
		if strings.EqualFold(key, c) {
			return i
		}
	}
	return len(leadingColumns)
}

// Workbook builds a workbook with one sheet holding a bold header row and
// one row per record. The caller must Close the returned file.
func Workbook(sheet string, records []map[string]any) (*excelize.File, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	sheet = SheetName(sheet)
	cols := Columns(records)

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, rec := range records {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = cellValue(rec[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("addressing row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return f, nil
}

// Write builds a workbook from records and writes it to w.
func Write(w io.Writer, sheet string, records []map[string]any) error {
	f, err := Workbook(sheet, records)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// SheetName makes name acceptable as a worksheet name: characters Excel
// rejects are replaced and the result is capped at 31 runes.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, "'")
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	if name == "" {
		return "Data"
	}
	return name
}

// cellValue converts a decoded JSON value into something excelize can store.
// Numbers, strings and booleans are kept; nested values are stored as JSON.
func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
