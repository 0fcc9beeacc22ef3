package ingest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

// parseSpreadsheet flattens all sheets into one table. The first non-empty
// row of the first sheet provides the column names; later sheets are assumed
// to share the layout and contribute rows only.
func parseSpreadsheet(data []byte) (*ParsedFile, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", apperr.ErrParse, err)
	}
	defer f.Close()

	var columns []string
	var rows [][]string
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		sheetRows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: xlsx sheet %s: %v", apperr.ErrParse, sheet, err)
		}
		for _, row := range sheetRows {
			if emptyRow(row) {
				continue
			}
			if columns == nil {
				columns = row
				continue
			}
			rows = append(rows, row)
		}
	}
	if columns == nil {
		return nil, fmt.Errorf("%w: xlsx: no data", apperr.ErrParse)
	}
	meta := map[string]string{
		"format":       "xlsx",
		"sheets":       strings.Join(sheets, ", "),
		"column_count": strconv.Itoa(len(columns)),
		"row_count":    strconv.Itoa(len(rows)),
	}
	return &ParsedFile{
		Table:    &Table{Columns: columns, Rows: rows, Metadata: meta},
		Metadata: meta,
	}, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
