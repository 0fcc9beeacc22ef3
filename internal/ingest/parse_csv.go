package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

func parseCSV(data []byte) (*ParsedFile, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: csv: %v", apperr.ErrParse, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: csv: empty file", apperr.ErrParse)
	}
	columns := records[0]
	rows := records[1:]
	meta := map[string]string{
		"format":       "csv",
		"column_count": strconv.Itoa(len(columns)),
		"row_count":    strconv.Itoa(len(rows)),
	}
	return &ParsedFile{
		Table:    &Table{Columns: columns, Rows: rows, Metadata: meta},
		Metadata: meta,
	}, nil
}
