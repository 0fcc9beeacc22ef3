package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

// Table is normalized tabular content extracted from a file.
type Table struct {
	Columns  []string
	Rows     [][]string
	Metadata map[string]string
}

// ParsedFile is the result of parsing one uploaded file. Exactly one of Text
// and Table is set depending on the source format.
type ParsedFile struct {
	Text     string
	Table    *Table
	Metadata map[string]string
}

func (p *ParsedFile) IsTabular() bool {
	return p.Table != nil
}

// ParseFile dispatches on the file extension. An unsupported or malformed
// file fails with ErrParse so the caller can skip it and continue the batch.
func ParseFile(name string, data []byte) (*ParsedFile, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return &ParsedFile{
			Text:     string(data),
			Metadata: map[string]string{"format": "text"},
		}, nil
	case ".md", ".markdown":
		return parseMarkdown(data)
	case ".csv":
		return parseCSV(data)
	case ".xlsx":
		return parseSpreadsheet(data)
	case ".pdf":
		return parsePDF(data)
	case ".docx":
		return parseDocx(data)
	case ".sql":
		return parseSQLDump(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", apperr.ErrParse, filepath.Ext(name))
	}
}
