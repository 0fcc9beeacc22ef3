package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/ledongthuc/pdf"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

func parsePDF(data []byte) (*ParsedFile, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", apperr.ErrParse, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", apperr.ErrParse, err)
	}
	var sb bytes.Buffer
	if _, err := io.Copy(&sb, plain); err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", apperr.ErrParse, err)
	}
	return &ParsedFile{
		Text: sb.String(),
		Metadata: map[string]string{
			"format":     "pdf",
			"page_count": strconv.Itoa(reader.NumPage()),
		},
	}, nil
}
