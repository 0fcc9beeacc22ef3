package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

// parseDocx pulls paragraph text straight out of word/document.xml. Runs
// (w:t) concatenate within a paragraph, paragraphs (w:p) become blank-line
// separated blocks.
func parseDocx(data []byte) (*ParsedFile, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", apperr.ErrParse, err)
	}
	var doc *zip.File
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			doc = file
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: docx: word/document.xml missing", apperr.ErrParse)
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", apperr.ErrParse, err)
	}
	defer rc.Close()

	paragraphs, err := extractDocParagraphs(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", apperr.ErrParse, err)
	}
	return &ParsedFile{
		Text: strings.Join(paragraphs, "\n\n"),
		Metadata: map[string]string{
			"format":          "docx",
			"paragraph_count": strconv.Itoa(len(paragraphs)),
		},
	}, nil
}

func extractDocParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)
	var paragraphs []string
	var current strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if text := strings.TrimSpace(current.String()); text != "" {
		paragraphs = append(paragraphs, text)
	}
	return paragraphs, nil
}
