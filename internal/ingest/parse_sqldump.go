package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

var (
	createTableRe = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?[` + "`" + `"]?(\w+)[` + "`" + `"]?\s*\((.*?)\)\s*;`)
	insertRe      = regexp.MustCompile(`(?is)INSERT\s+INTO\s+[` + "`" + `"]?(\w+)[` + "`" + `"]?\s*(?:\([^)]*\)\s*)?VALUES\s*(.*?);`)
)

var columnKeywords = map[string]bool{
	"primary": true, "foreign": true, "unique": true, "key": true,
	"constraint": true, "index": true, "check": true,
}

// parseSQLDump reads the first CREATE TABLE statement for column names and
// collects rows from every INSERT into that table.
func parseSQLDump(data []byte) (*ParsedFile, error) {
	dump := string(data)
	create := createTableRe.FindStringSubmatch(dump)
	if create == nil {
		return nil, fmt.Errorf("%w: sql dump: no CREATE TABLE statement", apperr.ErrParse)
	}
	tableName := create[1]
	columns := parseColumnNames(create[2])
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: sql dump: no columns in CREATE TABLE %s", apperr.ErrParse, tableName)
	}

	var rows [][]string
	for _, insert := range insertRe.FindAllStringSubmatch(dump, -1) {
		if !strings.EqualFold(insert[1], tableName) {
			continue
		}
		for _, tuple := range splitValueTuples(insert[2]) {
			rows = append(rows, splitValues(tuple))
		}
	}
	meta := map[string]string{
		"format":       "sql",
		"table":        tableName,
		"column_count": strconv.Itoa(len(columns)),
		"row_count":    strconv.Itoa(len(rows)),
	}
	return &ParsedFile{
		Table:    &Table{Columns: columns, Rows: rows, Metadata: meta},
		Metadata: meta,
	}, nil
}

// parseColumnNames takes the body of a CREATE TABLE and returns the column
// names, skipping constraint clauses.
func parseColumnNames(body string) []string {
	var columns []string
	for _, def := range splitTopLevel(body, ',') {
		fields := strings.Fields(strings.TrimSpace(def))
		if len(fields) == 0 {
			continue
		}
		name := strings.Trim(fields[0], "`\"")
		if columnKeywords[strings.ToLower(name)] {
			continue
		}
		columns = append(columns, name)
	}
	return columns
}

// splitValueTuples splits `(a, b), (c, d)` into the tuple bodies.
func splitValueTuples(values string) []string {
	var tuples []string
	depth := 0
	start := -1
	inString := false
	for i := 0; i < len(values); i++ {
		ch := values[i]
		if inString {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '\'' {
				inString = false
			}
			continue
		}
		switch ch {
		case '\'':
			inString = true
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 && start >= 0 {
				tuples = append(tuples, values[start:i])
				start = -1
			}
		}
	}
	return tuples
}

func splitValues(tuple string) []string {
	parts := splitTopLevel(tuple, ',')
	row := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if strings.EqualFold(value, "NULL") {
			row = append(row, "")
			continue
		}
		if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
			value = strings.ReplaceAll(value[1:len(value)-1], "''", "'")
			value = strings.ReplaceAll(value, `\'`, "'")
		}
		row = append(row, value)
	}
	return row
}

// splitTopLevel splits on sep outside of quotes and parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inString := false
	last := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '\'' {
				inString = false
			}
			continue
		}
		switch ch {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	if last <= len(s) {
		parts = append(parts, s[last:])
	}
	return parts
}
