package ingest

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

func TestParseFileUnsupportedExtension(t *testing.T) {
	_, err := ParseFile("report.exe", []byte("MZ"))
	require.Error(t, err)
	require.True(t, apperr.IsParse(err))
}

func TestParseFilePlainText(t *testing.T) {
	parsed, err := ParseFile("notes.txt", []byte("hello world"))
	require.NoError(t, err)
	require.False(t, parsed.IsTabular())
	require.Equal(t, "hello world", parsed.Text)
	require.Equal(t, "text", parsed.Metadata["format"])
}

func TestParseCSV(t *testing.T) {
	data := []byte("name,price\nshoes,10\nhats,5\n")
	parsed, err := ParseFile("products.csv", data)
	require.NoError(t, err)
	require.True(t, parsed.IsTabular())
	require.Equal(t, []string{"name", "price"}, parsed.Table.Columns)
	require.Equal(t, [][]string{{"shoes", "10"}, {"hats", "5"}}, parsed.Table.Rows)
	require.Equal(t, "2", parsed.Metadata["row_count"])
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := parseCSV([]byte(""))
	require.Error(t, err)
	require.True(t, apperr.IsParse(err))
}

func TestParseMarkdownStripsSyntax(t *testing.T) {
	data := []byte("# Getting Started\n\nInstall the **binary** and run it.\n\n- step one\n- step two\n\n## Details\n")
	parsed, err := ParseFile("guide.md", data)
	require.NoError(t, err)
	require.False(t, parsed.IsTabular())
	require.Contains(t, parsed.Text, "Getting Started")
	require.Contains(t, parsed.Text, "Install the binary and run it.")
	require.Contains(t, parsed.Text, "step one")
	require.NotContains(t, parsed.Text, "#")
	require.NotContains(t, parsed.Text, "**")
	require.Equal(t, "2", parsed.Metadata["heading_count"])
}

func TestParseDocx(t *testing.T) {
	document := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
<w:p></w:p>
</w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = entry.Write([]byte(document))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	parsed, err := ParseFile("memo.docx", buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "First paragraph.\n\nSecond paragraph.", parsed.Text)
	require.Equal(t, "2", parsed.Metadata["paragraph_count"])
}

func TestParseDocxMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("other.xml")
	require.NoError(t, err)
	_, err = entry.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = parseDocx(buf.Bytes())
	require.Error(t, err)
	require.True(t, apperr.IsParse(err))
}

func TestParseSQLDump(t *testing.T) {
	dump := []byte("CREATE TABLE products (\n" +
		"  id INT PRIMARY KEY,\n" +
		"  name VARCHAR(100),\n" +
		"  price DECIMAL(10, 2),\n" +
		"  PRIMARY KEY (id)\n" +
		");\n" +
		"INSERT INTO products VALUES (1, 'shoes', 10.00), (2, 'O''Brien''s hats', NULL);\n" +
		"INSERT INTO other_table VALUES (9, 'ignored', 0);\n" +
		"INSERT INTO products (id, name, price) VALUES (3, 'socks, wool', 2.50);\n")

	parsed, err := ParseFile("dump.sql", dump)
	require.NoError(t, err)
	require.True(t, parsed.IsTabular())
	require.Equal(t, []string{"id", "name", "price"}, parsed.Table.Columns)
	require.Equal(t, [][]string{
		{"1", "shoes", "10.00"},
		{"2", "O'Brien's hats", ""},
		{"3", "socks, wool", "2.50"},
	}, parsed.Table.Rows)
	require.Equal(t, "products", parsed.Metadata["table"])
}

func TestParseSQLDumpNoCreateTable(t *testing.T) {
	_, err := parseSQLDump([]byte("INSERT INTO x VALUES (1);"))
	require.Error(t, err)
	require.True(t, apperr.IsParse(err))
}

func TestSplitTopLevel(t *testing.T) {
	parts := splitTopLevel("a, 'b, c', (d, e), f", ',')
	require.Len(t, parts, 4)
	require.Equal(t, " 'b, c'", parts[1])
	require.Equal(t, " (d, e)", parts[2])
}
