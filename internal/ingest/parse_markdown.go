package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

// parseMarkdown strips markdown syntax by walking the parsed AST and keeping
// only the text segments, one block per top-level node.
func parseMarkdown(data []byte) (*ParsedFile, error) {
	parser := goldmark.New().Parser()
	root := parser.Parse(text.NewReader(data))

	var blocks []string
	headingCount := 0
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock {
			if _, ok := n.(*ast.Heading); ok {
				headingCount++
			}
			if block := blockText(n, data); block != "" {
				blocks = append(blocks, block)
			}
			// block text already covers the subtree
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: markdown: %v", apperr.ErrParse, err)
	}
	return &ParsedFile{
		Text: strings.Join(blocks, "\n\n"),
		Metadata: map[string]string{
			"format":        "markdown",
			"heading_count": strconv.Itoa(headingCount),
		},
	}, nil
}

func blockText(block ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(block, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteString(" ")
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(collapseSpace(sb.String()))
}
