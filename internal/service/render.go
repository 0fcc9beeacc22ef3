package service

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	citeTag      = regexp.MustCompile(`<cite\s+data-url="([^"]*)"\s*>([^<]*)</cite>`)
	anyTag       = regexp.MustCompile(`<[a-zA-Z][^>]*>`)
	interTagGap  = regexp.MustCompile(`>\s+<`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

const (
	paragraphStyle = `style="margin:0 0 10px 0;"`
	listStyle      = `style="margin:0 0 10px 0;padding-left:20px;"`
	linkStyle      = `style="color:#2563eb;text-decoration:underline;"`
)

// RenderHTML turns the model's raw output into display-ready HTML: inline
// cite tags become external-link anchors, plain text gets paragraph and list
// structure, and a Sources footer lists every retrieved source with the
// inline-cited ones marked.
func RenderHTML(raw string, sources []Source) string {
	text := strings.TrimSpace(raw)
	text = multiNewline.ReplaceAllString(text, "\n\n")

	citedURLs := make(map[string]bool)
	text = citeTag.ReplaceAllStringFunc(text, func(match string) string {
		m := citeTag.FindStringSubmatch(match)
		url, title := m[1], m[2]
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return title
		}
		citedURLs[url] = true
		return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer" %s>%s</a>`, url, linkStyle, title)
	})

	if !containsBlockMarkup(text) {
		text = synthesizeBlocks(text)
	} else {
		text = applyBlockStyles(text)
	}
	text = interTagGap.ReplaceAllString(text, "><")
	text = strings.ReplaceAll(text, "\n", " ")

	if footer := sourcesFooter(sources, citedURLs); footer != "" {
		text += footer
	}
	return text
}

// containsBlockMarkup checks for real structure, not just the inline anchors
// the cite rewrite introduced.
func containsBlockMarkup(text string) bool {
	for _, tag := range anyTag.FindAllString(text, -1) {
		if !strings.HasPrefix(tag, "<a ") && !strings.HasPrefix(tag, "<a>") {
			return true
		}
	}
	return false
}

// synthesizeBlocks builds paragraphs and bullet lists from plain text using
// blank lines and leading "- "/"• " markers.
func synthesizeBlocks(text string) string {
	var sb strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if isBulletBlock(lines) {
			sb.WriteString("<ul " + listStyle + ">")
			for _, line := range lines {
				item := strings.TrimSpace(line)
				item = strings.TrimPrefix(item, "- ")
				item = strings.TrimPrefix(item, "• ")
				sb.WriteString("<li>" + item + "</li>")
			}
			sb.WriteString("</ul>")
			continue
		}
		sb.WriteString("<p " + paragraphStyle + ">" + strings.Join(lines, " ") + "</p>")
	}
	return sb.String()
}

func isBulletBlock(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "• ") {
			return false
		}
	}
	return true
}

func applyBlockStyles(text string) string {
	text = strings.ReplaceAll(text, "<p>", "<p "+paragraphStyle+">")
	text = strings.ReplaceAll(text, "<ul>", "<ul "+listStyle+">")
	text = strings.ReplaceAll(text, "<ol>", "<ol "+listStyle+">")
	return text
}

// sourcesFooter always lists every source the retriever produced; inline
// citation only changes the marker, provenance is never hidden.
func sourcesFooter(sources []Source, citedURLs map[string]bool) string {
	if len(sources) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<div style="margin-top:12px;border-top:1px solid #e5e7eb;padding-top:8px;font-size:0.9em;"><strong>Sources</strong><ul ` + listStyle + `>`)
	for _, source := range sources {
		marker := ""
		if citedURLs[source.URL] {
			marker = ` <span style="color:#16a34a;">(cited above)</span>`
		}
		fmt.Fprintf(&sb, `<li><a href="%s" target="_blank" rel="noopener noreferrer" %s>%s</a>%s</li>`,
			source.URL, linkStyle, html.EscapeString(source.Title), marker)
	}
	sb.WriteString("</ul></div>")
	return sb.String()
}
