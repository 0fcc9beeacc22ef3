package service

import (
	"strings"
	"testing"
)

func TestRenderHTMLCitationAndFooter(t *testing.T) {
	raw := `Our basic plan costs ten dollars. <cite data-url="https://example.com/pricing">Pricing Guide</cite>`
	sources := []Source{
		{URL: "https://example.com/pricing", Title: "Pricing Guide", Score: 0.9},
		{URL: "https://example.com/faq", Title: "FAQ", Score: 0.6},
	}
	got := RenderHTML(raw, sources)

	if !strings.Contains(got, `<a href="https://example.com/pricing" target="_blank" rel="noopener noreferrer"`) {
		t.Fatalf("cite tag not rewritten to anchor:\n%s", got)
	}
	if strings.Contains(got, "<cite") {
		t.Fatalf("raw cite tag leaked:\n%s", got)
	}
	if !strings.Contains(got, "<strong>Sources</strong>") {
		t.Fatalf("missing sources footer:\n%s", got)
	}
	if !strings.Contains(got, ">FAQ</a>") {
		t.Fatalf("uncited source must still be listed:\n%s", got)
	}
	cited := strings.Index(got, "Pricing Guide</a> <span")
	if cited == -1 || !strings.Contains(got[cited:], "(cited above)") {
		t.Fatalf("cited source should carry the marker:\n%s", got)
	}
	if strings.Count(got, "(cited above)") != 1 {
		t.Fatalf("only the cited source gets the marker:\n%s", got)
	}
}

func TestRenderHTMLNonHTTPCiteDegrades(t *testing.T) {
	raw := `See the upload. <cite data-url="file:///tmp/x">Internal Doc</cite>`
	got := RenderHTML(raw, nil)
	if strings.Contains(got, "file://") {
		t.Fatalf("non-http url must not become a link:\n%s", got)
	}
	if !strings.Contains(got, "Internal Doc") {
		t.Fatalf("title should survive as plain text:\n%s", got)
	}
}

func TestRenderHTMLSynthesizesParagraphsAndLists(t *testing.T) {
	raw := "First paragraph here.\n\n- point one\n- point two\n\nClosing paragraph."
	got := RenderHTML(raw, nil)
	if strings.Count(got, "<p ") != 2 {
		t.Fatalf("expected two paragraphs:\n%s", got)
	}
	if !strings.Contains(got, "<ul ") || strings.Count(got, "<li>") != 2 {
		t.Fatalf("expected a two-item list:\n%s", got)
	}
	if strings.Contains(got, "- point") {
		t.Fatalf("bullet markers should be stripped:\n%s", got)
	}
	if strings.Contains(got, "\n") {
		t.Fatalf("output must be newline free:\n%s", got)
	}
}

func TestRenderHTMLKeepsModelMarkup(t *testing.T) {
	raw := "<p>Already structured.</p>\n<ul><li>item</li></ul>"
	got := RenderHTML(raw, nil)
	if !strings.Contains(got, `<p style=`) || !strings.Contains(got, `<ul style=`) {
		t.Fatalf("existing blocks should get styles applied:\n%s", got)
	}
	if strings.Count(got, "<p") != 1 {
		t.Fatalf("no extra paragraphs should be synthesized:\n%s", got)
	}
}

func TestRenderHTMLEscapesSourceTitles(t *testing.T) {
	sources := []Source{{URL: "https://example.com/a", Title: `<script>alert("x")</script>`, Score: 0.9}}
	got := RenderHTML("plain answer", sources)
	if strings.Contains(got, "<script>") {
		t.Fatalf("source title must be escaped:\n%s", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Fatalf("expected escaped title:\n%s", got)
	}
}

func TestRenderHTMLNoSourcesNoFooter(t *testing.T) {
	got := RenderHTML("just an answer", nil)
	if strings.Contains(got, "Sources") {
		t.Fatalf("footer should be omitted without sources:\n%s", got)
	}
}
