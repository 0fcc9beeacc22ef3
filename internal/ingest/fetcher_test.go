package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatstack/chatstack/internal/config"
	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

func testFetcher() *Fetcher {
	return NewFetcher(config.CrawlerConfig{
		UserAgent:      "test-agent/1.0",
		TimeoutSeconds: 5,
	})
}

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Pricing Guide</title></head>
<body>
<nav><a href="/home">Home</a></nav>
<div class="cookie-banner">We use cookies</div>
<main>
<h1>Pricing</h1>
<p>Our basic plan costs ten dollars.</p>
<ul><li>Basic tier</li><li>Pro tier</li></ul>
<p>Contact <a href="/sales">sales</a> for volume discounts.</p>
</main>
<footer><p>All rights reserved.</p></footer>
<script>trackEverything()</script>
</body>
</html>`

func TestFetchExtractsMainContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	page, err := testFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "Pricing Guide", page.Title)
	require.Contains(t, page.Content, "Our basic plan costs ten dollars.")
	require.Contains(t, page.Content, "Basic tier")
	require.NotContains(t, page.Content, "Home")
	require.NotContains(t, page.Content, "We use cookies")
	require.NotContains(t, page.Content, "All rights reserved")
	require.NotContains(t, page.Content, "trackEverything")
	// the nav link sits in a stripped subtree, only the body link counts
	require.Equal(t, "1", page.Metadata["link_count"])
}

func TestFetchRejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	_, err := testFetcher().Fetch(context.Background(), server.URL)
	require.Error(t, err)
	require.True(t, apperr.IsFetch(err))
}

func TestFetchRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := testFetcher().Fetch(context.Background(), server.URL)
	require.Error(t, err)
	require.True(t, apperr.IsFetch(err))
}

func TestFetchFallsBackToBody(t *testing.T) {
	page := `<html><head></head><body><h1>Only Heading</h1><p>Body text here.</p></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	got, err := testFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "Only Heading", got.Title)
	require.Contains(t, got.Content, "Body text here.")
}

func TestExtractLinksResolvesAndFilters(t *testing.T) {
	page := `<html><body>
<a href="/relative">rel</a>
<a href="#section">frag</a>
<a href="mailto:x@example.com">mail</a>
<a href="https://example.com/abs#part">abs</a>
</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	got, err := testFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, got.Links, 2)
	require.Equal(t, server.URL+"/relative", got.Links[0])
	require.Equal(t, "https://example.com/abs", got.Links[1])
	// every href counts, even the skipped ones
	require.Equal(t, "4", got.Metadata["link_count"])
}

func TestCollapseSpace(t *testing.T) {
	if got := collapseSpace("  a \n\t b   c  "); got != "a b c" {
		t.Fatalf("collapseSpace = %q", got)
	}
}

func TestTypeAccepted(t *testing.T) {
	if !typeAccepted("text/html; charset=utf-8", []string{"text/html"}) {
		t.Fatal("charset suffix should still match")
	}
	if typeAccepted("", []string{"text/html"}) {
		t.Fatal("empty content type must be rejected")
	}
	if typeAccepted("image/png", []string{"text/html", "text/xml"}) {
		t.Fatal("image must be rejected")
	}
}

func TestUntitledFallback(t *testing.T) {
	page := `<html><body><p>no headings anywhere</p></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	got, err := testFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "Untitled Page", got.Title)
	require.True(t, strings.HasPrefix(got.Metadata["crawled_at"], "20"))
}
