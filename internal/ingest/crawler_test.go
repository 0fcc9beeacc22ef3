package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatstack/chatstack/internal/config"
)

func testCrawler(fetcher *Fetcher) *Crawler {
	return NewCrawler(fetcher, config.CrawlerConfig{
		DelayMillis:     1,
		DefaultMaxPages: 10,
	})
}

func TestCrawlableFiltersLinks(t *testing.T) {
	start, _ := url.Parse("https://same.example.com/start")
	tests := []struct {
		link string
		want bool
	}{
		{"https://same.example.com/sub", true},
		{"https://other.example.org/x", false},
		{"https://docs.same.example.com/page", true},
		{"ftp://same.example.com/file", false},
		{"https://same.example.com/report.pdf", false},
		{"https://same.example.com/image.PNG", false},
		{"https://same.example.com/page.html", true},
	}
	for _, tt := range tests {
		if got := crawlable(tt.link, start); got != tt.want {
			t.Errorf("crawlable(%q) = %v, want %v", tt.link, got, tt.want)
		}
	}
}

func TestSameRegistrableDomain(t *testing.T) {
	if !sameRegistrableDomain("www.example.com", "blog.example.com") {
		t.Fatal("subdomains of one registrable domain should match")
	}
	if sameRegistrableDomain("example.com", "example.org") {
		t.Fatal("different domains must not match")
	}
	if !sameRegistrableDomain("localhost", "localhost") {
		t.Fatal("equal hosts always match")
	}
}

func TestCrawlFollowsLinksWithoutSitemap(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Root</title></head><body><main><p>root page content.</p><a href="/a">a</a><a href="/a">dup</a></main></body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>A</title></head><body><main><p>page a content.</p></main></body></html>`)
	})

	results := testCrawler(testFetcher()).Crawl(context.Background(), server.URL+"/", 5)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.Equal(t, "Root", results[0].Page.Title)
	require.Equal(t, "A", results[1].Page.Title)
}

func TestCrawlPageFailureIsReportedNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Root</title></head><body><main><p>fine.</p><a href="/broken">x</a><a href="/ok">y</a></main></body></html>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>OK</title></head><body><main><p>still here.</p></main></body></html>`)
	})

	results := testCrawler(testFetcher()).Crawl(context.Background(), server.URL+"/", 5)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
}

func TestCrawlRespectsPageCap(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>P%d</title></head><body><main><p>content.</p><a href="/p%d">next</a></main></body></html>`, n, n)
	})

	results := testCrawler(testFetcher()).Crawl(context.Background(), server.URL+"/", 3)
	require.Len(t, results, 3)
}

func TestCrawlUsesSitemapAsAuthoritative(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><urlset><url><loc>%s/listed</loc></url></urlset>`, server.URL)
	})
	mux.HandleFunc("/listed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Listed</title></head><body><main><p>from sitemap.</p><a href="/unlisted">x</a></main></body></html>`)
	})
	mux.HandleFunc("/unlisted", func(w http.ResponseWriter, r *http.Request) {
		t.Error("in-page links must not be followed when a sitemap exists")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	results := testCrawler(testFetcher()).Crawl(context.Background(), server.URL+"/", 5)
	require.Len(t, results, 1)
	require.Equal(t, "Listed", results[0].Page.Title)
}

func TestParseSitemap(t *testing.T) {
	urlset := []byte(`<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://example.com/a</loc></url>
<url><loc>https://example.com/b</loc></url>
</urlset>`)
	pages, children := parseSitemap(urlset)
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, pages)
	require.Empty(t, children)

	index := []byte(`<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
</sitemapindex>`)
	pages, children = parseSitemap(index)
	require.Empty(t, pages)
	require.Equal(t, []string{"https://example.com/sitemap-1.xml"}, children)

	pages, children = parseSitemap([]byte("not xml at all"))
	require.Empty(t, pages)
	require.Empty(t, children)
}
