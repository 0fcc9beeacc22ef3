package ingest

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/chatstack/chatstack/internal/config"
)

// PageResult reports one crawl target's outcome so the caller can build a
// per-item ingestion report.
type PageResult struct {
	URL  string
	Page *Page
	Err  error
}

type Crawler struct {
	fetcher         *Fetcher
	delay           time.Duration
	defaultMaxPages int
}

func NewCrawler(fetcher *Fetcher, cfg config.CrawlerConfig) *Crawler {
	return &Crawler{
		fetcher:         fetcher,
		delay:           time.Duration(cfg.DelayMillis) * time.Millisecond,
		defaultMaxPages: cfg.DefaultMaxPages,
	}
}

var binaryExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".webp": true, ".svg": true, ".ico": true, ".mp3": true,
	".wav": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".exe": true, ".dmg": true, ".pkg": true, ".deb": true, ".rpm": true,
}

// Crawl walks a site starting at startURL, up to maxPages pages. Sitemap URLs
// are authoritative when present: in-page links are only followed when no
// sitemap was found. The visited set belongs to this invocation alone, so
// concurrent crawls never interfere. Page failures are reported, never fatal.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxPages int) []PageResult {
	logger := logutil.GetLogger(ctx).With(zap.String("start_url", startURL))
	if maxPages <= 0 {
		maxPages = c.defaultMaxPages
	}

	start, err := url.Parse(startURL)
	if err != nil {
		return []PageResult{{URL: startURL, Err: err}}
	}

	queue := []string{startURL}
	followLinks := true
	if sitemapURLs := c.discoverSitemap(ctx, start, maxPages); len(sitemapURLs) > 0 {
		logger.Info("sitemap found", zap.Int("urls", len(sitemapURLs)))
		queue = sitemapURLs
		followLinks = false
	}

	visited := make(map[string]bool)
	var results []PageResult
	fetched := 0
	for len(queue) > 0 && fetched < maxPages {
		if ctx.Err() != nil {
			logger.Info("crawl cancelled", zap.Int("fetched", fetched))
			break
		}
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true

		if fetched > 0 {
			// politeness delay between successive fetches
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return results
			}
		}
		page, err := c.fetcher.Fetch(ctx, next)
		fetched++
		if err != nil {
			logger.Warn("page fetch failed, skipping", zap.String("url", next), zap.Error(err))
			results = append(results, PageResult{URL: next, Err: err})
			continue
		}
		results = append(results, PageResult{URL: next, Page: page})

		if !followLinks {
			continue
		}
		for _, link := range page.Links {
			if visited[link] || !crawlable(link, start) {
				continue
			}
			queue = append(queue, link)
		}
	}
	logger.Info("crawl finished", zap.Int("pages", fetched), zap.Int("ok", countOK(results)))
	return results
}

func countOK(results []PageResult) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// crawlable reports whether link should be enqueued: http(s) only, no binary
// payloads, and the same registrable domain as the start URL.
func crawlable(link string, start *url.URL) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if binaryExtensions[strings.ToLower(path.Ext(u.Path))] {
		return false
	}
	return sameRegistrableDomain(u.Hostname(), start.Hostname())
}

func sameRegistrableDomain(a, b string) bool {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return true
	}
	domainA, errA := publicsuffix.EffectiveTLDPlusOne(a)
	domainB, errB := publicsuffix.EffectiveTLDPlusOne(b)
	if errA != nil || errB != nil {
		return false
	}
	return domainA == domainB
}
