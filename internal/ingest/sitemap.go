package ingest

import (
	"context"
	"encoding/xml"
	"net/url"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var sitemapPaths = []string{"/sitemap", "/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml"}

type sitemapURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// discoverSitemap probes the well-known sitemap locations and returns up to
// limit page URLs. A sitemap index is resolved one level of children at a
// time until the limit is met.
func (c *Crawler) discoverSitemap(ctx context.Context, site *url.URL, limit int) []string {
	logger := logutil.GetLogger(ctx)
	base := *site
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	for _, probe := range sitemapPaths {
		candidate := base.String() + probe
		urls := c.resolveSitemap(ctx, candidate, limit, 0)
		if len(urls) > 0 {
			return urls
		}
		logger.Debug("no sitemap at candidate", zap.String("url", candidate))
	}
	return nil
}

const maxSitemapDepth = 3

func (c *Crawler) resolveSitemap(ctx context.Context, sitemapURL string, limit, depth int) []string {
	if depth > maxSitemapDepth || ctx.Err() != nil {
		return nil
	}
	data, err := c.fetcher.fetchRaw(ctx, sitemapURL, "xml", "text/plain", "text/html")
	if err != nil {
		return nil
	}
	pages, children := parseSitemap(data)
	if len(pages) > limit {
		pages = pages[:limit]
	}
	for _, child := range children {
		if len(pages) >= limit {
			break
		}
		childPages := c.resolveSitemap(ctx, child, limit-len(pages), depth+1)
		pages = append(pages, childPages...)
	}
	return pages
}

// parseSitemap accepts either a urlset or a sitemapindex document and returns
// (page URLs, child sitemap URLs).
func parseSitemap(data []byte) ([]string, []string) {
	var set sitemapURLSet
	if err := xml.Unmarshal(data, &set); err == nil && len(set.URLs) > 0 {
		pages := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if u.Loc != "" {
				pages = append(pages, u.Loc)
			}
		}
		return pages, nil
	}
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err == nil && len(index.Sitemaps) > 0 {
		children := make([]string, 0, len(index.Sitemaps))
		for _, s := range index.Sitemaps {
			if s.Loc != "" {
				children = append(children, s.Loc)
			}
		}
		return nil, children
	}
	return nil, nil
}
