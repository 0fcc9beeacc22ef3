package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/chatstack/chatstack/internal/config"
	apperr "github.com/chatstack/chatstack/internal/pkg/errors"
)

// Page is one acquired web page: extracted text plus structural metadata and
// the outbound links the crawler may follow.
type Page struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]string
	Links    []string
}

type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(cfg config.CrawlerConfig) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
	}
}

// Fetch retrieves one page and extracts its main content. Non-HTML/XML
// responses and bad statuses fail with ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	body, err := f.fetchRaw(ctx, pageURL, "text/html", "application/xhtml+xml", "text/xml", "application/xml")
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", apperr.ErrFetch, pageURL, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	page := extractPage(root, base)
	page.URL = pageURL
	return page, nil
}

func (f *Fetcher) fetchRaw(ctx context.Context, rawURL string, acceptTypes ...string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", apperr.ErrFetch, rawURL, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !typeAccepted(contentType, acceptTypes) {
		return nil, fmt.Errorf("%w: %s: unsupported content type %q", apperr.ErrFetch, rawURL, contentType)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	return body, nil
}

func typeAccepted(contentType string, accepted []string) bool {
	if contentType == "" {
		return false
	}
	lower := strings.ToLower(contentType)
	for _, want := range accepted {
		if strings.Contains(lower, want) {
			return true
		}
	}
	return false
}

// Tags whose subtrees never contain readable content.
var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
	"iframe":   true,
	"noscript": true,
	"form":     true,
}

var noiseTokens = map[string]bool{
	"ad":            true,
	"ads":           true,
	"advert":        true,
	"advertisement": true,
	"banner":        true,
	"cookie":        true,
	"popup":         true,
	"promo":         true,
	"sidebar":       true,
}

// Candidate containers for the main content, most specific first.
var contentSelectors = []func(*html.Node) bool{
	func(n *html.Node) bool { return n.Data == "main" },
	func(n *html.Node) bool { return n.Data == "article" },
	func(n *html.Node) bool { return attrValue(n, "role") == "main" },
	func(n *html.Node) bool { return attrValue(n, "id") == "main-content" },
	func(n *html.Node) bool { return attrValue(n, "id") == "content" },
	func(n *html.Node) bool { return hasClass(n, "main-content") },
	func(n *html.Node) bool { return hasClass(n, "content") },
	func(n *html.Node) bool { return hasClass(n, "post-content") },
	func(n *html.Node) bool { return hasClass(n, "article-body") },
}

var textTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "li": true, "td": true, "th": true, "blockquote": true, "pre": true,
}

func extractPage(root *html.Node, base *url.URL) *Page {
	title := extractTitle(root)
	container := findContentContainer(root)
	var blocks []string
	walkVisible(container, func(n *html.Node) bool {
		if n.Type == html.ElementNode && textTags[n.Data] {
			text := collapseSpace(innerText(n))
			if text != "" {
				blocks = append(blocks, text)
			}
			return false // do not descend; innerText already covered the subtree
		}
		return true
	})
	content := strings.Join(blocks, "\n\n")
	if title == "" {
		title = "Untitled Page"
	}

	links, linkCount := extractLinks(root, base)
	imageCount := 0
	walkVisible(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "img" {
			imageCount++
		}
		return true
	})

	return &Page{
		Title:   title,
		Content: content,
		Metadata: map[string]string{
			"title":       title,
			"word_count":  strconv.Itoa(len(strings.Fields(content))),
			"link_count":  strconv.Itoa(linkCount),
			"image_count": strconv.Itoa(imageCount),
			"crawled_at":  time.Now().UTC().Format(time.RFC3339),
		},
		Links: links,
	}
}

func extractTitle(root *html.Node) string {
	if n := findFirst(root, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "title" }); n != nil {
		if t := collapseSpace(innerText(n)); t != "" {
			return t
		}
	}
	if n := findFirst(root, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "h1" }); n != nil {
		return collapseSpace(innerText(n))
	}
	return ""
}

func findContentContainer(root *html.Node) *html.Node {
	for _, match := range contentSelectors {
		if n := findFirst(root, func(n *html.Node) bool { return n.Type == html.ElementNode && match(n) }); n != nil {
			return n
		}
	}
	if body := findFirst(root, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "body" }); body != nil {
		return body
	}
	return root
}

func extractLinks(root *html.Node, base *url.URL) ([]string, int) {
	var links []string
	count := 0
	walkVisible(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		href := strings.TrimSpace(attrValue(n, "href"))
		if href == "" {
			return true
		}
		count++
		if strings.HasPrefix(href, "#") {
			return true
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return true
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}
		resolved.Fragment = ""
		links = append(links, resolved.String())
		return true
	})
	return links, count
}

// walkVisible traverses the tree in document order, skipping stripped tags and
// obvious ad/banner/cookie noise. fn returning false prunes the subtree.
func walkVisible(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode {
		if strippedTags[n.Data] || isNoise(n) {
			return
		}
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkVisible(c, fn)
	}
}

func isNoise(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "id" && attr.Key != "class" {
			continue
		}
		for _, token := range strings.FieldsFunc(strings.ToLower(attr.Val), func(r rune) bool {
			return r == ' ' || r == '-' || r == '_'
		}) {
			if noiseTokens[token] {
				return true
			}
		}
	}
	return false
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func innerText(n *html.Node) string {
	var sb strings.Builder
	walkVisible(n, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		return true
	})
	return sb.String()
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
