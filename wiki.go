package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type randomPager interface {
	RandomPageURL(ctx context.Context) (string, error)
}

// WikiClient talks to the external encyclopedia site: random page discovery,
// search suggestions, page fetches, and link extraction.
type WikiClient struct {
	base   string // https://<language>.<domain>
	domain string
	client *http.Client
}

func newWikiClient(cfg *Config) *WikiClient {
	return &WikiClient{
		base:   cfg.wikiBase(),
		domain: cfg.wikiDomain,
		client: &http.Client{Timeout: timeout},
	}
}

// randomPagePath is the "random article" special page. The Japanese wiki
// localizes the path; every other language answers to Special:Random.
func (w *WikiClient) randomPagePath() string {
	if strings.HasPrefix(w.base, "https://ja.") {
		return "/wiki/特別:おまかせ表示"
	}
	return "/wiki/Special:Random"
}

// RandomPageURL follows the random-article redirect and reports where it
// landed.
func (w *WikiClient) RandomPageURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.base+w.randomPagePath(), nil)
	if err != nil {
		return "", err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Request.URL.String(), nil
}

// Fetch retrieves the raw markup of a page. Callers are expected to have
// validated the URL already.
func (w *WikiClient) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

type Suggestion struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Search relays a query to the site's OpenSearch endpoint and returns up to
// eight suggestions, dropping any whose URL fails the safety check.
func (w *WikiClient) Search(ctx context.Context, query string) ([]Suggestion, error) {
	params := url.Values{}
	params.Set("action", "opensearch")
	params.Set("search", query)
	params.Set("limit", "8")
	params.Set("namespace", "0")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.base+"/w/api.php?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	// OpenSearch responds with [query, [titles], [descriptions], [urls]].
	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, nil
	}

	var titles, urls []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw[3], &urls); err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(titles))
	for i := range titles {
		if i >= len(urls) {
			break
		}
		if !isSafeURL(w.domain, urls[i]) {
			continue
		}
		suggestions = append(suggestions, Suggestion{Title: titles[i], URL: urls[i]})
	}

	return suggestions, nil
}

// ExtractLinks collects the in-article wiki links of a page: anchors inside
// the main content whose targets are plain articles (no namespaced pages).
func (w *WikiClient) ExtractLinks(ctx context.Context, pageURL string) ([]string, error) {
	markup, err := w.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	content := findByAttr(doc, "id", "mw-content-text")
	if content == nil {
		content = doc
	}

	seen := make(map[string]bool)
	var links []string

	walk(content, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		href := attrValue(n, "href")
		if !strings.HasPrefix(href, "/wiki/") {
			return true
		}

		full := w.base + href
		if strings.Contains(href, ":") || seen[full] {
			return true
		}

		seen[full] = true
		links = append(links, full)

		return true
	})

	return links, nil
}

// walk runs fn over every node in depth-first order; returning false prunes
// the subtree.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, fn)
	}
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func findByAttr(n *html.Node, key, val string) *html.Node {
	var found *html.Node
	walk(n, func(node *html.Node) bool {
		if found != nil {
			return false
		}
		if node.Type == html.ElementNode && attrValue(node, key) == val {
			found = node
			return false
		}
		return true
	})
	return found
}
