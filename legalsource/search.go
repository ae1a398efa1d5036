package legalsource

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// searchSite is one whitelisted site's search-page scraper: build the
// search URL for a query, then pull candidate result links out of the
// returned HTML using a fixed CSS-ish selector convention.
type searchSite struct {
	name        string
	searchURL   func(query string) string
	resultClass string // class of the element wrapping one result
	linkTag     string // tag of the anchor within a result element
}

var searchSites = []searchSite{
	{
		name:        "gov.uk",
		searchURL:   func(q string) string { return "https://www.gov.uk/search/all?keywords=" + url.QueryEscape(q) },
		resultClass: "gem-c-document-list__item",
		linkTag:     "a",
	},
	{
		name:        "acas.org.uk",
		searchURL:   func(q string) string { return "https://www.acas.org.uk/search?keywords=" + url.QueryEscape(q) },
		resultClass: "search-result",
		linkTag:     "a",
	},
	{
		name:        "citizensadvice.org.uk",
		searchURL:   func(q string) string { return "https://www.citizensadvice.org.uk/search/?q=" + url.QueryEscape(q) },
		resultClass: "search-result",
		linkTag:     "a",
	},
}

// candidate is one scraped search hit, not yet fetched.
type candidate struct {
	url   string
	title string
}

// Searcher finds candidate whitelisted URLs for a query and fetches each
// through a Fetcher, so the returned snapshots are cached the same as any
// direct fetch.
type Searcher struct {
	fetcher *Fetcher
	log     *slog.Logger
}

// NewSearcher returns a Searcher that resolves candidates via fetcher.
func NewSearcher(fetcher *Fetcher, log *slog.Logger) *Searcher {
	if log == nil {
		log = slog.Default()
	}
	return &Searcher{fetcher: fetcher, log: log}
}

// Search runs the fixed set of whitelisted site searches, fetches each
// candidate through the Fetcher (so results are validated and cached the
// same way any citation target is), and returns whatever succeeded.
// Per-source and per-candidate failures are logged and skipped, never
// fatal to the overall call.
func (s *Searcher) Search(ctx context.Context, query string, maxPerSite int) []Snapshot {
	var out []Snapshot
	for _, site := range searchSites {
		candidates, err := s.scrape(ctx, site, query, maxPerSite)
		if err != nil {
			s.log.Warn("legalsource: search failed", "site", site.name, "error", err)
			continue
		}
		for _, c := range candidates {
			snap, err := s.fetcher.Fetch(ctx, c.url, false)
			if err != nil {
				s.log.Warn("legalsource: fetching search candidate failed", "url", c.url, "error", err)
				continue
			}
			out = append(out, snap)
		}
	}
	return out
}

func (s *Searcher) scrape(ctx context.Context, site searchSite, query string, max int) ([]candidate, error) {
	searchURL := site.searchURL(query)
	u, err := url.Parse(searchURL)
	if err != nil {
		return nil, err
	}
	if !s.fetcher.whitelist.Allows(u.Hostname()) {
		return nil, ErrDomainNotAllowed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.fetcher.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var results []candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max || n.Type != html.ElementNode {
			return
		}
		if attrHasClass(n, site.resultClass) {
			if link, title, ok := findLink(n, site.linkTag); ok {
				results = append(results, candidate{url: resolveURL(u, link), title: title})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if len(results) >= max {
				return
			}
		}
	}
	walk(doc)
	return results, nil
}

func findLink(n *html.Node, tag string) (href, text string, ok bool) {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if found != nil {
			return
		}
		if node.Type == html.ElementNode && node.Data == tag {
			found = node
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if found == nil {
		return "", "", false
	}
	for _, a := range found.Attr {
		if a.Key == "href" {
			href = a.Val
		}
	}
	if href == "" {
		return "", "", false
	}
	var sb strings.Builder
	collectText(found, &sb)
	return href, strings.TrimSpace(sb.String()), true
}

func resolveURL(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
