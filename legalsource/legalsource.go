// Package legalsource is the whitelisted legal web source fetcher and its
// content-addressed snapshot cache. A snapshot is write-once: a
// force-refresh overwrites the snapshot stored under the same id, but a
// cached read never mutates stored text. The cache is the canonical text
// the citation validator checks quoted excerpts against.
package legalsource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrDomainNotAllowed is returned when a URL's host is not in the
// configured whitelist. This check runs before any network I/O.
var ErrDomainNotAllowed = errors.New("legalsource: domain not allowed")

// ErrFetchFailed wraps any network or parse failure during a live fetch.
var ErrFetchFailed = errors.New("legalsource: fetch failed")

const (
	userAgent     = "Mozilla/5.0 (compatible; LegalRAGBot/1.0; legal research)"
	excerptChars  = 500
	defaultTimeout = 15 * time.Second
)

// Snapshot is a content-addressed capture of one URL at one fetch time.
type Snapshot struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Text        string    `json:"-"`
	HTML        string    `json:"-"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Excerpt returns a prefix of the snapshot's stored text, truncated to
// excerptChars with a trailing ellipsis when longer.
func (s Snapshot) Excerpt() string {
	text := strings.TrimSpace(s.Text)
	if len(text) <= excerptChars {
		return text
	}
	return strings.TrimSpace(text[:excerptChars]) + "..."
}

// snapshotMeta is the on-disk shape of meta.json.
type snapshotMeta struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	ContentHash string `json:"content_hash"`
	FetchedAt   string `json:"fetched_at"`
}

// Whitelist gates outbound fetches by host: a host matches if it equals a
// configured entry, or ends with "." + entry.
type Whitelist struct {
	domains []string
}

// NewWhitelist returns a Whitelist over the given domains, e.g.
// acas.org.uk, gov.uk, citizensadvice.org.uk.
func NewWhitelist(domains []string) Whitelist {
	return Whitelist{domains: domains}
}

// Allows reports whether host is permitted under the whitelist rule.
func (w Whitelist) Allows(host string) bool {
	host = strings.ToLower(host)
	for _, d := range w.domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Domains returns the configured whitelist entries, in order.
func (w Whitelist) Domains() []string {
	return w.domains
}

// Cache is the content-addressed, filesystem-backed snapshot store, rooted
// at one directory shared across all cases. Layout:
// {domain}/{url-hash}/{source.html,source.txt,meta.json}.
type Cache struct {
	baseDir string
}

// NewCache returns a Cache rooted at baseDir.
func NewCache(baseDir string) *Cache {
	return &Cache{baseDir: baseDir}
}

func urlHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *Cache) pathFor(domain, id string) string {
	return filepath.Join(c.baseDir, domain, id)
}

// Get loads a cached snapshot for rawURL, if one exists.
func (c *Cache) Get(rawURL string) (Snapshot, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("legalsource: parsing url: %w", err)
	}
	return c.load(u.Hostname(), urlHash(rawURL))
}

func (c *Cache) load(domain, id string) (Snapshot, bool, error) {
	dir := c.pathFor(domain, id)
	metaPath := filepath.Join(dir, "meta.json")
	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("legalsource: reading cache metadata: %w", err)
	}

	var meta snapshotMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Snapshot{}, false, fmt.Errorf("legalsource: decoding cache metadata: %w", err)
	}

	text, err := os.ReadFile(filepath.Join(dir, "source.txt"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, fmt.Errorf("legalsource: reading cached text: %w", err)
	}
	rawHTML, err := os.ReadFile(filepath.Join(dir, "source.html"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, fmt.Errorf("legalsource: reading cached html: %w", err)
	}

	fetchedAt, err := time.Parse(time.RFC3339, meta.FetchedAt)
	if err != nil {
		fetchedAt = time.Time{}
	}

	return Snapshot{
		ID:          meta.ID,
		URL:         meta.URL,
		Domain:      meta.Domain,
		Title:       meta.Title,
		Text:        string(text),
		HTML:        string(rawHTML),
		ContentHash: meta.ContentHash,
		FetchedAt:   fetchedAt,
	}, true, nil
}

// GetByID searches every domain directory for a snapshot with the given id.
func (c *Cache) GetByID(id string) (Snapshot, bool, error) {
	entries, err := os.ReadDir(c.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("legalsource: listing cache: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		snap, ok, err := c.load(e.Name(), id)
		if err != nil {
			return Snapshot{}, false, err
		}
		if ok {
			return snap, true, nil
		}
	}
	return Snapshot{}, false, nil
}

// store writes the snapshot under {domain}/{id}, atomically replacing any
// prior contents. Used both for fresh fetches and force-refresh overwrites.
func (c *Cache) store(domain, rawURL, title, rawHTML, text string) (Snapshot, error) {
	id := urlHash(rawURL)
	contentHash := sha256.Sum256([]byte(text))
	fetchedAt := time.Now().UTC()

	dir := c.pathFor(domain, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("legalsource: creating cache dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, "source.html"), []byte(rawHTML)); err != nil {
		return Snapshot{}, err
	}
	if err := writeFileAtomic(filepath.Join(dir, "source.txt"), []byte(text)); err != nil {
		return Snapshot{}, err
	}

	meta := snapshotMeta{
		ID:          id,
		URL:         rawURL,
		Domain:      domain,
		Title:       title,
		ContentHash: hex.EncodeToString(contentHash[:]),
		FetchedAt:   fetchedAt.Format(time.RFC3339),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("legalsource: marshaling cache metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, "meta.json"), metaBytes); err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		ID:          id,
		URL:         rawURL,
		Domain:      domain,
		Title:       title,
		Text:        text,
		HTML:        rawHTML,
		ContentHash: meta.ContentHash,
		FetchedAt:   fetchedAt,
	}, nil
}

// List enumerates every cached snapshot's metadata across all domains.
func (c *Cache) List() ([]Snapshot, error) {
	domains, err := os.ReadDir(c.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("legalsource: listing cache: %w", err)
	}

	var out []Snapshot
	for _, d := range domains {
		if !d.IsDir() {
			continue
		}
		ids, err := os.ReadDir(filepath.Join(c.baseDir, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("legalsource: listing domain %s: %w", d.Name(), err)
		}
		for _, idDir := range ids {
			if !idDir.IsDir() {
				continue
			}
			snap, ok, err := c.load(d.Name(), idDir.Name())
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, snap)
			}
		}
	}
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("legalsource: writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("legalsource: renaming %s into place: %w", filepath.Base(path), err)
	}
	return nil
}

// Fetcher retrieves whitelisted legal web pages, caching every successful
// fetch by URL hash.
type Fetcher struct {
	whitelist Whitelist
	cache     *Cache
	client    *http.Client
}

// NewFetcher returns a Fetcher gated by whitelist and backed by cache. A
// zero client defaults to one with a defaultTimeout budget.
func NewFetcher(whitelist Whitelist, cache *Cache, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{whitelist: whitelist, cache: cache, client: client}
}

// Fetch returns the snapshot for rawURL: fails immediately with
// ErrDomainNotAllowed if the host is not whitelisted, before any network
// I/O. Otherwise returns the cached snapshot unless forceRefresh is set or
// no snapshot exists, in which case it performs a live GET.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, forceRefresh bool) (Snapshot, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("legalsource: parsing url: %w", err)
	}
	if !f.whitelist.Allows(u.Hostname()) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDomainNotAllowed, u.Hostname())
	}

	if !forceRefresh {
		snap, ok, err := f.cache.Get(rawURL)
		if err != nil {
			return Snapshot{}, err
		}
		if ok {
			return snap, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: building request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("%w: unexpected status %d for %s", ErrFetchFailed, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}
	rawHTML := string(body)

	title, text, err := extractText(rawHTML)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: extracting text: %v", ErrFetchFailed, err)
	}

	return f.cache.store(u.Hostname(), rawURL, title, rawHTML, text)
}

var multiNewline = regexp.MustCompile(`\n{3,}`)
var multiSpace = regexp.MustCompile(`[ \t]+`)

// skippedTags are stripped from extraction entirely: script/style are never
// rendered text, nav/footer/header are boilerplate.
var skippedTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true, "header": true,
}

// preferredContainers are matched while walking the document in order: the
// first element that is one of these tags, or that carries role="main",
// class="content" or id="content", supplies the extraction root. If none is
// found, the whole document is used.
var preferredContainers = []string{"main", "article"}

// extractText parses rawHTML and returns its title and a cleaned plain-text
// rendering: boilerplate tags stripped, preferred content containers used
// when present, whitespace collapsed, and runs of 3+ newlines compressed to
// exactly 2.
func extractText(rawHTML string) (title, text string, err error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", "", err
	}

	title = findTitle(doc)
	root := findPreferredContainer(doc)
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	collectText(root, &sb)

	cleaned := multiSpace.ReplaceAllString(sb.String(), " ")
	lines := strings.Split(cleaned, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	cleaned = strings.Join(lines, "\n")
	cleaned = multiNewline.ReplaceAllString(cleaned, "\n\n")
	return title, strings.TrimSpace(cleaned), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// findPreferredContainer returns the first <main>/<article> element, or a
// node carrying role="main", class="content", or id="content", in document
// order. Returns nil if none is present.
func findPreferredContainer(n *html.Node) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if found != nil {
			return
		}
		if node.Type != html.ElementNode {
			for c := node.FirstChild; c != nil && found == nil; c = c.NextSibling {
				walk(c)
			}
			return
		}
		for _, tag := range preferredContainers {
			if node.Data == tag {
				found = node
				return
			}
		}
		if attrEquals(node, "role", "main") || attrHasClass(node, "content") || attrEquals(node, "id", "content") {
			found = node
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if found != nil {
				return
			}
		}
	}
	walk(n)
	return found
}

func attrEquals(n *html.Node, key, value string) bool {
	for _, a := range n.Attr {
		if a.Key == key && a.Val == value {
			return true
		}
	}
	return false
}

func attrHasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// collectText walks the DOM depth-first, skipping boilerplate tags and
// emitting each non-empty text node, trimmed, on its own line.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skippedTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
