// Package citation parses citation markers out of an LLM's answer text and
// verifies each one against the immutable chunk/snapshot stores it claims
// to quote. A citation is valid only if all four checks pass: resolvability,
// locator consistency, whitelist membership, and excerpt containment.
package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/brunobiangulo/legalrag/legalsource"
	"github.com/brunobiangulo/legalrag/provenance"
)

// SourceType distinguishes a citation's evidence kind.
type SourceType string

const (
	Client SourceType = "client"
	Legal  SourceType = "legal"
)

// Citation is one parsed `[Source: ...] "excerpt"` marker.
type Citation struct {
	ID         string // snapshot id (legal) or chunk id / file_page key (client)
	SourceType SourceType
	URL        string // legal only
	FileName   string // client only
	PageNum    *int   // client only
	Excerpt    string
}

var clientPattern = regexp.MustCompile(`(?i)\[Source:\s*([^\],]+?)(?:,\s*page\s*(\d+))?\]\s*["“”]([^"“”]+)["“”]`)
var legalPattern = regexp.MustCompile(`\[Source:\s*(https?://[^\]]+)\]\s*["“”]([^"“”]+)["“”]`)

// Parse extracts every citation marker from an LLM's raw answer text. Legal
// matches are only kept when their URL matches one of the snapshots handed
// to the LLM (knownLegalSources); unmatched legal-looking markers are
// dropped, since they carry no resolvable snapshot id and would fail the
// resolvability check anyway.
func Parse(answer string, knownLegalSources []legalsource.Snapshot) []Citation {
	var citations []Citation

	for _, m := range clientPattern.FindAllStringSubmatch(answer, -1) {
		fileName := strings.TrimSpace(m[1])
		lowerName := strings.ToLower(fileName)
		if strings.HasPrefix(lowerName, "http://") || strings.HasPrefix(lowerName, "https://") {
			continue // URL markers are handled by legalPattern below
		}
		var pageNum *int
		if m[2] != "" {
			if n, err := strconv.Atoi(m[2]); err == nil {
				pageNum = &n
			}
		}
		excerpt := strings.TrimSpace(m[3])
		id := fileName
		if pageNum != nil {
			id = fmt.Sprintf("%s_%d", fileName, *pageNum)
		} else {
			id = fmt.Sprintf("%s_0", fileName)
		}
		citations = append(citations, Citation{
			ID:         id,
			SourceType: Client,
			FileName:   fileName,
			PageNum:    pageNum,
			Excerpt:    excerpt,
		})
	}

	for _, m := range legalPattern.FindAllStringSubmatch(answer, -1) {
		url := strings.TrimSpace(m[1])
		excerpt := strings.TrimSpace(m[2])

		var snapshotID string
		for _, s := range knownLegalSources {
			if s.URL == url {
				snapshotID = s.ID
				break
			}
		}
		if snapshotID == "" {
			continue
		}
		citations = append(citations, Citation{
			ID:         snapshotID,
			SourceType: Legal,
			URL:        url,
			Excerpt:    excerpt,
		})
	}

	return citations
}

// ChunkResolver resolves a client citation's id or (file, page) locator
// back to the concatenated text it must quote from. Implementations report
// a missing chunk/document via a wrapped sentinel error, matching
// provenance.Store's convention.
type ChunkResolver interface {
	GetChunkText(chunkID string) (string, error)
	GetRawText(fileName string, pageNum *int) (string, error)
}

// SnapshotResolver resolves a legal citation's snapshot id back to its
// stored snapshot.
type SnapshotResolver interface {
	GetByID(id string) (legalsource.Snapshot, bool, error)
}

// Validator checks parsed citations against the case's chunk store, the
// global snapshot cache, and the whitelist.
type Validator struct {
	chunks    ChunkResolver
	snapshots SnapshotResolver
	whitelist legalsource.Whitelist
}

// NewValidator returns a Validator bound to one case's chunk resolver, the
// global snapshot resolver, and the configured whitelist.
func NewValidator(chunks ChunkResolver, snapshots SnapshotResolver, whitelist legalsource.Whitelist) *Validator {
	return &Validator{chunks: chunks, snapshots: snapshots, whitelist: whitelist}
}

// Validate runs all four checks against one citation, returning (ok, reason).
// Reason is always human-readable, even when ok is true ("Valid").
func (v *Validator) Validate(c Citation) (bool, string) {
	switch c.SourceType {
	case Legal:
		return v.validateLegal(c)
	case Client:
		return v.validateClient(c)
	default:
		return false, fmt.Sprintf("unknown source type: %s", c.SourceType)
	}
}

func (v *Validator) validateLegal(c Citation) (bool, string) {
	snap, ok, err := v.snapshots.GetByID(c.ID)
	if err != nil || !ok {
		return false, fmt.Sprintf("Unknown citation ID: %s", c.ID)
	}

	if c.URL != "" && c.URL != snap.URL {
		return false, fmt.Sprintf("URL mismatch: cited %q but source has %q", c.URL, snap.URL)
	}

	host := hostOf(snap.URL)
	if !v.whitelist.Allows(host) {
		return false, fmt.Sprintf("Domain not whitelisted: %s", host)
	}

	return checkExcerpt(c.Excerpt, snap.Text, c.URL)
}

func (v *Validator) validateClient(c Citation) (bool, string) {
	if c.FileName == "" {
		return false, "Client citation has no file_name"
	}

	text, err := v.chunks.GetChunkText(c.ID)
	if err != nil {
		text, err = v.chunks.GetRawText(c.FileName, c.PageNum)
		if err != nil {
			return false, fmt.Sprintf("Source document not found: %s", c.FileName)
		}
	}

	return checkExcerpt(c.Excerpt, text, c.FileName)
}

func checkExcerpt(excerpt, source, locator string) (bool, string) {
	if excerpt == "" {
		return false, "Citation has no excerpt"
	}

	normExcerpt := normalizeWhitespace(excerpt)
	normSource := normalizeWhitespace(source)

	if strings.Contains(normSource, normExcerpt) {
		return true, "Valid"
	}
	if fuzzyExcerptMatch(excerpt, source, 0.8) {
		return true, "Valid"
	}
	return false, fmt.Sprintf("Excerpt not found in %s", locator)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// fuzzyExcerptMatch performs the sliding-window positional match required
// when an excerpt isn't a verbatim substring: excerpts under 3 words must
// match exactly and always fail here.
func fuzzyExcerptMatch(excerpt, source string, threshold float64) bool {
	excerptWords := strings.Fields(normalizeWhitespace(excerpt))
	sourceWords := strings.Fields(normalizeWhitespace(source))

	if len(excerptWords) < 3 {
		return false
	}

	windowSize := len(excerptWords)
	if windowSize > len(sourceWords) {
		return false
	}

	for i := 0; i+windowSize <= len(sourceWords); i++ {
		matches := 0
		for j := 0; j < windowSize; j++ {
			if excerptWords[j] == sourceWords[i+j] {
				matches++
			}
		}
		similarity := float64(matches) / float64(windowSize)
		if similarity >= threshold {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	rest := strings.TrimPrefix(rawURL, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Summary aggregates validation results across one answer's citations, for
// display or logging.
type Summary struct {
	Total   int
	Valid   int
	Invalid int
	Errors  []string
}

// Verdict is one citation's validation outcome.
type Verdict struct {
	Citation Citation
	OK       bool
	Reason   string
}

// ValidateAll validates every citation and returns the pass/fail reasons in
// the same order.
func (v *Validator) ValidateAll(citations []Citation) []Verdict {
	results := make([]Verdict, len(citations))
	for i, c := range citations {
		ok, reason := v.Validate(c)
		results[i] = Verdict{Citation: c, OK: ok, Reason: reason}
	}
	return results
}

// AllValid reports whether every citation passes, plus one human-readable
// error per failure naming the citation's most locally identifying field.
func (v *Validator) AllValid(citations []Citation) (bool, []string) {
	var errs []string
	for _, c := range citations {
		ok, reason := v.Validate(c)
		if !ok {
			locator := c.FileName
			if c.SourceType == Legal {
				locator = c.URL
			}
			errs = append(errs, fmt.Sprintf("%s: %s", locator, reason))
		}
	}
	return len(errs) == 0, errs
}

// Summarize builds a Summary for display, mirroring AllValid's pass/fail
// logic but retaining per-citation detail.
func (v *Validator) Summarize(citations []Citation) Summary {
	s := Summary{Total: len(citations)}
	_, errs := v.AllValid(citations)
	s.Errors = errs
	s.Invalid = len(errs)
	s.Valid = s.Total - s.Invalid
	return s
}
