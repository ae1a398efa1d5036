package answer

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/legalrag/legalsource"
	"github.com/brunobiangulo/legalrag/retrieval"
)

const systemPromptPreamble = `You are a legal assistant helping with case analysis. You MUST follow these rules:

CRITICAL RULES:
1. You may ONLY cite from the sources provided below.
2. Every factual claim MUST include a citation with a quoted excerpt.
3. If information is not in the provided sources, say "This information does not appear in the current case documents."
4. NEVER make up or hallucinate citations.
5. NEVER cite sources not listed below.

CITATION FORMAT:
For client documents:
- Use: [Source: filename.pdf, page X] "quoted text"

For legal sources:
- Use: [Source: URL] "quoted text"

`

// buildSystemPrompt assembles the grounding rules, citation syntax,
// session context, enumerated client chunks, and enumerated legal
// snapshots (capped at cfg.MaxLegalExcerpt chars each) into one prompt.
func (e *Engine) buildSystemPrompt(clientEvidence []retrieval.Result, legalSources []legalsource.Snapshot, sessionContext string) string {
	var b strings.Builder
	b.WriteString(systemPromptPreamble)

	if sessionContext != "" {
		fmt.Fprintf(&b, "CASE CONTEXT (from previous analysis):\n%s\n\n", sessionContext)
	}

	if len(clientEvidence) > 0 {
		b.WriteString("CLIENT DOCUMENTS (you may cite from these):\n")
		b.WriteString(strings.Repeat("=", 50) + "\n")
		for i, r := range clientEvidence {
			loc := locatorFor(r)
			fmt.Fprintf(&b, "\n[%d] File: %s, %s\n", i+1, r.Chunk.Provenance.FileName, loc)
			fmt.Fprintf(&b, "Content:\n%s\n", r.Chunk.Text)
		}
		b.WriteString(strings.Repeat("=", 50) + "\n\n")
	}

	if len(legalSources) > 0 {
		b.WriteString("LEGAL SOURCES (you may cite from these WHITELISTED domains only):\n")
		b.WriteString("Allowed domains: " + strings.Join(e.whitelist.Domains(), ", ") + "\n")
		b.WriteString(strings.Repeat("=", 50) + "\n")
		for i, s := range legalSources {
			fmt.Fprintf(&b, "\n[L%d] URL: %s\n", i+1, s.URL)
			fmt.Fprintf(&b, "Title: %s\n", s.Title)
			fmt.Fprintf(&b, "Content:\n%s\n", truncate(s.Text, e.cfg.MaxLegalExcerpt))
		}
		b.WriteString(strings.Repeat("=", 50) + "\n")
	}

	return b.String()
}

func locatorFor(r retrieval.Result) string {
	if r.Chunk.Provenance.PageNum != nil {
		return fmt.Sprintf("Page %d", *r.Chunk.Provenance.PageNum)
	}
	if r.Chunk.Provenance.ParaIdx != nil {
		return fmt.Sprintf("Para %d", *r.Chunk.Provenance.ParaIdx)
	}
	return ""
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

// buildStricterPrompt prepends the prior attempt's validation errors to the
// unchanged base prompt, reiterating that only exact-appearing quotes are
// acceptable and that declining is better than a bad citation.
func buildStricterPrompt(basePrompt string, validationErrors []string) string {
	var errList strings.Builder
	for _, e := range validationErrors {
		fmt.Fprintf(&errList, "- %s\n", e)
	}

	stricter := fmt.Sprintf(`IMPORTANT: Your previous response had citation errors that MUST be fixed:
%s
REMINDER:
- ONLY quote text that EXACTLY appears in the sources provided
- If you cannot find a supporting quote, DO NOT cite that source
- It is better to say "insufficient information" than to cite incorrectly

`, errList.String())

	return stricter + basePrompt
}
