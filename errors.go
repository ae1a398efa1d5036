package legalrag

import "errors"

var (
	// ErrCaseNotFound is returned when a case id has no directory on disk.
	ErrCaseNotFound = errors.New("legalrag: case not found")

	// ErrUnsupportedFormat is returned for unrecognized document extensions.
	ErrUnsupportedFormat = errors.New("legalrag: unsupported document format")

	// ErrDocumentNotFound is returned when a file name has no entry in a
	// case's provenance index.
	ErrDocumentNotFound = errors.New("legalrag: document not found")

	// ErrChunkNotFound names a chunk id that has no entry in a case's
	// provenance index. Lookups report this case with
	// provenance.ErrChunkNotFound; nothing in this package returns this value.
	ErrChunkNotFound = errors.New("legalrag: chunk not found")

	// ErrDomainNotAllowed names a legal source URL whose host is not in the
	// configured whitelist. The fetcher reports this case with
	// legalsource.ErrDomainNotAllowed; nothing in this package returns this
	// value.
	ErrDomainNotAllowed = errors.New("legalrag: domain not allowed")

	// ErrFetchFailed names a legal source fetch's network or parse failure.
	// The fetcher wraps legalsource.ErrFetchFailed instead; nothing in this
	// package returns this value.
	ErrFetchFailed = errors.New("legalrag: legal source fetch failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("legalrag: embedding generation failed")

	// ErrLLMRequestFailed names a failed LLM chat request. The answer engine
	// reports a failed chat call with its own error, which does not wrap this
	// value.
	ErrLLMRequestFailed = errors.New("legalrag: LLM request failed")

	// ErrNoEvidence names a question that yields neither client evidence nor
	// legal sources. Nothing returns it: the answer engine still calls the
	// LLM when no evidence is found.
	ErrNoEvidence = errors.New("legalrag: no evidence found for question")

	// ErrCitationInvalid names a single citation that failed validation.
	// Nothing returns it: the answer engine's retry loop works from the
	// validator's boolean result and error strings.
	ErrCitationInvalid = errors.New("legalrag: citation invalid")

	// ErrMaxRetriesExceeded names an exhausted citation-retry budget. Nothing
	// returns it: the answer engine then returns the last answer with
	// citations_valid=false, its validation errors, and a nil error.
	ErrMaxRetriesExceeded = errors.New("legalrag: max citation retries exceeded")

	// ErrPathValidation is returned for a case id or file name that fails
	// path-safety checks.
	ErrPathValidation = errors.New("legalrag: path validation failed")

	// ErrInvalidConfig names an invalid configuration value. Nothing in this
	// package returns it.
	ErrInvalidConfig = errors.New("legalrag: invalid configuration")
)
