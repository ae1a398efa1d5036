// Package session declares the external session-summarizer contract the
// Answer Engine depends on. The summarizer itself — rolling case summaries,
// chronology extraction, persistence — lives outside this module's scope;
// only the interface the Engine calls against is defined here.
package session

// Summarizer supplies an opaque case-context blob to seed the answer
// prompt, and is notified after a successful Q&A turn so it can fold new
// facts into its own state. The Answer Engine calls Update only when a
// turn's citations all validate.
type Summarizer interface {
	// ContextFor returns the current context blob for a case. An empty
	// string is a valid response when no summary exists yet.
	ContextFor(caseID string) (string, error)

	// Update folds a successful turn's retrieved facts and cited legal
	// snapshot ids into the case's running context.
	Update(caseID string, retrievedFacts []string, legalSourceIDs []string) error
}
