package llm

import (
	"context"

	"wei/internal"
)

type Backend string

const (
	BackendPrimary   Backend = "primary"
	BackendSecondary Backend = "secondary"
)

// Extractor turns a document image into structured data. Callers may
// invoke it multiple times per document; failures come back as errors,
// never panics.
type Extractor interface {
	Extract(ctx context.Context, imagePath, instructions string, backend Backend) (internal.ExtractedDocument, error)
}

// Decider runs the matching decision step. Both backends accept the
// same prompt contract.
type Decider interface {
	Decide(ctx context.Context, prompt string, backend Backend) (internal.MatchDecision, error)
}
