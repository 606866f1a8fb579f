package engine

import (
	"context"

	"github.com/stagehand-dev/stagehand/pkg/models"
)

// ExecutionDelegate performs the work described by a task prompt and returns
// the claimed output. Implementations must honor context cancellation.
type ExecutionDelegate interface {
	Execute(ctx context.Context, content string) (string, error)
}

// VerificationDelegate judges a claimed output against the expected items.
// The verifier must be independent of the executor: it sees only the raw
// output and the expectations, never the execution conversation.
type VerificationDelegate interface {
	Verify(ctx context.Context, rawOutput string, expected []string) (models.VerificationResult, error)
}
