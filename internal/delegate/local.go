package delegate

import (
	"context"
	"fmt"
	"strings"

	"github.com/stagehand-dev/stagehand/pkg/models"
)

// LocalExecutor is a stand-in execution delegate for dry runs: it echoes a
// synthetic output instead of calling an API.
type LocalExecutor struct{}

// Execute returns a canned acknowledgement of the brief.
func (LocalExecutor) Execute(_ context.Context, content string) (string, error) {
	firstLine := content
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}
	return fmt.Sprintf("[dry-run] acknowledged: %s", firstLine), nil
}

// LocalVerifier is a stand-in verification delegate for dry runs: it passes
// every item unconditionally.
type LocalVerifier struct{}

// Verify passes all expected items.
func (LocalVerifier) Verify(_ context.Context, _ string, expected []string) (models.VerificationResult, error) {
	items := make([]models.VerificationItem, len(expected))
	for i := range items {
		items[i] = models.VerificationItem{Pass: true}
	}
	return models.VerificationResult{Items: items, Overall: true, Raw: "dry-run: all items passed"}, nil
}
