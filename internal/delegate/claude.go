// Package delegate provides the Anthropic-backed execution and verification
// delegates, plus a local stand-in for dry runs.
package delegate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stagehand-dev/stagehand/pkg/models"
)

// Client wraps the Anthropic SDK client shared by both delegates.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the Claude model to use. Empty selects a default.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
}

// NewClient creates a new Anthropic API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &Client{
		inner: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}, nil
}

// extractText concatenates the text blocks of a response.
func extractText(resp *anthropic.Message) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	return b.String()
}

const executorSystemPrompt = `You are a task executor working on one task within a larger plan.
Complete the task exactly as described and reply with the full deliverable.
Do not summarize your work; reply with the actual result.`

// Executor performs task work through the Messages API.
type Executor struct {
	client *Client
}

// NewExecutor creates an execution delegate over the client.
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// Execute sends the task brief and returns the claimed output.
func (e *Executor) Execute(ctx context.Context, content string) (string, error) {
	resp, err := e.client.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.client.model,
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: executorSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("execution request: %w", err)
	}
	return extractText(resp), nil
}

const verifierSystemPrompt = `You are a strict verifier. You judge whether a claimed output satisfies
each expected item. You never see how the output was produced, only the
output itself. Be strict but fair; only fail items that are actually
unsatisfied.`

// Verifier judges claimed outputs through the Messages API, independent of
// the executor conversation.
type Verifier struct {
	client *Client
}

// NewVerifier creates a verification delegate over the client.
func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

// Verify asks the model for a per-item verdict and parses the response.
func (v *Verifier) Verify(ctx context.Context, rawOutput string, expected []string) (models.VerificationResult, error) {
	prompt := verificationPrompt(rawOutput, expected)

	resp, err := v.client.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     v.client.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: verifierSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return models.VerificationResult{}, fmt.Errorf("verification request: %w", err)
	}

	return parseVerdict(extractText(resp), len(expected)), nil
}

func verificationPrompt(rawOutput string, expected []string) string {
	var b strings.Builder
	b.WriteString("Judge the claimed output below against each expected item.\n\n")
	b.WriteString("## Expected items\n")
	for i, item := range expected {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	fmt.Fprintf(&b, "\n## Claimed output\n%s\n", rawOutput)
	b.WriteString(`
Respond with EXACTLY one line per expected item, in order:
N: PASS
or
N: FAIL - <one sentence explaining what is missing or wrong>

No other text.`)
	return b.String()
}

// parseVerdict maps the verifier's line-per-item response onto a result.
// Unparseable or missing lines count as failures; a verifier that cannot
// express a clear verdict must not pass the task.
func parseVerdict(response string, itemCount int) models.VerificationResult {
	result := models.VerificationResult{
		Items: make([]models.VerificationItem, itemCount),
		Raw:   response,
	}
	for i := range result.Items {
		result.Items[i] = models.VerificationItem{Pass: false, Note: "no verdict returned"}
	}

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		idx, rest, ok := splitVerdictLine(line)
		if !ok || idx < 1 || idx > itemCount {
			continue
		}
		item := &result.Items[idx-1]
		switch {
		case strings.HasPrefix(rest, "PASS"):
			item.Pass = true
			item.Note = ""
		case strings.HasPrefix(rest, "FAIL"):
			item.Pass = false
			item.Note = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(rest, "FAIL"), "-"))
			if item.Note == "" {
				item.Note = "requirement not met"
			}
		}
	}

	result.Overall = true
	for _, item := range result.Items {
		if !item.Pass {
			result.Overall = false
			break
		}
	}
	return result
}

// splitVerdictLine parses "N: <verdict>" into its parts.
func splitVerdictLine(line string) (int, string, bool) {
	colon := strings.Index(line, ":")
	if colon <= 0 {
		return 0, "", false
	}
	var idx int
	if _, err := fmt.Sscanf(line[:colon], "%d", &idx); err != nil {
		return 0, "", false
	}
	return idx, strings.TrimSpace(line[colon+1:]), true
}
