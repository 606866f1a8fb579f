// Package expect derives itemized expected output from a task description.
//
// Descriptions are free text; verification needs discrete, independently
// checkable requirement strings. Splitting is heuristic, driven by an ordered
// rule list: blank-line-separated paragraphs, then numbered "1)" markers,
// then markdown "- " bullets. The first rule that produces more than one item
// wins, so numbered markers take precedence over bullets on mixed input.
package expect

import (
	"regexp"
	"strings"
)

var (
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
	numberedRe  = regexp.MustCompile(`(?m)(?:^|\s)\d+\)\s*`)
	bulletRe    = regexp.MustCompile(`(?m)^-\s+`)
)

// Items splits a description into expected-output items. A description that
// matches none of the splitting rules yields itself as a single item; an
// empty description yields no items.
func Items(description string) []string {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return nil
	}

	for _, split := range []func(string) []string{byParagraph, byNumber, byBullet} {
		if items := split(trimmed); len(items) > 1 {
			return items
		}
	}
	return []string{trimmed}
}

func byParagraph(text string) []string {
	return clean(paragraphRe.Split(text, -1))
}

func byNumber(text string) []string {
	return clean(numberedRe.Split(text, -1))
}

func byBullet(text string) []string {
	// A bullet list may be preceded by an intro line; only the bulleted
	// lines themselves become items.
	if !bulletRe.MatchString(text) {
		return nil
	}
	parts := bulletRe.Split(text, -1)
	if len(parts) > 0 && !strings.HasPrefix(strings.TrimSpace(text), "-") {
		// Drop the intro text before the first bullet.
		parts = parts[1:]
	}
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		// Each item ends at the line the next bullet starts on.
		if i := strings.IndexByte(p, '\n'); i >= 0 {
			p = p[:i]
		}
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func clean(parts []string) []string {
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}
