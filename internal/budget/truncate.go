// Package budget truncates oversized outputs to a caller-supplied size budget.
//
// The budget itself is computed externally (for example as a fraction of the
// remaining context capacity); this package only implements the truncation
// policy: keep the first 80% and the last 20% of the budget, drop the middle.
package budget

// Marker is inserted between the head and tail of truncated text when the
// truncation is surfaced to a delegate.
const Marker = "\n\n... [output too long, middle truncated] ...\n\n"

// headShare is the fraction of the budget spent on the leading text.
const headShare = 80

// Cut splits an over-budget text into its retained head and tail. If the text
// fits within budget it is returned unchanged as head, with truncated=false.
func Cut(text string, budget int) (head, tail string, truncated bool) {
	if budget <= 0 {
		return "", "", len(text) > 0
	}
	if len(text) <= budget {
		return text, "", false
	}
	headLen := budget * headShare / 100
	tailLen := budget - headLen
	return text[:headLen], text[len(text)-tailLen:], true
}

// Truncate returns the text reduced to exactly budget characters when it is
// over budget: the first 80% of budget characters followed by the last 20%.
// Already-short text is returned unchanged.
func Truncate(text string, budget int) string {
	head, tail, _ := Cut(text, budget)
	return head + tail
}

// TruncateMarked behaves like Truncate but joins the head and tail with an
// explicit truncation marker so a reader can see that the middle was dropped.
// The marker is not counted against the budget.
func TruncateMarked(text string, budget int) string {
	head, tail, truncated := Cut(text, budget)
	if !truncated {
		return head
	}
	return head + Marker + tail
}
