package budget

import (
	"strings"
	"testing"
)

func TestTruncateShortTextUnchanged(t *testing.T) {
	text := "short output"
	if got := Truncate(text, 1000); got != text {
		t.Errorf("expected short text unchanged, got %q", got)
	}
	if got := Truncate(text, len(text)); got != text {
		t.Errorf("expected exact-fit text unchanged, got %q", got)
	}
}

func TestTruncateIdempotentOnShortText(t *testing.T) {
	text := strings.Repeat("x", 500)
	once := Truncate(text, 1000)
	twice := Truncate(once, 1000)
	if once != twice {
		t.Error("Truncate is not idempotent on already-short text")
	}
}

func TestTruncateBoundaries(t *testing.T) {
	// Distinct characters so slices can be compared positionally.
	var b strings.Builder
	for i := 0; i < 10000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()

	got := Truncate(text, 3000)
	if len(got) != 3000 {
		t.Fatalf("expected result length 3000, got %d", len(got))
	}
	if got[:2400] != text[:2400] {
		t.Error("first 80%% of budget must equal the head of the original text")
	}
	if got[2400:] != text[len(text)-600:] {
		t.Error("last 20%% of budget must equal the tail of the original text")
	}
}

func TestTruncateAlwaysWithinBudget(t *testing.T) {
	text := strings.Repeat("abc", 5000)
	for _, budget := range []int{1, 10, 99, 100, 1000, 14999, 15000, 20000} {
		if got := Truncate(text, budget); len(got) > budget && len(text) > budget {
			t.Errorf("budget %d: result length %d exceeds budget", budget, len(got))
		}
	}
}

func TestTruncateZeroBudget(t *testing.T) {
	if got := Truncate("anything", 0); got != "" {
		t.Errorf("expected empty result for zero budget, got %q", got)
	}
}

func TestTruncateMarked(t *testing.T) {
	text := strings.Repeat("z", 5000)
	got := TruncateMarked(text, 1000)
	if !strings.Contains(got, Marker) {
		t.Error("expected truncation marker in marked output")
	}
	if len(got) != 1000+len(Marker) {
		t.Errorf("expected head+marker+tail, got length %d", len(got))
	}

	short := "fits"
	if got := TruncateMarked(short, 100); got != short {
		t.Errorf("expected short text unmarked, got %q", got)
	}
}

func TestCutShares(t *testing.T) {
	text := strings.Repeat("q", 200)
	head, tail, truncated := Cut(text, 100)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if len(head) != 80 || len(tail) != 20 {
		t.Errorf("expected 80/20 split, got %d/%d", len(head), len(tail))
	}
}
