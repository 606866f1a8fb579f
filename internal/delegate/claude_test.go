package delegate

import (
	"strings"
	"testing"
)

func TestParseVerdictAllPass(t *testing.T) {
	resp := "1: PASS\n2: PASS\n3: PASS"
	got := parseVerdict(resp, 3)
	if !got.Overall {
		t.Errorf("expected overall pass: %+v", got)
	}
	for i, item := range got.Items {
		if !item.Pass {
			t.Errorf("item %d failed: %+v", i+1, item)
		}
	}
}

func TestParseVerdictMixed(t *testing.T) {
	resp := "1: PASS\n2: FAIL - missing the migration script\n3: PASS"
	got := parseVerdict(resp, 3)
	if got.Overall {
		t.Error("expected overall fail")
	}
	if got.Items[1].Pass {
		t.Error("item 2 should fail")
	}
	if got.Items[1].Note != "missing the migration script" {
		t.Errorf("note = %q", got.Items[1].Note)
	}
	if !got.Items[0].Pass || !got.Items[2].Pass {
		t.Errorf("items 1/3 should pass: %+v", got.Items)
	}
}

func TestParseVerdictMissingLinesFail(t *testing.T) {
	// A verdict the parser cannot read must never pass the task.
	got := parseVerdict("looks good to me!", 2)
	if got.Overall {
		t.Error("unparseable response must fail")
	}
	for _, item := range got.Items {
		if item.Pass {
			t.Errorf("item passed without a verdict: %+v", item)
		}
	}
}

func TestParseVerdictIgnoresChatter(t *testing.T) {
	resp := "Here is my assessment:\n1: PASS\nsome commentary\n2: FAIL - no tests\nThanks!"
	got := parseVerdict(resp, 2)
	if !got.Items[0].Pass || got.Items[1].Pass {
		t.Errorf("chatter confused the parser: %+v", got.Items)
	}
}

func TestParseVerdictOutOfRangeIndex(t *testing.T) {
	resp := "1: PASS\n7: PASS"
	got := parseVerdict(resp, 1)
	if !got.Overall {
		t.Errorf("valid line ignored: %+v", got)
	}
}

func TestVerificationPromptNumbersItems(t *testing.T) {
	prompt := verificationPrompt("the output", []string{"first", "second"})
	if !strings.Contains(prompt, "1. first") || !strings.Contains(prompt, "2. second") {
		t.Errorf("items not numbered:\n%s", prompt)
	}
	if !strings.Contains(prompt, "the output") {
		t.Error("output missing from prompt")
	}
}
