package glob

import "testing"

func TestMatchEmptyPatternAcceptsEverything(t *testing.T) {
	for _, name := range []string{"file1", ".hidden", "dir1"} {
		if !Match("", name) {
			t.Errorf("empty pattern should match %q", name)
		}
	}
}

func TestMatchStarExcludesLeadingDot(t *testing.T) {
	if Match("*", ".hidden") {
		t.Error("* must not match a leading-dot name")
	}
	if !Match("*", "file1") {
		t.Error("* must match a non-dot name")
	}
}

func TestMatchDotStarOnlyMatchesLeadingDot(t *testing.T) {
	if !Match(".*", ".hidden") {
		t.Error(".* must match .hidden")
	}
	if Match(".*", "file1") {
		t.Error(".* must not match file1")
	}
}

func TestMatchQuestionMark(t *testing.T) {
	if !Match("file?", "file1") {
		t.Error("file? should match file1")
	}
	if Match("file?", "file12") {
		t.Error("file? should not match file12")
	}
}

func TestMatchCharacterRange(t *testing.T) {
	if !Match("[a-z]ile1", "file1") {
		t.Error("[a-z]ile1 should match file1")
	}
	if Match("[a-z]ile1", "Xile1") {
		t.Error("[a-z]ile1 should not match Xile1")
	}
}

func TestMatchMalformedPatternNeverMatches(t *testing.T) {
	if Match("[", "[") {
		t.Error("malformed pattern should never match")
	}
}
