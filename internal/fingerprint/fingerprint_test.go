package fingerprint

import "testing"

func TestOfIgnoresCosmeticDifferences(t *testing.T) {
	base := Of("What is Go?", "A programming language.")

	cases := []struct {
		name        string
		front, back string
	}{
		{"different case", "WHAT IS GO?", "A Programming Language."},
		{"surrounding whitespace", "  What is Go?  ", "\tA programming language.\n"},
	}
	for _, c := range cases {
		if got := Of(c.front, c.back); got != base {
			t.Errorf("%s: expected identical hash", c.name)
		}
	}

	if Of("What is Go?", "A programming\nlanguage.") != Of("What is Go?", "A programming\r\nlanguage.") {
		t.Error("CRLF and LF content should hash identically")
	}
}

func TestOfDistinguishesContent(t *testing.T) {
	a := Of("What is Go?", "A programming language.")
	b := Of("What is Go?", "A board game.")
	if a == b {
		t.Error("different backs should hash differently")
	}

	// Content must not shift between front and back.
	if Of("ab", "c") == Of("a", "bc") {
		t.Error("front/back boundary should affect the hash")
	}
}

func TestOfIsHex(t *testing.T) {
	got := Of("q", "a")
	if len(got) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(got))
	}
}
