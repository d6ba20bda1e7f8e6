package mongostore

import "testing"

// The rest of Store requires a live MongoDB connection and isn't exercised
// here; these cover the pure regex-escaping helper List relies on.

func TestRegexpQuoteEscapesSpecialChars(t *testing.T) {
	cases := map[string]string{
		"plain":       "plain",
		"a.b":         `a\.b`,
		"batch:1+2":   `batch:1\+2`,
		"[x]":         `\[x\]`,
		"a(b)c":       `a\(b\)c`,
		`back\slash`:  `back\\slash`,
		"":            "",
	}
	for in, want := range cases {
		if got := regexpQuote(in); got != want {
			t.Errorf("regexpQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsRegexSpecial(t *testing.T) {
	for _, c := range []byte(".*+?()[]{}^$|\\") {
		if !isRegexSpecial(c) {
			t.Errorf("expected %q to be treated as a regex metacharacter", c)
		}
	}
	for _, c := range []byte("abcXYZ019-_:") {
		if isRegexSpecial(c) {
			t.Errorf("expected %q not to be treated as a regex metacharacter", c)
		}
	}
}
