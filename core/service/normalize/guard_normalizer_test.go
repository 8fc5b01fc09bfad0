package normalize

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n  ", ""},
		{"collapse and trim", "  hello \n\n  world\t ", "hello world"},
		{"zero width", "mir\u200Bacle\u200C cu\u200Dre\uFEFF", "miracle cure"},
		{"zero width only", "\u200B\u200C\u200D", ""},
		{"nfc", "cafe\u0301", "café"},
		{"nbsp", "a\u00A0\u00A0b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"URGENT: 100% guaranteed miracle cure, it's not a hoax!",
		"a\u200B \u200B b",
		"e\u0301\u200B\u0301",
		"\u00A0lead and trail\u3000",
		"tabs\t\tand\r\nnewlines",
		strings.Repeat("word ", 300),
	}

	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"ab", false},
		{"abc", true},
		{"日本", false},
		{"日本語", true},
	}

	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCacheKey_PrefixAliasing(t *testing.T) {
	prefix := strings.Repeat("x", CacheKeyLength)
	a := CacheKey(prefix + " tail one")
	b := CacheKey(prefix + " tail two")

	if a != b {
		t.Error("texts sharing the key prefix should alias")
	}
	if len([]rune(a)) != CacheKeyLength {
		t.Errorf("key length = %d, want %d", len([]rune(a)), CacheKeyLength)
	}
}

func TestTruncate_Runes(t *testing.T) {
	s := strings.Repeat("한", 20)
	got := Truncate(s, 5)
	if got != strings.Repeat("한", 5) {
		t.Errorf("Truncate() = %q", got)
	}
	if Truncate("abc", 10) != "abc" {
		t.Error("short strings should be returned unchanged")
	}
	if len([]rune(TransportText(strings.Repeat("a", TransportLength+5)))) != TransportLength {
		t.Error("TransportText should cap at TransportLength")
	}
}
