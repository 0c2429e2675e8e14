package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{name: "short", in: "hello", limit: 10, want: []string{"hello"}},
		{name: "newline boundary", in: "aaaa\nbbbb\ncccc", limit: 10, want: []string{"aaaa\nbbbb", "cccc"}},
		{name: "hard cut", in: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "multibyte", in: "✅✅✅✅✅", limit: 2, want: []string{"✅✅", "✅✅", "✅"}},
	}
	for _, tt := range tests {
		got := splitText(tt.in, tt.limit)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Fatalf("%s: got %q want %q", tt.name, got, tt.want)
		}
	}
}

func TestSplitTextRespectsLimit(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("❌ Inactive Bell 1: 08:00\n", 400)
	for i, chunk := range splitText(in, textLimit) {
		if n := utf8.RuneCountInString(chunk); n > textLimit {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
}
