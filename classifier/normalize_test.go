package classifier

import "testing"

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  hello world  ", "hello world"},
		{"keeps newlines and tabs", "a\n\tb", "a\n\tb"},
		{"strips control characters", "a\x00b\x07c", "abc"},
		{"nfkc fullwidth", "ＡＢＣ１２３", "ABC123"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeText(tc.in); got != tc.want {
				t.Fatalf("normalizeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
