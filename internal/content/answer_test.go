package content

import (
	"errors"
	"testing"
)

func TestResolveCorrectIndex(t *testing.T) {
	options := [4]string{"Mitochondria", "Ribosome", "Nucleus", "Golgi body"}

	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"single letter", "C", 2},
		{"lowercase letter", "b", 1},
		{"letter with padding", "  d  ", 3},
		{"option prefix", "Option_A", 0},
		{"full text match", "Nucleus", 2},
		{"full text case-insensitive", "ribosome", 1},
		{"full text with padding", "  Golgi body ", 3},
		{"leading letter of longer field", "A) the first one", 0},
	}

	for _, tc := range cases {
		got, err := ResolveCorrectIndex(tc.raw, options)
		if err != nil {
			t.Errorf("%s: ResolveCorrectIndex(%q): %v", tc.name, tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: ResolveCorrectIndex(%q) = %d, want %d", tc.name, tc.raw, got, tc.want)
		}
	}
}

func TestResolveCorrectIndexPrefersFullTextOverLeadingLetter(t *testing.T) {
	// "Carbon" starts with C but matches option text at index 0; the full-text
	// pass runs before the leading-letter fallback.
	options := [4]string{"Carbon", "Oxygen", "Nitrogen", "Helium"}

	got, err := ResolveCorrectIndex("Carbon", options)
	if err != nil {
		t.Fatalf("ResolveCorrectIndex: %v", err)
	}
	if got != 0 {
		t.Errorf("index = %d, want 0 (full-text match wins)", got)
	}
}

func TestResolveCorrectIndexAmbiguous(t *testing.T) {
	options := [4]string{"one", "two", "three", "four"}

	for _, raw := range []string{"", "E", "42", "no such option"} {
		_, err := ResolveCorrectIndex(raw, options)
		if !errors.Is(err, ErrAmbiguousCorrectAnswer) {
			t.Errorf("ResolveCorrectIndex(%q) err = %v, want ErrAmbiguousCorrectAnswer", raw, err)
		}
	}
}
