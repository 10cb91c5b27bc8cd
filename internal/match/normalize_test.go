package match

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"leading dj stripped", "DJ Paul Elstak", "paul elstak"},
		{"leading the stripped", "The Beatles", "beatles"},
		{"trailing band stripped", "Dave Matthews Band", "dave matthews"},
		{"leading and trailing", "The Glenn Miller Orchestra", "glenn miller"},
		{"stacked leading tokens", "DJ MC Hammer", "hammer"},
		{"token in middle untouched", "Run The Jewels", "run the jewels"},
		{"no word boundary match", "Theodore", "theodore"},
		{"whitespace collapsed", "  Daft   Punk  ", "daft punk"},
		{"diacritics folded", "Motörhead", "motorhead"},
		{"never stripped to empty", "The", "the"},
		{"single trailing token kept", "Band", "band"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"DJ Paul Elstak",
		"The The",
		"The Glenn Miller Orchestra",
		"Motörhead",
		"Big Young King",
		"  spaced   out  ",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestIsCompilationMarker(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Various Artists", true},
		{"various artists", true},
		{"VA", true},
		{"V.A.", true},
		{"V/A", true},
		{"Verschiedene Künstler", true},
		{"Verschiedene Kunstler", true},
		{"Soundtrack", true},
		{"OST", true},
		{"Sampler", true},
		{"Compilation", true},
		{"  Various   Artists  ", true},
		// Substrings must not match.
		{"Variations", false},
		{"Various Artists Tribute", false},
		{"Vast", false},
		{"Ostra", false},
		{"", false},
	}

	for _, tt := range tests {
		got := IsCompilationMarker(tt.input)
		if got != tt.want {
			t.Errorf("IsCompilationMarker(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
