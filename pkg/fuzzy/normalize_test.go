package fuzzy

import "testing"

func TestNormalize(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		input string
		want  string
	}{
		{"The Dark Side of the Moon", "the dark side of the moon"},
		{"Simon & Garfunkel", "simon and garfunkel"},
		{"AC/DC", "ac dc"},
		{"Sigur Rós", "sigur ros"},
		{"  Weird   Spacing  ", "weird spacing"},
		{"Mike + The Mechanics", "mike and the mechanics"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := n.Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeStrict(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		input string
		want  string
	}{
		{"Animals (2018 Remaster)", "animals"},
		{"Discovery (Deluxe Edition)", "discovery"},
		{"The Wall", "wall"},
		{"Lady Marmalade (feat. Missy Elliott)", "lady marmalade"},
		{"Plain Title", "plain title"},
	}

	for _, tt := range tests {
		if got := n.NormalizeStrict(tt.input); got != tt.want {
			t.Errorf("NormalizeStrict(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
