package text

import (
	"slices"
	"testing"
)

func TestChunkBySentence(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxChars int
		want     []string
	}{
		{name: "disabled", in: "One. Two.", maxChars: 0, want: []string{"One. Two."}},
		{name: "single sentence", in: "Just one", maxChars: 3, want: []string{"Just one"}},
		{name: "grouped", in: "One. Two. Three.", maxChars: 9, want: []string{"One. Two.", "Three."}},
		{name: "each", in: "One! Two? Three.", maxChars: 4, want: []string{"One!", "Two?", "Three."}},
		{name: "all fit", in: "A. B.", maxChars: 100, want: []string{"A. B."}},
		{name: "braces", in: "Say {AH0.} now. Next.", maxChars: 5, want: []string{"Say {AH0.} now.", "Next."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChunkBySentence(tt.in, tt.maxChars); !slices.Equal(got, tt.want) {
				t.Fatalf("ChunkBySentence(%q, %d) = %q, want %q", tt.in, tt.maxChars, got, tt.want)
			}
		})
	}
}
