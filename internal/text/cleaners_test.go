package text

import (
	"errors"
	"testing"
)

func TestCleaners(t *testing.T) {
	tests := []struct {
		name    string
		cleaner string
		in      string
		want    string
	}{
		{name: "basic lower", cleaner: "basic_cleaners", in: "Hello  World", want: "hello world"},
		{name: "basic newlines", cleaner: "basic_cleaners", in: "a\r\n\tb", want: "a b"},
		{name: "basic keeps accents", cleaner: "basic_cleaners", in: "Café", want: "café"},
		{name: "transliteration", cleaner: "transliteration_cleaners", in: "Café Noël", want: "cafe noel"},
		{name: "english abbreviations", cleaner: "english_cleaners", in: "Dr. Smith met Mr. Jones", want: "doctor smith met mister jones"},
		{name: "english mrs before mr", cleaner: "english_cleaners", in: "Mrs. Brown", want: "misess brown"},
		{name: "english numbers untouched", cleaner: "english_cleaners", in: "Route 66", want: "route 66"},
		{name: "english word boundary", cleaner: "english_cleaners", in: "amr. x", want: "amr. x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.in, []string{tt.cleaner})
			if err != nil {
				t.Fatalf("Clean: %v", err)
			}

			if got != tt.want {
				t.Fatalf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanUnknown(t *testing.T) {
	_, err := Clean("x", []string{"basic_cleaners", "nope"})
	if !errors.Is(err, ErrUnknownCleaner) {
		t.Fatalf("err = %v, want ErrUnknownCleaner", err)
	}
}

func TestCleanNoCleaners(t *testing.T) {
	got, err := Clean("Keep  As Is", nil)
	if err != nil || got != "Keep  As Is" {
		t.Fatalf("Clean() = %q, %v", got, err)
	}
}

func TestToASCIIDropsNonLatin(t *testing.T) {
	if got := ToASCII("naïve 日本"); got != "naive " {
		t.Fatalf("ToASCII = %q", got)
	}
}
