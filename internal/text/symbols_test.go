package text

import "testing"

func TestSymbolTable(t *testing.T) {
	if got := NumSymbols(); got != 149 {
		t.Fatalf("NumSymbols() = %d, want 149", got)
	}

	syms := Symbols()
	if syms[0] != Pad || syms[1] != EOS {
		t.Fatalf("reserved symbols = %q %q, want %q %q", syms[0], syms[1], Pad, EOS)
	}

	if syms[2] != "A" || syms[len(syms)-1] != "@ZH" {
		t.Fatalf("unexpected table bounds %q .. %q", syms[2], syms[len(syms)-1])
	}

	seen := map[string]bool{}
	for i, s := range syms {
		if seen[s] {
			t.Fatalf("duplicate symbol %q at %d", s, i)
		}

		seen[s] = true

		id, ok := ID(s)
		if !ok || id != int64(i) {
			t.Fatalf("ID(%q) = %d,%v want %d", s, id, ok, i)
		}
	}
}

func TestSymbolsReturnsCopy(t *testing.T) {
	s := Symbols()
	s[0] = "x"

	if Symbols()[0] != Pad {
		t.Fatal("Symbols() exposed internal table")
	}
}
