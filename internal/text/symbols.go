// Package text turns raw utterance text into the symbol ID sequences the
// acoustic model embeds, and back.
package text

// Pad and EOS are the two reserved symbols. Pad is index 0 so zero-padded
// batches embed the pad row.
const (
	Pad = "_"
	EOS = "~"
)

const characters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz!'(),-.:;? "

// arpabet lists the CMUdict phoneme set, with lexical stress suffixes.
var arpabet = []string{
	"AA", "AA0", "AA1", "AA2", "AE", "AE0", "AE1", "AE2", "AH", "AH0", "AH1", "AH2",
	"AO", "AO0", "AO1", "AO2", "AW", "AW0", "AW1", "AW2", "AY", "AY0", "AY1", "AY2",
	"B", "CH", "D", "DH", "EH", "EH0", "EH1", "EH2", "ER", "ER0", "ER1", "ER2", "EY",
	"EY0", "EY1", "EY2", "F", "G", "HH", "IH", "IH0", "IH1", "IH2", "IY", "IY0", "IY1",
	"IY2", "JH", "K", "L", "M", "N", "NG", "OW", "OW0", "OW1", "OW2", "OY", "OY0",
	"OY1", "OY2", "P", "R", "S", "SH", "T", "TH", "UH", "UH0", "UH1", "UH2", "UW",
	"UW0", "UW1", "UW2", "V", "W", "Y", "Z", "ZH",
}

var (
	symbols    = buildSymbols()
	symbolToID = indexSymbols(symbols)
)

func buildSymbols() []string {
	out := make([]string, 0, 2+len(characters)+len(arpabet))
	out = append(out, Pad, EOS)

	for _, r := range characters {
		out = append(out, string(r))
	}

	for _, p := range arpabet {
		out = append(out, "@"+p)
	}

	return out
}

func indexSymbols(syms []string) map[string]int64 {
	m := make(map[string]int64, len(syms))
	for i, s := range syms {
		m[s] = int64(i)
	}

	return m
}

// Symbols returns the full symbol table in ID order.
func Symbols() []string {
	return append([]string(nil), symbols...)
}

// NumSymbols is the embedding vocabulary size.
func NumSymbols() int {
	return len(symbols)
}

// ID returns the ID of a symbol.
func ID(symbol string) (int64, bool) {
	id, ok := symbolToID[symbol]
	return id, ok
}

// EOSID is the ID appended to every encoded sequence.
func EOSID() int64 {
	return symbolToID[EOS]
}
