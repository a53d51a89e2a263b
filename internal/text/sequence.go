package text

import (
	"regexp"
	"strings"
)

// curlyRe splits "text {AH0 B} more" into prefix, ARPAbet body and suffix.
var curlyRe = regexp.MustCompile(`(?s)^(.*?)\{(.+?)\}(.*)$`)

// TextToSequence converts text to symbol IDs, applying cleaners to the plain
// text segments. Segments in curly braces are read as space-separated ARPAbet
// phonemes and are not cleaned. Symbols outside the table are dropped. The
// EOS ID is always appended, so empty input yields a single-element sequence.
func TextToSequence(s string, cleanerNames []string) ([]int64, error) {
	var seq []int64

	for s != "" {
		m := curlyRe.FindStringSubmatch(s)
		if m == nil {
			ids, err := cleanToIDs(s, cleanerNames)
			if err != nil {
				return nil, err
			}

			seq = append(seq, ids...)

			break
		}

		ids, err := cleanToIDs(m[1], cleanerNames)
		if err != nil {
			return nil, err
		}

		seq = append(seq, ids...)
		seq = append(seq, arpabetToIDs(m[2])...)
		s = m[3]
	}

	return append(seq, EOSID()), nil
}

// SequenceToText maps IDs back to text. ARPAbet symbols are rendered in
// curly braces, with adjacent groups merged. Unknown IDs are skipped.
func SequenceToText(seq []int64) string {
	var b strings.Builder

	for _, id := range seq {
		if id < 0 || int(id) >= len(symbols) {
			continue
		}

		s := symbols[id]
		if strings.HasPrefix(s, "@") {
			b.WriteString("{" + s[1:] + "}")
			continue
		}

		b.WriteString(s)
	}

	return strings.ReplaceAll(b.String(), "}{", " ")
}

func cleanToIDs(s string, cleanerNames []string) ([]int64, error) {
	cleaned, err := Clean(s, cleanerNames)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(cleaned))

	for _, r := range cleaned {
		sym := string(r)
		if sym == Pad || sym == EOS {
			continue
		}

		if id, ok := symbolToID[sym]; ok {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func arpabetToIDs(body string) []int64 {
	var ids []int64

	for _, p := range strings.Fields(body) {
		if id, ok := symbolToID["@"+p]; ok {
			ids = append(ids, id)
		}
	}

	return ids
}
