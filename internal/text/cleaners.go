package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownCleaner is returned for a cleaner name that is not registered.
var ErrUnknownCleaner = errors.New("text: unknown cleaner")

// Cleaner rewrites text before it is mapped to symbols.
type Cleaner func(string) string

var cleaners = map[string]Cleaner{
	"basic_cleaners":           BasicCleaners,
	"transliteration_cleaners": TransliterationCleaners,
	"english_cleaners":         EnglishCleaners,
}

// LookupCleaner returns the cleaner registered under name.
func LookupCleaner(name string) (Cleaner, error) {
	c, ok := cleaners[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCleaner, name)
	}

	return c, nil
}

// Clean runs the named cleaners in order.
func Clean(s string, names []string) (string, error) {
	for _, name := range names {
		c, err := LookupCleaner(name)
		if err != nil {
			return "", err
		}

		s = c(s)
	}

	return s, nil
}

// BasicCleaners lowercases and collapses whitespace.
func BasicCleaners(s string) string {
	return CollapseWhitespace(strings.ToLower(s))
}

// TransliterationCleaners folds accented letters to ASCII, then applies
// BasicCleaners.
func TransliterationCleaners(s string) string {
	return BasicCleaners(ToASCII(s))
}

// EnglishCleaners is TransliterationCleaners plus abbreviation expansion.
// Numbers are passed through unchanged.
func EnglishCleaners(s string) string {
	s = strings.ToLower(ToASCII(s))
	s = ExpandAbbreviations(s)

	return CollapseWhitespace(s)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace maps CR/LF and runs of whitespace to single spaces.
// Leading and trailing whitespace is kept as one space, matching the
// symbol table, which treats space as a symbol.
func CollapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, " ")
}

// ToASCII removes combining marks after canonical decomposition
// ("café" -> "cafe") and drops any rune that is still outside ASCII.
func ToASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}

		return r
	}, folded)
}

var abbreviations = []struct {
	re   *regexp.Regexp
	full string
}{
	{regexp.MustCompile(`\bmrs\.`), "misess"},
	{regexp.MustCompile(`\bmr\.`), "mister"},
	{regexp.MustCompile(`\bdr\.`), "doctor"},
	{regexp.MustCompile(`\bst\.`), "saint"},
	{regexp.MustCompile(`\bco\.`), "company"},
	{regexp.MustCompile(`\bjr\.`), "junior"},
	{regexp.MustCompile(`\bmaj\.`), "major"},
	{regexp.MustCompile(`\bgen\.`), "general"},
	{regexp.MustCompile(`\bdrs\.`), "doctors"},
	{regexp.MustCompile(`\brev\.`), "reverend"},
	{regexp.MustCompile(`\blt\.`), "lieutenant"},
	{regexp.MustCompile(`\bhon\.`), "honorable"},
	{regexp.MustCompile(`\bsgt\.`), "sergeant"},
	{regexp.MustCompile(`\bcapt\.`), "captain"},
	{regexp.MustCompile(`\besq\.`), "esquire"},
	{regexp.MustCompile(`\bltd\.`), "limited"},
	{regexp.MustCompile(`\bcol\.`), "colonel"},
	{regexp.MustCompile(`\bft\.`), "fort"},
}

// ExpandAbbreviations expands common English title and unit abbreviations.
// Input is expected to be lowercase.
func ExpandAbbreviations(s string) string {
	for _, a := range abbreviations {
		s = a.re.ReplaceAllString(s, a.full)
	}

	return s
}
