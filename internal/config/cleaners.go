package config

import (
	"fmt"
	"strings"

	"github.com/example/go-tacotron2/internal/text"
)

// DefaultCleaner is used when no text cleaners are configured.
const DefaultCleaner = "english_cleaners"

// NormalizeCleaners trims and lowercases cleaner names, drops empty entries
// and rejects names the text package does not register. The short forms
// "basic", "transliteration" and "english" are accepted.
func NormalizeCleaners(raw []string) ([]string, error) {
	var out []string

	for _, name := range raw {
		// a comma-separated env value arrives as one element
		for _, part := range strings.Split(name, ",") {
			n := strings.ToLower(strings.TrimSpace(part))
			if n == "" {
				continue
			}

			if !strings.HasSuffix(n, "_cleaners") {
				n += "_cleaners"
			}

			if _, err := text.LookupCleaner(n); err != nil {
				return nil, fmt.Errorf("config: text cleaner %q: %w", part, err)
			}

			out = append(out, n)
		}
	}

	if len(out) == 0 {
		out = []string{DefaultCleaner}
	}

	return out, nil
}
