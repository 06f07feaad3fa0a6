package content

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lowercases s, strips diacritics and collapses every run of
// non-alphanumeric characters into a single hyphen.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[-_]`)

// splitDatePrefix parses a leading YYYY-MM-DD from a file stem.
func splitDatePrefix(stem string) (time.Time, string, bool) {
	m := datePrefix.FindStringSubmatch(stem)
	if m == nil {
		return time.Time{}, stem, false
	}
	d, err := time.Parse(time.DateOnly, m[1])
	if err != nil {
		return time.Time{}, stem, false
	}
	return d, stem[len(m[0]):], true
}
