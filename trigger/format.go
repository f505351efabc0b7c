package trigger

import (
	"regexp"
	"strconv"
)

var placeholderRE = regexp.MustCompile(`\{(\d+)\}`)

// Format replaces {N} in text with capture group N of groups, where
// groups[0] is the whole match. Placeholders without a matching group are
// left as they are.
func Format(text string, groups []string) string {
	if len(groups) == 0 {
		return text
	}
	return placeholderRE.ReplaceAllStringFunc(text, func(marker string) string {
		n, err := strconv.Atoi(marker[1 : len(marker)-1])
		if err != nil || n >= len(groups) {
			return marker
		}
		return groups[n]
	})
}
