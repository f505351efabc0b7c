package commands

import (
	"errors"
	"strings"
	"unicode"
)

var errUnclosedQuote = errors.New("expected a closing quote")

// splitWord returns the first whitespace separated word of s and the rest.
func splitWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// SplitArgs splits s on whitespace. Double quotes group words; inside
// quotes \" is a literal quote and every other backslash is kept, so
// patterns like "\bword\b" survive unchanged.
func SplitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(rs) && rs[i+1] == '"':
			cur.WriteRune('"')
			i++
		case c == '"' && (inQuote || !started):
			inQuote = !inQuote
			started = true
		case !inQuote && unicode.IsSpace(c):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(c)
			started = true
		}
	}
	if inQuote {
		return nil, errUnclosedQuote
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

// restAfter returns the text of rest after skipping n arguments, the way
// a "*, text" parameter consumes the remainder of a command line.
func restAfter(rest string, n int) (string, error) {
	s := strings.TrimLeftFunc(rest, unicode.IsSpace)
	for ; n > 0; n-- {
		rs := []rune(s)
		i := 0
		if len(rs) > 0 && rs[0] == '"' {
			i = 1
			for i < len(rs) && rs[i] != '"' {
				if rs[i] == '\\' && i+1 < len(rs) && rs[i+1] == '"' {
					i++
				}
				i++
			}
			if i >= len(rs) {
				return "", errUnclosedQuote
			}
			i++
		} else {
			for i < len(rs) && !unicode.IsSpace(rs[i]) {
				i++
			}
		}
		s = strings.TrimLeftFunc(string(rs[i:]), unicode.IsSpace)
	}
	return strings.TrimSpace(s), nil
}

// ParseID extracts an id from a mention such as <@123>, <@!123>, <@&123>,
// <#123> or Slack's <#C123|general>. Plain ids are returned unchanged.
func ParseID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return s
	}
	s = s[1 : len(s)-1]
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	for _, p := range []string{"@&", "@!", "@", "#"} {
		if strings.HasPrefix(s, p) {
			return s[len(p):]
		}
	}
	return s
}

// parseBool accepts the spellings used for optional flags.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1", "y":
		return true, true
	case "false", "no", "off", "0", "n":
		return false, true
	}
	return false, false
}
