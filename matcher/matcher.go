// Package matcher evaluates trigger patterns against message text on a
// bounded pool of workers, each evaluation limited by a hard timeout.
package matcher

import (
	"fmt"
	"path"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/gobridge/retrigger/trigger"
)

// Match is the first match of a pattern in a message.
type Match struct {
	// Groups holds the whole match at index 0 followed by every capture
	// group. Groups that did not participate are empty.
	Groups []string
	// Filename is set when the match came from an attachment name rather
	// than the message body.
	Filename string
}

// Text returns the whole matched text.
func (m *Match) Text() string {
	if m == nil || len(m.Groups) == 0 {
		return ""
	}
	return m.Groups[0]
}

// Compile validates source. Flags such as case insensitivity are written
// inline, e.g. "(?i)hello".
func Compile(source string) (*regexp2.Regexp, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: empty pattern", trigger.ErrInvalidPattern)
	}
	re, err := regexp2.Compile(source, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trigger.ErrInvalidPattern, err)
	}
	return re, nil
}

// Validate reports whether source compiles.
func Validate(source string) error {
	_, err := Compile(source)
	return err
}

// find runs re against text and, when body matching fails, against the
// base name of every filename.
func find(re *regexp2.Regexp, text string, filenames []string) (*Match, error) {
	m, err := re.FindStringMatch(text)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return toMatch(m, ""), nil
	}
	for _, name := range filenames {
		base := path.Base(strings.ReplaceAll(name, `\`, "/"))
		m, err := re.FindStringMatch(base)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return toMatch(m, name), nil
		}
	}
	return nil, nil
}

func toMatch(m *regexp2.Match, filename string) *Match {
	groups := m.Groups()
	out := &Match{Groups: make([]string, len(groups)), Filename: filename}
	for i, g := range groups {
		if len(g.Captures) > 0 {
			out.Groups[i] = g.String()
		}
	}
	return out
}
