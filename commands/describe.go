package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobridge/retrigger/trigger"
)

// Summary is the one-line listing of t.
func Summary(t *trigger.Trigger) string {
	kinds := make([]string, 0, len(t.ResponseTypes))
	for _, k := range t.ResponseTypes {
		kinds = append(kinds, string(k))
	}
	return fmt.Sprintf("`%s` (%s) `%s` fired %d times", t.Name, strings.Join(kinds, ", "), t.Pattern, t.Count)
}

// Describe renders every detail of t.
func Describe(t *trigger.Trigger) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Name:** %s\n", t.Name)
	fmt.Fprintf(&b, "**Author:** <@%s>\n", t.AuthorID)
	fmt.Fprintf(&b, "**Count:** %d\n", t.Count)
	fmt.Fprintf(&b, "**Regex:** `%s`\n", t.Pattern)

	for i, a := range t.Actions() {
		if t.IsMulti() {
			fmt.Fprintf(&b, "**Response %d:** %s\n", i+1, a.Kind)
		} else {
			fmt.Fprintf(&b, "**Response:** %s\n", a.Kind)
		}
		if a.Text != "" {
			fmt.Fprintf(&b, "**Text:** %s\n", a.Text)
		}
		if len(a.Payload) > 0 {
			fmt.Fprintf(&b, "**%s:** %s\n", payloadLabel(a.Kind), strings.Join(a.Payload, ", "))
		}
	}

	if t.Cooldown != nil {
		fmt.Fprintf(&b, "**Cooldown:** %s per %s\n", t.Cooldown.Duration, t.Cooldown.Scope)
	}
	if len(t.Whitelist) > 0 {
		fmt.Fprintf(&b, "**Whitelist:** %s\n", strings.Join(t.Whitelist, ", "))
	}
	if len(t.Blacklist) > 0 {
		fmt.Fprintf(&b, "**Blacklist:** %s\n", strings.Join(t.Blacklist, ", "))
	}
	if t.CheckFilenames {
		b.WriteString("**Checks filenames**\n")
	}
	if t.IgnoreEdits {
		b.WriteString("**Ignores edits**\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func payloadLabel(k trigger.Kind) string {
	switch k {
	case trigger.KindRandText:
		return "Responses"
	case trigger.KindImage, trigger.KindRandImage, trigger.KindResize:
		return "Images"
	case trigger.KindAddRole, trigger.KindRemoveRole:
		return "Roles"
	case trigger.KindReact:
		return "Emojis"
	case trigger.KindCommand, trigger.KindMock:
		return "Command"
	}
	return "Payload"
}

// paginate joins lines into pages no longer than limit.
func paginate(lines []string, limit int) []string {
	var (
		pages []string
		cur   strings.Builder
	)
	for _, l := range lines {
		if cur.Len() > 0 && cur.Len()+len(l)+1 > limit {
			pages = append(pages, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(l)
	}
	if cur.Len() > 0 {
		pages = append(pages, cur.String())
	}
	return pages
}

// denied strips the sentinel prefix from permission errors for display.
func denied(err error) string {
	if errors.Is(err, trigger.ErrPermissionDenied) {
		return strings.TrimPrefix(err.Error(), trigger.ErrPermissionDenied.Error()+": ")
	}
	return err.Error()
}
