// Package covfefe converts almost any word into covfefe.
package covfefe

import (
	"context"
	"regexp"
	"strings"

	"github.com/gobridge/retrigger/commands"
)

var word = regexp.MustCompile(`(.*?[aeiouy])([^aeiouy]).*?([aeiouy])`)

const (
	voiced   = "pgtvkgbzdfs"
	unvoiced = "bcdfgkpstvz"
)

// Convert spells s the covfefe way. It reports false when s has no
// vowel, consonant, vowel sequence to work with.
func Convert(s string) (string, bool) {
	m := word.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	prefix, consonant, vowel := m[1], m[2], m[3]

	swapped := consonant
	if i := strings.Index(voiced, consonant); i >= 0 {
		swapped = unvoiced[i : i+1]
	}
	return prefix + consonant + strings.Repeat(swapped+vowel, 2), true
}

// Register adds the covefy command to r.
func Register(r *commands.Router) {
	r.Register(&commands.Command{
		Name: "covefy",
		Help: "Convert almost any word into covfefe",
		Handler: commands.HandlerFunc(func(ctx context.Context, req *commands.Request, resp commands.Responder) {
			if len(req.Args) == 0 {
				resp.Respond(ctx, "Usage: `covefy <word>`")
				return
			}
			out, ok := Convert(req.Args[0])
			if !ok {
				resp.Respond(ctx, "I cannot covfefeify that word")
				return
			}
			resp.Respond(ctx, out)
		}),
	})
}
