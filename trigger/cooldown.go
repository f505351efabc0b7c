package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Scope selects what a cooldown is tracked per.
type Scope string

// Cooldown scopes.
const (
	ScopeGuild   Scope = "guild"
	ScopeChannel Scope = "channel"
	ScopeAuthor  Scope = "author"
)

// ParseScope accepts guild/server, channel and user/member/author.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "", "guild", "server":
		return ScopeGuild, nil
	case "channel":
		return ScopeChannel, nil
	case "user", "member", "author":
		return ScopeAuthor, nil
	}
	return "", fmt.Errorf("style must be either guild, server, channel, user, or member")
}

// Cooldown suppresses a trigger for Duration after it last fired within
// its scope.
type Cooldown struct {
	Duration    time.Duration        `json:"duration"`
	Scope       Scope                `json:"scope"`
	Last        time.Time            `json:"last,omitempty"`
	LastByScope map[string]time.Time `json:"last_by_scope,omitempty"`
}

// NewCooldown returns nil for a non-positive duration, which means no
// cooldown.
func NewCooldown(d time.Duration, scope Scope) *Cooldown {
	if d <= 0 {
		return nil
	}
	return &Cooldown{Duration: d, Scope: scope}
}

func (c *Cooldown) key(m *Message) string {
	switch c.Scope {
	case ScopeChannel:
		return m.ChannelID
	case ScopeAuthor:
		return m.AuthorID
	}
	return ""
}

func (c *Cooldown) last(m *Message) time.Time {
	if c.Scope == ScopeGuild || c.Scope == "" {
		return c.Last
	}
	return c.LastByScope[c.key(m)]
}

// Ready reports whether the cooldown lets a trigger fire for m at now.
// It does not record anything; see Commit.
func (c *Cooldown) Ready(m *Message, now time.Time) bool {
	if c == nil || c.Duration <= 0 {
		return true
	}
	last := c.last(m)
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= c.Duration
}

// Commit records a fire for m at now.
func (c *Cooldown) Commit(m *Message, now time.Time) {
	if c == nil || c.Duration <= 0 {
		return
	}
	if c.Scope == ScopeGuild || c.Scope == "" {
		c.Last = now
		return
	}
	if c.LastByScope == nil {
		c.LastByScope = make(map[string]time.Time)
	}
	c.LastByScope[c.key(m)] = now
}

// Prune drops per-scope entries that have expired and reports how many
// were removed.
func (c *Cooldown) Prune(now time.Time) int {
	if c == nil {
		return 0
	}
	n := 0
	for id, last := range c.LastByScope {
		if now.Sub(last) >= c.Duration {
			delete(c.LastByScope, id)
			n++
		}
	}
	return n
}

// Clone returns a deep copy of c.
func (c *Cooldown) Clone() *Cooldown {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LastByScope != nil {
		cp.LastByScope = make(map[string]time.Time, len(c.LastByScope))
		for k, v := range c.LastByScope {
			cp.LastByScope[k] = v
		}
	}
	return &cp
}
