// Package trigger defines the persisted trigger record, the access filter
// and the cooldown policy evaluated before a trigger may fire.
package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags an action a trigger performs when it fires.
type Kind string

// Supported action kinds.
const (
	KindText       Kind = "text"
	KindRandText   Kind = "randtext"
	KindDM         Kind = "dm"
	KindImage      Kind = "image"
	KindRandImage  Kind = "randimage"
	KindResize     Kind = "resize"
	KindBan        Kind = "ban"
	KindKick       Kind = "kick"
	KindAddRole    Kind = "add_role"
	KindRemoveRole Kind = "remove_role"
	KindReact      Kind = "react"
	KindCommand    Kind = "command"
	KindMock       Kind = "mock"
	KindDelete     Kind = "delete"
	KindMulti      Kind = "multi"
)

var kindAliases = map[string]Kind{
	"text":        KindText,
	"randtext":    KindRandText,
	"random":      KindRandText,
	"randomtext":  KindRandText,
	"rtext":       KindRandText,
	"dm":          KindDM,
	"image":       KindImage,
	"randimage":   KindRandImage,
	"randomimage": KindRandImage,
	"rimage":      KindRandImage,
	"resize":      KindResize,
	"ban":         KindBan,
	"kick":        KindKick,
	"add_role":    KindAddRole,
	"addrole":     KindAddRole,
	"remove_role": KindRemoveRole,
	"removerole":  KindRemoveRole,
	"react":       KindReact,
	"command":     KindCommand,
	"cmd":         KindCommand,
	"mock":        KindMock,
	"delete":      KindDelete,
	"filter":      KindDelete,
	"multi":       KindMulti,
}

// ParseKind resolves a kind name or one of its aliases.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}

// Moderation reports whether the kind acts on the message author's
// membership rather than just posting something.
func (k Kind) Moderation() bool {
	switch k {
	case KindBan, KindKick, KindAddRole, KindRemoveRole, KindDelete:
		return true
	}
	return false
}

// Invokes reports whether the kind issues a host command.
func (k Kind) Invokes() bool {
	return k == KindCommand || k == KindMock
}

// Action is a single step executed when a trigger fires. A plain trigger
// has exactly one; a multi trigger has one per configured response.
type Action struct {
	Kind    Kind     `json:"kind"`
	Text    string   `json:"text,omitempty"`
	Payload []string `json:"payload,omitempty"`
}

// Trigger is one rule, uniquely named within a guild.
type Trigger struct {
	Name           string    `json:"name"`
	Pattern        string    `json:"pattern"`
	ResponseTypes  []Kind    `json:"response_types"`
	AuthorID       string    `json:"author_id"`
	Count          int64     `json:"count"`
	Payload        []string  `json:"payload,omitempty"`
	Text           string    `json:"text,omitempty"`
	Multi          []Action  `json:"multi,omitempty"`
	CheckFilenames bool      `json:"check_filenames,omitempty"`
	IgnoreEdits    bool      `json:"ignore_edits,omitempty"`
	Whitelist      []string  `json:"whitelist,omitempty"`
	Blacklist      []string  `json:"blacklist,omitempty"`
	Cooldown       *Cooldown `json:"cooldown,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// New builds a single-action trigger.
func New(name, pattern string, kind Kind, authorID, text string, payload ...string) *Trigger {
	return &Trigger{
		Name:          name,
		Pattern:       pattern,
		ResponseTypes: []Kind{kind},
		AuthorID:      authorID,
		Text:          text,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

// NewMulti builds a trigger running every action in order.
func NewMulti(name, pattern, authorID string, actions []Action) *Trigger {
	kinds := make([]Kind, 0, len(actions))
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	return &Trigger{
		Name:          name,
		Pattern:       pattern,
		ResponseTypes: kinds,
		AuthorID:      authorID,
		Multi:         actions,
		CreatedAt:     time.Now(),
	}
}

// IsMulti reports whether the trigger carries a multi-response list.
func (t *Trigger) IsMulti() bool {
	return len(t.Multi) > 0
}

// Actions returns the ordered steps to execute when t fires.
func (t *Trigger) Actions() []Action {
	if t.IsMulti() {
		return t.Multi
	}
	if len(t.ResponseTypes) == 0 {
		return nil
	}
	return []Action{{Kind: t.ResponseTypes[0], Text: t.Text, Payload: t.Payload}}
}

// Has reports whether any of t's actions is of kind k.
func (t *Trigger) Has(k Kind) bool {
	for _, rt := range t.ResponseTypes {
		if rt == k {
			return true
		}
	}
	return false
}

// Validate checks the record's shape. It does not compile the pattern.
func (t *Trigger) Validate() error {
	if strings.TrimSpace(t.Name) == "" || strings.ContainsAny(t.Name, " \t\n") {
		return fmt.Errorf("trigger name %q must be a single non-empty word", t.Name)
	}
	if t.Pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if len(t.ResponseTypes) == 0 {
		return fmt.Errorf("trigger %q has no response types", t.Name)
	}
	for _, a := range t.Actions() {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("trigger %q: %v", t.Name, err)
		}
	}
	return nil
}

// Validate checks that the action carries the payload its kind needs.
func (a Action) Validate() error {
	switch a.Kind {
	case KindText, KindDM:
		if a.Text == "" {
			return fmt.Errorf("%s needs a response text", a.Kind)
		}
	case KindRandText, KindImage, KindRandImage, KindResize, KindReact, KindAddRole, KindRemoveRole:
		if len(a.Payload) == 0 {
			return fmt.Errorf("%s needs at least one value", a.Kind)
		}
	case KindCommand, KindMock:
		if len(a.Payload) == 0 || strings.TrimSpace(a.Payload[0]) == "" {
			return fmt.Errorf("%s needs a command", a.Kind)
		}
	case KindBan, KindKick, KindDelete:
	case KindMulti:
		return fmt.Errorf("multi responses cannot be nested")
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// Clone returns a deep copy so snapshots can be read without holding the
// registry lock.
func (t *Trigger) Clone() *Trigger {
	if t == nil {
		return nil
	}
	c := *t
	c.ResponseTypes = append([]Kind(nil), t.ResponseTypes...)
	c.Payload = append([]string(nil), t.Payload...)
	c.Whitelist = append([]string(nil), t.Whitelist...)
	c.Blacklist = append([]string(nil), t.Blacklist...)
	if t.Multi != nil {
		c.Multi = make([]Action, len(t.Multi))
		for i, a := range t.Multi {
			a.Payload = append([]string(nil), a.Payload...)
			c.Multi[i] = a
		}
	}
	c.Cooldown = t.Cooldown.Clone()
	return &c
}

// ParseAction parses one multi-response entry such as "dm;You said a bad
// word!", "filter" or "add_role;123;456".
func ParseAction(s string) (Action, error) {
	parts := strings.Split(s, ";")
	kind, err := ParseKind(parts[0])
	if err != nil {
		return Action{}, err
	}
	a := Action{Kind: kind}
	rest := parts[1:]
	switch kind {
	case KindText, KindDM:
		a.Text = strings.Join(rest, ";")
	case KindCommand, KindMock:
		a.Payload = []string{strings.Join(rest, ";")}
	default:
		for _, p := range rest {
			if p = strings.TrimSpace(p); p != "" {
				a.Payload = append(a.Payload, p)
			}
		}
	}
	return a, a.Validate()
}
