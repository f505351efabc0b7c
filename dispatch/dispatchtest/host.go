// Package dispatchtest provides an in-memory chat host for tests.
package dispatchtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gobridge/retrigger/dispatch"
)

// Call is one primitive invoked on the Host.
type Call struct {
	Method string
	Target string
	Arg    string
	Text   string
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%s, %s, %q)", c.Method, c.Target, c.Arg, c.Text)
}

// Host records every call. Set Fail to make a method return an error.
type Host struct {
	mu    sync.Mutex
	calls []Call

	Bot   string
	Owner string
	// TopRoles maps user ids to their top role position.
	TopRoles map[string]int
	// Roles maps role ids to their position.
	Roles map[string]int
	// Fail maps method names to the error they return.
	Fail map[string]error
}

// NewHost returns a Host with a bot at position 10 and an owner.
func NewHost() *Host {
	return &Host{
		Bot:      "bot",
		Owner:    "owner",
		TopRoles: map[string]int{"bot": 10, "owner": 20},
		Roles:    map[string]int{},
		Fail:     map[string]error{},
	}
}

var _ dispatch.Host = (*Host)(nil)

func (h *Host) record(c Call) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c)
	return h.Fail[c.Method]
}

// Calls returns a copy of the recorded calls.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// Methods returns the method names of the recorded calls.
func (h *Host) Methods() []string {
	var out []string
	for _, c := range h.Calls() {
		out = append(out, c.Method)
	}
	return out
}

// Reset forgets recorded calls.
func (h *Host) Reset() {
	h.mu.Lock()
	h.calls = nil
	h.mu.Unlock()
}

func (h *Host) SendText(_ context.Context, channelID, text string) error {
	return h.record(Call{Method: "SendText", Target: channelID, Text: text})
}

func (h *Host) SendFile(_ context.Context, channelID, name string, r io.Reader, text string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return h.record(Call{Method: "SendFile", Target: channelID, Arg: name + ":" + string(b), Text: text})
}

func (h *Host) SendDM(_ context.Context, userID, text string) error {
	return h.record(Call{Method: "SendDM", Target: userID, Text: text})
}

func (h *Host) React(_ context.Context, channelID, messageID, emoji string) error {
	return h.record(Call{Method: "React", Target: messageID, Arg: emoji})
}

func (h *Host) AddRole(_ context.Context, guildID, userID, roleID, reason string) error {
	return h.record(Call{Method: "AddRole", Target: userID, Arg: roleID, Text: reason})
}

func (h *Host) RemoveRole(_ context.Context, guildID, userID, roleID, reason string) error {
	return h.record(Call{Method: "RemoveRole", Target: userID, Arg: roleID, Text: reason})
}

func (h *Host) Ban(_ context.Context, guildID, userID, reason string) error {
	return h.record(Call{Method: "Ban", Target: userID, Text: reason})
}

func (h *Host) Kick(_ context.Context, guildID, userID, reason string) error {
	return h.record(Call{Method: "Kick", Target: userID, Text: reason})
}

func (h *Host) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return h.record(Call{Method: "DeleteMessage", Target: messageID})
}

func (h *Host) BotID() string { return h.Bot }

func (h *Host) GuildOwner(context.Context, string) (string, error) {
	return h.Owner, nil
}

func (h *Host) TopRolePosition(_ context.Context, _, userID string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.TopRoles[userID], nil
}

func (h *Host) RolePosition(_ context.Context, _, roleID string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pos, ok := h.Roles[roleID]
	if !ok {
		return 0, errors.New("unknown role")
	}
	return pos, nil
}

// Invoker is a CommandInvoker knowing a fixed set of commands.
type Invoker struct {
	mu       sync.Mutex
	Prefix   string
	Commands map[string]bool
	Invoked  []dispatch.Invocation
}

// NewInvoker returns an Invoker with prefix "!" and the given commands.
func NewInvoker(commands ...string) *Invoker {
	inv := &Invoker{Prefix: "!", Commands: map[string]bool{}}
	for _, c := range commands {
		inv.Commands[c] = true
	}
	return inv
}

func (i *Invoker) CommandPrefix() string { return i.Prefix }

func (i *Invoker) CommandExists(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Commands[strings.ToLower(name)]
}

func (i *Invoker) Invoke(_ context.Context, inv dispatch.Invocation) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Invoked = append(i.Invoked, inv)
	return nil
}

// Invocations returns a copy of the recorded invocations.
func (i *Invoker) Invocations() []dispatch.Invocation {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]dispatch.Invocation(nil), i.Invoked...)
}
