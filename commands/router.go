package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/trigger"
)

// Permission is a guild capability a command may require.
type Permission string

// Permissions checked by commands.
const (
	PermManageMessages Permission = "manage_messages"
	PermManageRoles    Permission = "manage_roles"
	PermBanMembers     Permission = "ban_members"
	PermKickMembers    Permission = "kick_members"
	PermAdministrator  Permission = "administrator"
)

// Host is what the command surface needs from a chat platform.
type Host interface {
	dispatch.Messenger
	dispatch.Reactor
	// Post sends text to a channel and returns the new message's id.
	Post(ctx context.Context, channelID, text string) (string, error)
	HasPermission(ctx context.Context, guildID, channelID, userID string, p Permission) (bool, error)
}

// Responder replies to the message that issued a command.
type Responder interface {
	Respond(ctx context.Context, text string)
	RespondPrivate(ctx context.Context, text string)
	React(ctx context.Context, emoji string)
	// Ask posts text, adds choices as reactions and returns the id of the
	// posted message.
	Ask(ctx context.Context, text string, choices ...string) (string, error)
}

// Request is a parsed command invocation.
type Request struct {
	Message *trigger.Message
	// Name is the command name as typed.
	Name string
	// Args are the quote-aware arguments after the command name.
	Args []string
	// Rest is the unparsed text after the command name.
	Rest string
	// Elevated is set when a trigger runs the command on its author's
	// behalf.
	Elevated bool
}

// Handler handles a command.
type Handler interface {
	Handle(ctx context.Context, req *Request, r Responder)
}

// HandlerFunc is an adapter to allow use of ordinary functions as
// command handlers.
type HandlerFunc func(ctx context.Context, req *Request, r Responder)

// Handle calls f(ctx, req, r).
func (f HandlerFunc) Handle(ctx context.Context, req *Request, r Responder) {
	f(ctx, req, r)
}

// Command is a named entry of the Router.
type Command struct {
	Name    string
	Aliases []string
	Help    string
	// GuildOnly rejects the command in direct messages.
	GuildOnly bool
	Handler   Handler
}

// Router routes prefixed messages to commands. It implements
// dispatch.CommandInvoker so triggers can run commands.
type Router struct {
	prefix string
	host   Host
	log    logrus.FieldLogger

	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRouter constructs a *Router.
func NewRouter(prefix string, h Host, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{
		prefix:   prefix,
		host:     h,
		log:      log.WithField("component", "commands"),
		commands: make(map[string]*Command),
	}
}

var _ dispatch.CommandInvoker = (*Router)(nil)

// Register adds c under its name and aliases.
func (rt *Router) Register(c *Command) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.commands[strings.ToLower(c.Name)] = c
	for _, a := range c.Aliases {
		rt.commands[strings.ToLower(a)] = c
	}
}

// Unregister removes the command registered as name along with its
// aliases.
func (rt *Router) Unregister(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c, ok := rt.commands[strings.ToLower(name)]
	if !ok {
		return
	}
	for key, have := range rt.commands {
		if have == c {
			delete(rt.commands, key)
		}
	}
}

// Commands lists registered commands by name.
func (rt *Router) Commands() []*Command {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	seen := map[*Command]bool{}
	var out []*Command
	for _, c := range rt.commands {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (rt *Router) CommandPrefix() string { return rt.prefix }

func (rt *Router) CommandExists(name string) bool {
	return rt.lookup(name) != nil
}

func (rt *Router) lookup(name string) *Command {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.commands[strings.ToLower(name)]
}

// Handle runs the command m invokes, if any, and reports whether it did.
func (rt *Router) Handle(ctx context.Context, m *trigger.Message) bool {
	return rt.handle(ctx, m, false)
}

// Invoke runs a command issued by a trigger.
func (rt *Router) Invoke(ctx context.Context, inv dispatch.Invocation) error {
	m := &trigger.Message{
		ID:        inv.MessageID,
		GuildID:   inv.GuildID,
		ChannelID: inv.ChannelID,
		AuthorID:  inv.AuthorID,
		Content:   inv.Content,
		Nonce:     inv.Nonce,
	}
	if !rt.handle(ctx, m, inv.Elevated) {
		return fmt.Errorf("%w: %q is not a command", trigger.ErrMissingTarget, inv.Content)
	}
	return nil
}

func (rt *Router) handle(ctx context.Context, m *trigger.Message, elevated bool) bool {
	if rt.prefix == "" || !strings.HasPrefix(m.Content, rt.prefix) {
		return false
	}
	line := strings.TrimPrefix(m.Content, rt.prefix)
	name, rest := splitWord(line)
	if name == "" {
		return false
	}
	c := rt.lookup(name)
	if c == nil {
		return false
	}

	r := &channelResponder{host: rt.host, msg: m, log: rt.log}
	if c.GuildOnly && m.GuildID == "" {
		r.Respond(ctx, "That command only works in a server.")
		return true
	}

	args, err := SplitArgs(rest)
	if err != nil {
		r.Respond(ctx, err.Error())
		return true
	}

	rt.log.WithFields(logrus.Fields{
		"guild":    m.GuildID,
		"command":  c.Name,
		"author":   m.AuthorID,
		"elevated": elevated,
	}).Debug("running command")

	c.Handler.Handle(ctx, &Request{
		Message:  m,
		Name:     name,
		Args:     args,
		Rest:     strings.TrimSpace(rest),
		Elevated: elevated,
	}, r)
	return true
}

type channelResponder struct {
	host Host
	msg  *trigger.Message
	log  logrus.FieldLogger
}

func (r *channelResponder) Respond(ctx context.Context, text string) {
	if err := r.host.SendText(ctx, r.msg.ChannelID, text); err != nil {
		r.log.WithField("channel", r.msg.ChannelID).Warnf("responding: %v", err)
	}
}

func (r *channelResponder) RespondPrivate(ctx context.Context, text string) {
	if err := r.host.SendDM(ctx, r.msg.AuthorID, text); err != nil {
		r.log.WithField("user", r.msg.AuthorID).Warnf("responding privately: %v", err)
	}
}

func (r *channelResponder) React(ctx context.Context, emoji string) {
	if r.msg.ID == "" {
		return
	}
	if err := r.host.React(ctx, r.msg.ChannelID, r.msg.ID, emoji); err != nil {
		r.log.WithField("channel", r.msg.ChannelID).Warnf("reacting: %v", err)
	}
}

func (r *channelResponder) Ask(ctx context.Context, text string, choices ...string) (string, error) {
	id, err := r.host.Post(ctx, r.msg.ChannelID, text)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if err := r.host.React(ctx, r.msg.ChannelID, id, c); err != nil {
			r.log.WithField("channel", r.msg.ChannelID).Warnf("adding choice %s: %v", c, err)
		}
	}
	return id, nil
}

// Require wraps next so it only runs for authors holding p or
// administrators. Commands run by mock triggers are checked against the
// trigger's author.
func Require(h Host, p Permission, next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request, r Responder) {
		m := req.Message
		ok, err := h.HasPermission(ctx, m.GuildID, m.ChannelID, m.AuthorID, p)
		if err == nil && !ok && p != PermAdministrator {
			ok, err = h.HasPermission(ctx, m.GuildID, m.ChannelID, m.AuthorID, PermAdministrator)
		}
		if err != nil {
			r.Respond(ctx, "I couldn't check your permissions, try again later.")
			return
		}
		if !ok {
			r.Respond(ctx, fmt.Sprintf("You need the %s permission to do that.", strings.ReplaceAll(string(p), "_", " ")))
			return
		}
		next.Handle(ctx, req, r)
	})
}
