package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/matcher"
	"github.com/gobridge/retrigger/registry"
	"github.com/gobridge/retrigger/trigger"
)

const (
	emojiYes = "✅"
	emojiNo  = "❌"

	// messageLimit keeps replies under the hosts' message size limits.
	messageLimit = 1900
)

// Files stores images for image triggers.
type Files interface {
	Download(ctx context.Context, guildID, url string) (string, error)
}

// RoleChecker validates roles at creation time.
type RoleChecker interface {
	CheckAssignable(ctx context.Context, guildID, authorID string, roles []string) error
}

// Config holds the interactive wait windows.
type Config struct {
	ConfirmTimeout time.Duration
	UploadTimeout  time.Duration
	// ResizeEnabled exposes the resize subcommand.
	ResizeEnabled bool
}

// DefaultConfig is used for zero fields of Config.
var DefaultConfig = Config{
	ConfirmTimeout: 15 * time.Second,
	UploadTimeout:  60 * time.Second,
}

type subcommand struct {
	perm Permission
	// args is the minimum number of arguments after the subcommand name.
	args  int
	usage string
	run   func(ctx context.Context, req *Request, args []string, r Responder)
}

// ReTrigger is the "retrigger" command group used to manage triggers.
type ReTrigger struct {
	reg    *registry.Registry
	host   Host
	router *Router
	files  Files
	roles  RoleChecker
	waiter *Waiter
	cfg    Config
	log    logrus.FieldLogger

	subs map[string]*subcommand
}

// NewReTrigger constructs the command group and registers it on router.
func NewReTrigger(reg *registry.Registry, h Host, router *Router, files Files, roles RoleChecker, waiter *Waiter, cfg Config, log logrus.FieldLogger) *ReTrigger {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfig.ConfirmTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultConfig.UploadTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	rt := &ReTrigger{
		reg:    reg,
		host:   h,
		router: router,
		files:  files,
		roles:  roles,
		waiter: waiter,
		cfg:    cfg,
		log:    log.WithField("component", "retrigger"),
	}
	rt.subs = rt.subcommands()
	router.Register(&Command{
		Name:      "retrigger",
		Aliases:   []string{"rt"},
		Help:      "Setup automatic triggers based on regular expressions",
		GuildOnly: true,
		Handler:   HandlerFunc(rt.handle),
	})
	return rt
}

func (rt *ReTrigger) subcommands() map[string]*subcommand {
	subs := map[string]*subcommand{}
	add := func(s *subcommand, names ...string) {
		for _, n := range names {
			subs[n] = s
		}
	}

	add(&subcommand{args: 0, usage: "list [trigger]", run: rt.list}, "list")
	add(&subcommand{perm: PermManageMessages, args: 1, usage: "remove <trigger>", run: rt.remove}, "remove", "del", "rem", "delete")
	add(&subcommand{perm: PermManageMessages, args: 2, usage: "cooldown <trigger> <seconds> [guild|channel|user]", run: rt.cooldown}, "cooldown")
	add(&subcommand{perm: PermManageMessages, args: 1, usage: "ignoreedits <trigger>", run: rt.ignoreEdits}, "ignoreedits")
	add(&subcommand{perm: PermManageMessages, args: 0, usage: "allowmultiple", run: rt.allowMultiple}, "allowmultiple")
	add(&subcommand{perm: PermManageMessages, args: 1, usage: "whitelist add|remove <trigger> <channel|user|role...>", run: rt.list2(false)}, "whitelist")
	add(&subcommand{perm: PermManageMessages, args: 1, usage: "blacklist add|remove <trigger> <channel|user|role...>", run: rt.list2(true)}, "blacklist")
	add(&subcommand{perm: PermManageMessages, args: 1, usage: "modlog settings|bans|kicks|filter|addroles|removeroles|channel", run: rt.modlog}, "modlog")

	add(&subcommand{perm: PermManageMessages, args: 3, usage: "text <name> <regex> <text>", run: rt.text(trigger.KindText)}, "text")
	add(&subcommand{perm: PermManageMessages, args: 3, usage: "dm <name> <regex> <text>", run: rt.text(trigger.KindDM)}, "dm")
	add(&subcommand{perm: PermManageMessages, args: 2, usage: "random <name> <regex>", run: rt.random}, "random", "randomtext", "rtext")
	add(&subcommand{perm: PermManageMessages, args: 2, usage: "image <name> <regex> [image_url]", run: rt.image(trigger.KindImage, false)}, "image")
	add(&subcommand{perm: PermManageMessages, args: 3, usage: "imagetext <name> <regex> <text> [image_url]", run: rt.image(trigger.KindImage, true)}, "imagetext")
	add(&subcommand{perm: PermManageMessages, args: 2, usage: "randomimage <name> <regex>", run: rt.randomImage}, "randomimage", "randimage", "randimg", "rimage", "rimg")
	if rt.cfg.ResizeEnabled {
		add(&subcommand{perm: PermManageMessages, args: 2, usage: "resize <name> <regex> [image_url]", run: rt.image(trigger.KindResize, false)}, "resize")
	}
	add(&subcommand{perm: PermBanMembers, args: 2, usage: "ban <name> <regex>", run: rt.moderation(trigger.KindBan)}, "ban")
	add(&subcommand{perm: PermKickMembers, args: 2, usage: "kick <name> <regex>", run: rt.moderation(trigger.KindKick)}, "kick")
	add(&subcommand{perm: PermManageMessages, args: 3, usage: "react <name> <regex> <emoji...>", run: rt.react}, "react")
	add(&subcommand{perm: PermManageMessages, args: 3, usage: "command <name> <regex> <command>", run: rt.command(trigger.KindCommand)}, "command", "cmd")
	add(&subcommand{perm: PermAdministrator, args: 3, usage: "mock <name> <regex> <command>", run: rt.command(trigger.KindMock)}, "mock", "cmdmock")
	add(&subcommand{perm: PermManageMessages, args: 2, usage: "filter <name> [check_filenames] <regex>", run: rt.filter}, "filter", "deletemsg")
	add(&subcommand{perm: PermManageRoles, args: 3, usage: "addrole <name> <regex> <role...>", run: rt.roleTrigger(trigger.KindAddRole)}, "addrole")
	add(&subcommand{perm: PermManageRoles, args: 3, usage: "removerole <name> <regex> <role...>", run: rt.roleTrigger(trigger.KindRemoveRole)}, "removerole")
	add(&subcommand{perm: PermAdministrator, args: 3, usage: "multi <name> <regex> <response...>", run: rt.multi}, "multi")
	return subs
}

func (rt *ReTrigger) handle(ctx context.Context, req *Request, r Responder) {
	if len(req.Args) == 0 {
		r.Respond(ctx, rt.help())
		return
	}
	sub, ok := rt.subs[strings.ToLower(req.Args[0])]
	if !ok {
		r.Respond(ctx, rt.help())
		return
	}
	args := req.Args[1:]
	if len(args) < sub.args {
		r.Respond(ctx, fmt.Sprintf("Usage: `%sretrigger %s`", rt.router.CommandPrefix(), sub.usage))
		return
	}
	if sub.perm != "" {
		Require(rt.host, sub.perm, HandlerFunc(func(ctx context.Context, req *Request, r Responder) {
			sub.run(ctx, req, args, r)
		})).Handle(ctx, req, r)
		return
	}
	sub.run(ctx, req, args, r)
}

func (rt *ReTrigger) help() string {
	seen := map[*subcommand]bool{}
	var lines []string
	for _, s := range rt.subs {
		if seen[s] {
			continue
		}
		seen[s] = true
		lines = append(lines, fmt.Sprintf("`%sretrigger %s`", rt.router.CommandPrefix(), s.usage))
	}
	sort.Strings(lines)
	return "Setup automatic triggers based on regular expressions\n" + strings.Join(lines, "\n")
}

// create stores t and reports the outcome to the invoker.
func (rt *ReTrigger) create(ctx context.Context, req *Request, t *trigger.Trigger, r Responder) bool {
	err := rt.reg.Add(ctx, req.Message.GuildID, t)
	switch {
	case err == nil:
		r.Respond(ctx, fmt.Sprintf("Trigger `%s` set.", t.Name))
		return true
	case errors.Is(err, trigger.ErrDuplicateName):
		r.Respond(ctx, fmt.Sprintf("%s is already a trigger name", t.Name))
	case errors.Is(err, trigger.ErrInvalidPattern):
		r.Respond(ctx, fmt.Sprintf("`%s` is not a valid regex pattern: %v", t.Pattern, err))
	case errors.Is(err, trigger.ErrStorageUnavailable):
		rt.log.WithField("guild", req.Message.GuildID).Errorf("creating trigger %s: %v", t.Name, err)
		r.Respond(ctx, "I couldn't save that trigger right now, try again later.")
	default:
		r.Respond(ctx, fmt.Sprintf("Trigger `%s` was not created: %v", t.Name, err))
	}
	return false
}

// precheck rejects taken names and invalid patterns before any
// interactive step.
func (rt *ReTrigger) precheck(ctx context.Context, req *Request, name, pattern string, r Responder) bool {
	if _, err := rt.reg.Get(ctx, req.Message.GuildID, name); err == nil {
		r.Respond(ctx, fmt.Sprintf("%s is already a trigger name", name))
		return false
	} else if !errors.Is(err, trigger.ErrNotFound) {
		r.Respond(ctx, "I couldn't load this server's triggers, try again later.")
		return false
	}
	if err := matcher.Validate(pattern); err != nil {
		r.Respond(ctx, fmt.Sprintf("`%s` is not a valid regex pattern: %v", pattern, err))
		return false
	}
	return true
}

func (rt *ReTrigger) text(kind trigger.Kind) func(context.Context, *Request, []string, Responder) {
	return func(ctx context.Context, req *Request, args []string, r Responder) {
		name, pattern := args[0], args[1]
		// Skip the subcommand, name and pattern.
		text, err := restAfter(req.Rest, 3)
		if err != nil || text == "" {
			r.Respond(ctx, "Please provide the response text.")
			return
		}
		if !rt.precheck(ctx, req, name, pattern, r) {
			return
		}
		rt.create(ctx, req, trigger.New(name, pattern, kind, req.Message.AuthorID, text), r)
	}
}

func (rt *ReTrigger) random(ctx context.Context, req *Request, args []string, r Responder) {
	name, pattern := args[0], args[1]
	if !rt.precheck(ctx, req, name, pattern, r) {
		return
	}
	responses := rt.collect(ctx, req, r, "Please enter your response(s), type `exit` to finish.", func(m *trigger.Message) []string {
		return []string{m.Content}
	})
	if len(responses) == 0 {
		r.Respond(ctx, "No responses supplied")
		return
	}
	rt.create(ctx, req, trigger.New(name, pattern, trigger.KindRandText, req.Message.AuthorID, "", responses...), r)
}

func (rt *ReTrigger) image(kind trigger.Kind, withText bool) func(context.Context, *Request, []string, Responder) {
	return func(ctx context.Context, req *Request, args []string, r Responder) {
		name, pattern := args[0], args[1]
		rest := args[2:]
		var text string
		if withText {
			text, rest = rest[0], rest[1:]
		}
		if !rt.precheck(ctx, req, name, pattern, r) {
			return
		}

		var url string
		switch {
		case len(req.Message.Attachments) > 0:
			url = req.Message.Attachments[0].URL
		case len(rest) > 0:
			url = rest[0]
		default:
			r.Respond(ctx, "Upload an image for me to use! Type `exit` to cancel.")
			m, err := rt.waiter.WaitMessage(ctx, rt.cfg.UploadTimeout, func(m *trigger.Message) bool {
				return FromAuthor(req.Message)(m) && (len(m.Attachments) > 0 || isExit(m.Content))
			})
			if err != nil || len(m.Attachments) == 0 {
				r.Respond(ctx, "Image trigger creation cancelled.")
				return
			}
			url = m.Attachments[0].URL
		}

		file, err := rt.files.Download(ctx, req.Message.GuildID, url)
		if err != nil {
			rt.log.WithField("guild", req.Message.GuildID).Warnf("downloading %s: %v", url, err)
			r.Respond(ctx, "I couldn't download that image.")
			return
		}
		rt.create(ctx, req, trigger.New(name, pattern, kind, req.Message.AuthorID, text, file), r)
	}
}

func (rt *ReTrigger) randomImage(ctx context.Context, req *Request, args []string, r Responder) {
	name, pattern := args[0], args[1]
	if !rt.precheck(ctx, req, name, pattern, r) {
		return
	}
	files := rt.collect(ctx, req, r, "Upload an image for me to use! Type `exit` to finish uploading.", func(m *trigger.Message) []string {
		var saved []string
		for _, a := range m.Attachments {
			file, err := rt.files.Download(ctx, req.Message.GuildID, a.URL)
			if err != nil {
				rt.log.WithField("guild", req.Message.GuildID).Warnf("downloading %s: %v", a.URL, err)
				continue
			}
			saved = append(saved, file)
		}
		return saved
	})
	if len(files) == 0 {
		r.Respond(ctx, "No images supplied")
		return
	}
	rt.create(ctx, req, trigger.New(name, pattern, trigger.KindRandImage, req.Message.AuthorID, "", files...), r)
}

// collect gathers follow-up messages from the invoker until they type
// exit or stop answering.
func (rt *ReTrigger) collect(ctx context.Context, req *Request, r Responder, prompt string, take func(*trigger.Message) []string) []string {
	r.Respond(ctx, prompt)
	var out []string
	for {
		m, err := rt.waiter.WaitMessage(ctx, rt.cfg.UploadTimeout, FromAuthor(req.Message))
		if err != nil || isExit(m.Content) {
			return out
		}
		got := take(m)
		out = append(out, got...)
		if len(got) > 0 {
			r.React(ctx, emojiYes)
		}
	}
}

func isExit(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "exit")
}

func (rt *ReTrigger) moderation(kind trigger.Kind) func(context.Context, *Request, []string, Responder) {
	return func(ctx context.Context, req *Request, args []string, r Responder) {
		name, pattern := args[0], args[1]
		if !rt.precheck(ctx, req, name, pattern, r) {
			return
		}
		rt.create(ctx, req, trigger.New(name, pattern, kind, req.Message.AuthorID, ""), r)
	}
}

func (rt *ReTrigger) react(ctx context.Context, req *Request, args []string, r Responder) {
	name, pattern := args[0], args[1]
	if !rt.precheck(ctx, req, name, pattern, r) {
		return
	}
	rt.create(ctx, req, trigger.New(name, pattern, trigger.KindReact, req.Message.AuthorID, "", args[2:]...), r)
}

func (rt *ReTrigger) command(kind trigger.Kind) func(context.Context, *Request, []string, Responder) {
	return func(ctx context.Context, req *Request, args []string, r Responder) {
		name, pattern := args[0], args[1]
		line, err := restAfter(req.Rest, 3)
		if err != nil || line == "" {
			r.Respond(ctx, "Please provide the command to run.")
			return
		}
		line, ok := rt.commandLine(ctx, line, r)
		if !ok {
			return
		}
		if !rt.precheck(ctx, req, name, pattern, r) {
			return
		}
		if kind == trigger.KindMock && !rt.confirmMock(ctx, req, r) {
			return
		}
		rt.create(ctx, req, trigger.New(name, pattern, kind, req.Message.AuthorID, "", line), r)
	}
}

// commandLine strips the prefix from line and checks that the command it
// names is registered.
func (rt *ReTrigger) commandLine(ctx context.Context, line string, r Responder) (string, bool) {
	line = strings.TrimPrefix(strings.TrimSpace(line), rt.router.CommandPrefix())
	cmd, _ := splitWord(line)
	if !rt.router.CommandExists(cmd) {
		r.Respond(ctx, line+" doesn't seem to be an available command.")
		return "", false
	}
	return line, true
}

// confirmMock asks the author to confirm a mock trigger and waits for the
// answer. Anything but a yes within the confirm timeout is a no.
func (rt *ReTrigger) confirmMock(ctx context.Context, req *Request, r Responder) bool {
	id, err := r.Ask(ctx, "Mock commands can allow any user to run a command as if you did, are you sure you want to add this?", emojiYes, emojiNo)
	if err != nil {
		r.Respond(ctx, "Not creating trigger.")
		return false
	}
	reaction, err := rt.waiter.WaitReaction(ctx, rt.cfg.ConfirmTimeout, func(re Reaction) bool {
		return re.MessageID == id && re.UserID == req.Message.AuthorID && (re.Emoji == emojiYes || re.Emoji == emojiNo)
	})
	if err != nil || reaction.Emoji != emojiYes {
		r.Respond(ctx, "Not creating trigger.")
		return false
	}
	return true
}

func (rt *ReTrigger) filter(ctx context.Context, req *Request, args []string, r Responder) {
	name := args[0]
	skip := 2
	checkFilenames := false
	if b, ok := parseBool(args[1]); ok && len(args) > 2 {
		checkFilenames = b
		skip = 3
	}
	pattern, err := restAfter(req.Rest, skip)
	if err != nil || pattern == "" {
		r.Respond(ctx, "Please provide the regex to filter.")
		return
	}
	if len(args) == skip {
		// A single quoted pattern argument.
		pattern = args[skip-1]
	}
	if !rt.precheck(ctx, req, name, pattern, r) {
		return
	}
	t := trigger.New(name, pattern, trigger.KindDelete, req.Message.AuthorID, "")
	t.CheckFilenames = checkFilenames
	rt.create(ctx, req, t, r)
}

func (rt *ReTrigger) roleTrigger(kind trigger.Kind) func(context.Context, *Request, []string, Responder) {
	return func(ctx context.Context, req *Request, args []string, r Responder) {
		name, pattern := args[0], args[1]
		var roles []string
		for _, a := range args[2:] {
			roles = append(roles, ParseID(a))
		}
		if !rt.precheck(ctx, req, name, pattern, r) {
			return
		}
		if rt.roles != nil {
			if err := rt.roles.CheckAssignable(ctx, req.Message.GuildID, req.Message.AuthorID, roles); err != nil {
				r.Respond(ctx, denied(err))
				return
			}
		}
		rt.create(ctx, req, trigger.New(name, pattern, kind, req.Message.AuthorID, "", roles...), r)
	}
}

func (rt *ReTrigger) multi(ctx context.Context, req *Request, args []string, r Responder) {
	name, pattern := args[0], args[1]
	actions := make([]trigger.Action, 0, len(args)-2)
	mock := false
	for _, raw := range args[2:] {
		a, err := trigger.ParseAction(raw)
		if err != nil {
			r.Respond(ctx, fmt.Sprintf("`%s` is not a valid response: %v", raw, err))
			return
		}
		switch a.Kind {
		case trigger.KindImage, trigger.KindRandImage, trigger.KindResize:
			// Images need an upload and only the image subcommands collect one.
			r.Respond(ctx, fmt.Sprintf("`%s` can't be part of a multi trigger, use the %s subcommand instead.", raw, a.Kind))
			return
		case trigger.KindAddRole, trigger.KindRemoveRole:
			for i, p := range a.Payload {
				a.Payload[i] = ParseID(p)
			}
		case trigger.KindCommand, trigger.KindMock:
			line, ok := rt.commandLine(ctx, a.Payload[0], r)
			if !ok {
				return
			}
			a.Payload[0] = line
			mock = mock || a.Kind == trigger.KindMock
		}
		actions = append(actions, a)
	}
	if !rt.precheck(ctx, req, name, pattern, r) {
		return
	}
	for _, a := range actions {
		if (a.Kind == trigger.KindAddRole || a.Kind == trigger.KindRemoveRole) && rt.roles != nil {
			if err := rt.roles.CheckAssignable(ctx, req.Message.GuildID, req.Message.AuthorID, a.Payload); err != nil {
				r.Respond(ctx, denied(err))
				return
			}
		}
	}
	if mock && !rt.confirmMock(ctx, req, r) {
		return
	}
	rt.create(ctx, req, trigger.NewMulti(name, pattern, req.Message.AuthorID, actions), r)
}

func (rt *ReTrigger) list(ctx context.Context, req *Request, args []string, r Responder) {
	guild := req.Message.GuildID
	if len(args) > 0 {
		t, err := rt.reg.Get(ctx, guild, args[0])
		if err != nil {
			r.Respond(ctx, fmt.Sprintf("Trigger `%s` doesn't exist.", args[0]))
			return
		}
		r.Respond(ctx, Describe(t))
		return
	}

	triggers, err := rt.reg.List(ctx, guild)
	if err != nil {
		r.Respond(ctx, "I couldn't load this server's triggers, try again later.")
		return
	}
	if len(triggers) == 0 {
		r.Respond(ctx, "There are no triggers setup on this server.")
		return
	}
	var lines []string
	for _, t := range triggers {
		lines = append(lines, Summary(t))
	}
	for _, page := range paginate(lines, messageLimit) {
		r.Respond(ctx, page)
	}
}

func (rt *ReTrigger) remove(ctx context.Context, req *Request, args []string, r Responder) {
	err := rt.reg.Remove(ctx, req.Message.GuildID, args[0])
	switch {
	case err == nil:
		r.Respond(ctx, fmt.Sprintf("Trigger `%s` removed.", args[0]))
	case errors.Is(err, trigger.ErrNotFound):
		r.Respond(ctx, fmt.Sprintf("Trigger `%s` doesn't exist.", args[0]))
	default:
		r.Respond(ctx, "I couldn't remove that trigger right now, try again later.")
	}
}

func (rt *ReTrigger) update(ctx context.Context, req *Request, name string, r Responder, fn func(*trigger.Trigger) error) bool {
	_, err := rt.reg.Update(ctx, req.Message.GuildID, name, fn)
	switch {
	case err == nil:
		return true
	case errors.Is(err, trigger.ErrNotFound):
		r.Respond(ctx, fmt.Sprintf("Trigger `%s` doesn't exist.", name))
	case errors.Is(err, trigger.ErrStorageUnavailable):
		r.Respond(ctx, "I couldn't save that change right now, try again later.")
	default:
		r.Respond(ctx, err.Error())
	}
	return false
}

func (rt *ReTrigger) cooldown(ctx context.Context, req *Request, args []string, r Responder) {
	name := args[0]
	secs, err := strconv.Atoi(args[1])
	if err != nil {
		r.Respond(ctx, fmt.Sprintf("`%s` is not a number of seconds.", args[1]))
		return
	}
	style := "guild"
	if len(args) > 2 {
		style = args[2]
	}
	scope, err := trigger.ParseScope(style)
	if err != nil {
		r.Respond(ctx, "Style must be either `guild`, `server`, `channel`, `user`, or `member`.")
		return
	}

	cd := trigger.NewCooldown(time.Duration(secs)*time.Second, scope)
	if !rt.update(ctx, req, name, r, func(t *trigger.Trigger) error {
		t.Cooldown = cd
		return nil
	}) {
		return
	}
	if cd == nil {
		r.Respond(ctx, fmt.Sprintf("Cooldown for Trigger `%s` reset.", name))
		return
	}
	r.Respond(ctx, fmt.Sprintf("Cooldown of %ds per %s set for Trigger `%s`.", secs, scope, name))
}

func (rt *ReTrigger) ignoreEdits(ctx context.Context, req *Request, args []string, r Responder) {
	var now bool
	if !rt.update(ctx, req, args[0], r, func(t *trigger.Trigger) error {
		t.IgnoreEdits = !t.IgnoreEdits
		now = t.IgnoreEdits
		return nil
	}) {
		return
	}
	if now {
		r.Respond(ctx, fmt.Sprintf("Trigger `%s` will ignore edited messages.", args[0]))
		return
	}
	r.Respond(ctx, fmt.Sprintf("Trigger `%s` will check edited messages.", args[0]))
}

// list2 handles the whitelist and blacklist groups.
func (rt *ReTrigger) list2(blacklist bool) func(context.Context, *Request, []string, Responder) {
	listName := "whitelist"
	if blacklist {
		listName = "blacklist"
	}
	return func(ctx context.Context, req *Request, args []string, r Responder) {
		if len(args) < 3 {
			r.Respond(ctx, fmt.Sprintf("Usage: `%sretrigger %s add|remove <trigger> <channel|user|role...>`", rt.router.CommandPrefix(), listName))
			return
		}
		action, name := strings.ToLower(args[0]), args[1]
		ids := make([]string, 0, len(args)-2)
		for _, a := range args[2:] {
			ids = append(ids, ParseID(a))
		}

		var n int
		switch action {
		case "add":
			if !rt.update(ctx, req, name, r, func(t *trigger.Trigger) error {
				n = t.AddToList(blacklist, ids...)
				return nil
			}) {
				return
			}
			r.Respond(ctx, fmt.Sprintf("%d added to the %s of Trigger `%s`.", n, listName, name))
		case "remove", "rem", "del":
			if !rt.update(ctx, req, name, r, func(t *trigger.Trigger) error {
				n = t.RemoveFromList(blacklist, ids...)
				return nil
			}) {
				return
			}
			r.Respond(ctx, fmt.Sprintf("%d removed from the %s of Trigger `%s`.", n, listName, name))
		default:
			r.Respond(ctx, fmt.Sprintf("Usage: `%sretrigger %s add|remove <trigger> <channel|user|role...>`", rt.router.CommandPrefix(), listName))
		}
	}
}

func (rt *ReTrigger) allowMultiple(ctx context.Context, req *Request, args []string, r Responder) {
	st, err := rt.reg.UpdateSettings(ctx, req.Message.GuildID, func(s *trigger.Settings) {
		s.AllowMultiple = !s.AllowMultiple
	})
	if err != nil {
		r.Respond(ctx, "I couldn't save that change right now, try again later.")
		return
	}
	if st.AllowMultiple {
		r.Respond(ctx, "Multiple triggers may respond to the same message.")
		return
	}
	r.Respond(ctx, "Only the first matching trigger will respond to a message.")
}

var modlogToggles = map[string]struct {
	label  string
	toggle func(*trigger.ModlogToggles) *bool
}{
	"bans":        {"ban", func(m *trigger.ModlogToggles) *bool { return &m.Ban }},
	"ban":         {"ban", func(m *trigger.ModlogToggles) *bool { return &m.Ban }},
	"kicks":       {"kick", func(m *trigger.ModlogToggles) *bool { return &m.Kick }},
	"kick":        {"kick", func(m *trigger.ModlogToggles) *bool { return &m.Kick }},
	"filter":      {"filter", func(m *trigger.ModlogToggles) *bool { return &m.Filter }},
	"filters":     {"filter", func(m *trigger.ModlogToggles) *bool { return &m.Filter }},
	"delete":      {"filter", func(m *trigger.ModlogToggles) *bool { return &m.Filter }},
	"deletes":     {"filter", func(m *trigger.ModlogToggles) *bool { return &m.Filter }},
	"addroles":    {"add role", func(m *trigger.ModlogToggles) *bool { return &m.AddRole }},
	"addrole":     {"add role", func(m *trigger.ModlogToggles) *bool { return &m.AddRole }},
	"removeroles": {"remove role", func(m *trigger.ModlogToggles) *bool { return &m.RemoveRole }},
	"removerole":  {"remove role", func(m *trigger.ModlogToggles) *bool { return &m.RemoveRole }},
	"remrole":     {"remove role", func(m *trigger.ModlogToggles) *bool { return &m.RemoveRole }},
	"rolerem":     {"remove role", func(m *trigger.ModlogToggles) *bool { return &m.RemoveRole }},
}

func (rt *ReTrigger) modlog(ctx context.Context, req *Request, args []string, r Responder) {
	guild := req.Message.GuildID
	sub := strings.ToLower(args[0])

	switch sub {
	case "settings", "list":
		st, err := rt.reg.Settings(ctx, guild)
		if err != nil {
			r.Respond(ctx, "I couldn't load this server's settings, try again later.")
			return
		}
		channel := st.ModlogChannel
		switch channel {
		case "":
			channel = "None"
		case trigger.ModlogDefault:
			channel = "Default"
		default:
			channel = "<#" + channel + ">"
		}
		r.Respond(ctx, fmt.Sprintf("ReTrigger Settings\n**Allow multiple:** %v\n**Bans:** %v\n**Kicks:** %v\n**Filter:** %v\n**Add roles:** %v\n**Remove roles:** %v\n**Channel:** %s",
			st.AllowMultiple, st.Modlog.Ban, st.Modlog.Kick, st.Modlog.Filter, st.Modlog.AddRole, st.Modlog.RemoveRole, channel))
		return

	case "channel":
		if len(args) < 2 {
			r.Respond(ctx, "Provide a channel, `none` or `default`.")
			return
		}
		channel := ParseID(args[1])
		switch strings.ToLower(channel) {
		case "none", "clear":
			channel = ""
		case trigger.ModlogDefault:
			channel = trigger.ModlogDefault
		}
		if _, err := rt.reg.UpdateSettings(ctx, guild, func(s *trigger.Settings) { s.ModlogChannel = channel }); err != nil {
			r.Respond(ctx, "I couldn't save that change right now, try again later.")
			return
		}
		switch channel {
		case "":
			r.Respond(ctx, "ReTrigger's modlog channel has been cleared.")
		case trigger.ModlogDefault:
			r.Respond(ctx, "ReTrigger's modlog channel set to the default modlog channel.")
		default:
			r.Respond(ctx, fmt.Sprintf("ReTrigger's modlog channel set to <#%s>.", channel))
		}
		return
	}

	t, ok := modlogToggles[sub]
	if !ok {
		r.Respond(ctx, "Usage: `retrigger modlog settings|bans|kicks|filter|addroles|removeroles|channel`")
		return
	}
	var enabled bool
	if _, err := rt.reg.UpdateSettings(ctx, guild, func(s *trigger.Settings) {
		p := t.toggle(&s.Modlog)
		*p = !*p
		enabled = *p
	}); err != nil {
		r.Respond(ctx, "I couldn't save that change right now, try again later.")
		return
	}
	if enabled {
		r.Respond(ctx, fmt.Sprintf("Custom %s events will now appear in the modlog if it's setup.", t.label))
		return
	}
	r.Respond(ctx, fmt.Sprintf("Custom %s events disabled.", t.label))
}
