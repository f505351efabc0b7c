// Package dispatch executes the actions of a fired trigger through the
// host's messaging and moderation primitives.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/matcher"
	"github.com/gobridge/retrigger/trigger"
)

// Result is the outcome of one action.
type Result struct {
	Kind trigger.Kind
	Err  error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRand sets the source used by randtext and randimage.
func WithRand(r *rand.Rand) Option {
	return func(d *Dispatcher) { d.rand = r }
}

// WithResizer enables resize actions. Without one they post the image
// unchanged.
func WithResizer(r Resizer) Option {
	return func(d *Dispatcher) { d.resizer = r }
}

// WithMaxDimensions bounds resized images.
func WithMaxDimensions(width, height int) Option {
	return func(d *Dispatcher) {
		if width > 0 {
			d.maxWidth = width
		}
		if height > 0 {
			d.maxHeight = height
		}
	}
}

// WithModlog records moderation actions.
func WithModlog(m Modlog) Option {
	return func(d *Dispatcher) { d.modlog = m }
}

// WithInvoker enables command and mock actions.
func WithInvoker(ci CommandInvoker) Option {
	return func(d *Dispatcher) { d.invoker = ci }
}

// WithInvokeHook is called with every invocation before it runs.
func WithInvokeHook(fn func(Invocation)) Option {
	return func(d *Dispatcher) { d.onInvoke = fn }
}

// WithClock overrides time.Now for modlog timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher runs actions. It keeps no per-trigger state.
type Dispatcher struct {
	host    Host
	files   FileStore
	resizer Resizer
	modlog  Modlog
	invoker CommandInvoker
	log     logrus.FieldLogger
	now     func() time.Time

	onInvoke func(Invocation)

	randMu sync.Mutex
	rand   *rand.Rand

	maxWidth  int
	maxHeight int
}

// New constructs a *Dispatcher.
func New(h Host, files FileStore, log logrus.FieldLogger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{
		host:      h,
		files:     files,
		log:       log.WithField("component", "dispatch"),
		now:       time.Now,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		maxWidth:  1024,
		maxHeight: 1024,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs every action of t for msg. Actions run in order and a
// failing action never stops the ones after it.
func (d *Dispatcher) Dispatch(ctx context.Context, t *trigger.Trigger, m *matcher.Match, msg *trigger.Message, settings trigger.Settings) []Result {
	var groups []string
	if m != nil {
		groups = m.Groups
	}

	actions := t.Actions()
	results := make([]Result, 0, len(actions))
	for _, a := range actions {
		err := d.run(ctx, t, a, groups, msg, settings)
		if err != nil {
			d.log.WithFields(logrus.Fields{
				"guild":   msg.GuildID,
				"trigger": t.Name,
				"kind":    a.Kind,
			}).Warnf("action failed: %v", err)
		}
		results = append(results, Result{Kind: a.Kind, Err: err})
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, t *trigger.Trigger, a trigger.Action, groups []string, msg *trigger.Message, settings trigger.Settings) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%s action panicked: %v", a.Kind, v)
		}
	}()

	switch a.Kind {
	case trigger.KindText:
		return d.host.SendText(ctx, msg.ChannelID, trigger.Format(a.Text, groups))

	case trigger.KindRandText:
		choice := d.choose(a.Payload)
		return d.host.SendText(ctx, msg.ChannelID, trigger.Format(choice, groups))

	case trigger.KindDM:
		if err := d.host.SendDM(ctx, msg.AuthorID, trigger.Format(a.Text, groups)); err != nil {
			return fmt.Errorf("sending dm to %s: %w", msg.AuthorID, err)
		}
		return nil

	case trigger.KindImage:
		return d.sendImage(ctx, msg, a.Payload[0], trigger.Format(a.Text, groups), 0)

	case trigger.KindRandImage:
		return d.sendImage(ctx, msg, d.choose(a.Payload), trigger.Format(a.Text, groups), 0)

	case trigger.KindResize:
		n := 0
		if len(groups) > 0 {
			n = len([]rune(groups[0]))
		}
		return d.sendImage(ctx, msg, a.Payload[0], trigger.Format(a.Text, groups), n)

	case trigger.KindBan, trigger.KindKick:
		return d.moderate(ctx, t, a.Kind, msg, settings)

	case trigger.KindAddRole, trigger.KindRemoveRole:
		return d.roles(ctx, t, a, msg, settings)

	case trigger.KindReact:
		var errs []error
		for _, emoji := range a.Payload {
			if err := d.host.React(ctx, msg.ChannelID, msg.ID, emoji); err != nil {
				errs = append(errs, fmt.Errorf("reacting with %s: %w", emoji, err))
			}
		}
		return errors.Join(errs...)

	case trigger.KindCommand, trigger.KindMock:
		return d.invoke(ctx, t, a, msg)

	case trigger.KindDelete:
		if err := d.host.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
			return fmt.Errorf("deleting message %s: %w", msg.ID, err)
		}
		d.record(ctx, settings, trigger.KindDelete, t, msg, truncate(msg.Content, 1000))
		return nil
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}

func (d *Dispatcher) choose(options []string) string {
	d.randMu.Lock()
	defer d.randMu.Unlock()
	return options[d.rand.Intn(len(options))]
}

// resizeStep is the edge length in pixels added per matched character.
const resizeStep = 16

func (d *Dispatcher) sendImage(ctx context.Context, msg *trigger.Message, name, text string, matchLen int) error {
	if d.files == nil {
		return fmt.Errorf("%w: no file store configured", trigger.ErrMissingTarget)
	}
	f, err := d.files.Open(msg.GuildID, name)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", trigger.ErrMissingTarget, name, err)
	}
	defer f.Close()

	var body io.Reader = f
	if matchLen > 0 && d.resizer != nil {
		side := resizeStep * matchLen
		w, h := side, side
		if w > d.maxWidth {
			w = d.maxWidth
		}
		if h > d.maxHeight {
			h = d.maxHeight
		}
		resized, err := d.resizer.Resize(f, name, w, h)
		if err != nil {
			return fmt.Errorf("resizing %s: %w", name, err)
		}
		body = resized
	}

	return d.host.SendFile(ctx, msg.ChannelID, path.Base(name), body, text)
}

// moderate bans or kicks the message author after re-checking that both
// the bot and the trigger's author outrank them.
func (d *Dispatcher) moderate(ctx context.Context, t *trigger.Trigger, kind trigger.Kind, msg *trigger.Message, settings trigger.Settings) error {
	if err := d.outranks(ctx, msg.GuildID, t.AuthorID, msg.AuthorID); err != nil {
		return err
	}

	reason := "Trigger response: " + t.Name
	var err error
	if kind == trigger.KindBan {
		err = d.host.Ban(ctx, msg.GuildID, msg.AuthorID, reason)
	} else {
		err = d.host.Kick(ctx, msg.GuildID, msg.AuthorID, reason)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, msg.AuthorID, err)
	}
	d.record(ctx, settings, kind, t, msg, truncate(msg.Content, 1000))
	return nil
}

func (d *Dispatcher) outranks(ctx context.Context, guildID, authorID, targetID string) error {
	owner, err := d.host.GuildOwner(ctx, guildID)
	if err != nil {
		return fmt.Errorf("looking up guild owner: %w", err)
	}
	if targetID == owner || targetID == d.host.BotID() {
		return fmt.Errorf("%w: cannot act on %s", trigger.ErrPermissionDenied, targetID)
	}

	target, err := d.host.TopRolePosition(ctx, guildID, targetID)
	if err != nil {
		return fmt.Errorf("looking up role of %s: %w", targetID, err)
	}
	bot, err := d.host.TopRolePosition(ctx, guildID, d.host.BotID())
	if err != nil {
		return fmt.Errorf("looking up bot role: %w", err)
	}
	if target >= bot {
		return fmt.Errorf("%w: %s is not below the bot's top role", trigger.ErrPermissionDenied, targetID)
	}

	if authorID == owner {
		return nil
	}
	author, err := d.host.TopRolePosition(ctx, guildID, authorID)
	if err != nil {
		return fmt.Errorf("looking up role of trigger author %s: %w", authorID, err)
	}
	if target >= author {
		return fmt.Errorf("%w: %s is not below the trigger author's top role", trigger.ErrPermissionDenied, targetID)
	}
	return nil
}

// roles adds or removes each role, skipping roles the bot cannot manage.
func (d *Dispatcher) roles(ctx context.Context, t *trigger.Trigger, a trigger.Action, msg *trigger.Message, settings trigger.Settings) error {
	bot, err := d.host.TopRolePosition(ctx, msg.GuildID, d.host.BotID())
	if err != nil {
		return fmt.Errorf("looking up bot role: %w", err)
	}

	reason := "Trigger response: " + t.Name
	var (
		errs []error
		done []string
	)
	for _, role := range a.Payload {
		pos, err := d.host.RolePosition(ctx, msg.GuildID, role)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: role %s: %v", trigger.ErrMissingTarget, role, err))
			continue
		}
		if pos >= bot {
			d.log.WithFields(logrus.Fields{
				"guild":   msg.GuildID,
				"trigger": t.Name,
				"role":    role,
			}).Info("skipping role above the bot's top role")
			errs = append(errs, fmt.Errorf("%w: role %s is not below the bot's top role", trigger.ErrPermissionDenied, role))
			continue
		}

		if a.Kind == trigger.KindAddRole {
			err = d.host.AddRole(ctx, msg.GuildID, msg.AuthorID, role, reason)
		} else {
			err = d.host.RemoveRole(ctx, msg.GuildID, msg.AuthorID, role, reason)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", a.Kind, role, err))
			continue
		}
		done = append(done, role)
	}

	if len(done) > 0 {
		d.record(ctx, settings, a.Kind, t, msg, "roles: "+strings.Join(done, ", "))
	}
	return errors.Join(errs...)
}

// CheckAssignable reports whether authorID may create a trigger that
// manages roles: every role must be below both the bot's and the author's
// top role. The guild owner is only limited by the bot.
func (d *Dispatcher) CheckAssignable(ctx context.Context, guildID, authorID string, roles []string) error {
	bot, err := d.host.TopRolePosition(ctx, guildID, d.host.BotID())
	if err != nil {
		return fmt.Errorf("looking up bot role: %w", err)
	}
	owner, err := d.host.GuildOwner(ctx, guildID)
	if err != nil {
		return fmt.Errorf("looking up guild owner: %w", err)
	}
	author := bot
	if authorID != owner {
		if author, err = d.host.TopRolePosition(ctx, guildID, authorID); err != nil {
			return fmt.Errorf("looking up role of %s: %w", authorID, err)
		}
	}

	for _, role := range roles {
		pos, err := d.host.RolePosition(ctx, guildID, role)
		if err != nil {
			return fmt.Errorf("%w: role %s: %v", trigger.ErrMissingTarget, role, err)
		}
		if pos >= bot {
			return fmt.Errorf("%w: I can't assign roles higher than my own", trigger.ErrPermissionDenied)
		}
		if pos >= author {
			return fmt.Errorf("%w: I can't assign roles higher than you are able to assign", trigger.ErrPermissionDenied)
		}
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, t *trigger.Trigger, a trigger.Action, msg *trigger.Message) error {
	if d.invoker == nil {
		return fmt.Errorf("%w: commands are not available", trigger.ErrMissingTarget)
	}

	prefix := d.invoker.CommandPrefix()
	line := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(a.Payload[0]), prefix))
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty command", trigger.ErrMissingTarget)
	}
	if !d.invoker.CommandExists(fields[0]) {
		return fmt.Errorf("%w: command %q no longer exists", trigger.ErrMissingTarget, fields[0])
	}

	inv := Invocation{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   prefix + line,
		MessageID: msg.ID,
		Nonce:     uuid.NewString(),
	}
	if a.Kind == trigger.KindMock {
		inv.AuthorID = t.AuthorID
		inv.Elevated = true
	}
	if d.onInvoke != nil {
		d.onInvoke(inv)
	}
	return d.invoker.Invoke(ctx, inv)
}

func (d *Dispatcher) record(ctx context.Context, settings trigger.Settings, kind trigger.Kind, t *trigger.Trigger, msg *trigger.Message, detail string) {
	if d.modlog == nil || !settings.Logs(kind) {
		return
	}
	err := d.modlog.Record(ctx, ModlogEntry{
		GuildID:   msg.GuildID,
		ChannelID: settings.ModlogChannel,
		Kind:      kind,
		Trigger:   t.Name,
		TargetID:  msg.AuthorID,
		Detail:    detail,
		At:        d.now(),
	})
	if err != nil {
		d.log.WithFields(logrus.Fields{
			"guild":   msg.GuildID,
			"trigger": t.Name,
			"kind":    kind,
		}).Warnf("writing modlog: %v", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
