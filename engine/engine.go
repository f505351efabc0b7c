// Package engine evaluates inbound messages against a guild's triggers
// and fires the ones that match.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/trace"
	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/matcher"
	"github.com/gobridge/retrigger/registry"
	"github.com/gobridge/retrigger/trigger"
)

// State is where evaluation of a message ended.
type State string

// Evaluation states.
const (
	StateReceived        State = "received"
	StateFiltered        State = "filtered"
	StateScanning        State = "scanning"
	StateNoMatch         State = "no_match"
	StateMatchedSingle   State = "matched_single"
	StateMatchedMultiple State = "matched_multiple"
	StateDispatched      State = "dispatched"
	StateDone            State = "done"
)

// Matcher evaluates a pattern.
type Matcher interface {
	Match(ctx context.Context, source, text string, filenames []string) (*matcher.Match, error)
}

// Dispatcher runs a fired trigger's actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *trigger.Trigger, m *matcher.Match, msg *trigger.Message, settings trigger.Settings) []dispatch.Result
}

// Fired is a trigger that fired for a message.
type Fired struct {
	Trigger *trigger.Trigger
	Match   *matcher.Match
	Results []dispatch.Result
}

// Outcome describes what happened to one message.
type Outcome struct {
	// State is StateFiltered, StateNoMatch, StateMatchedSingle or
	// StateMatchedMultiple.
	State  State
	Reason string
	Fired  []Fired
}

// Config tunes the engine.
type Config struct {
	// MaxConcurrentGuilds bounds how many guilds are evaluated at once.
	MaxConcurrentGuilds int
	// ProvenanceWindow is how long issued commands are remembered.
	ProvenanceWindow time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithCommandPrefix sets the host command prefix.
func WithCommandPrefix(prefix string) Option {
	return func(e *Engine) { e.prefix = prefix }
}

// WithBotID drops messages sent by the bot itself.
func WithBotID(id string) Option {
	return func(e *Engine) { e.botID = id }
}

// WithTraceClient wraps message handling in trace spans.
func WithTraceClient(c *trace.Client) Option {
	return func(e *Engine) { e.trace = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the evaluation pipeline.
type Engine struct {
	reg   *registry.Registry
	pool  Matcher
	disp  Dispatcher
	log   logrus.FieldLogger
	trace *trace.Client
	now   func() time.Time

	prefix string
	botID  string

	provenance *Provenance
	queue      *GuildQueue
}

// New constructs an *Engine.
func New(cfg Config, reg *registry.Registry, pool Matcher, disp Dispatcher, log logrus.FieldLogger, opts ...Option) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.ProvenanceWindow <= 0 {
		cfg.ProvenanceWindow = time.Minute
	}
	e := &Engine{
		reg:   reg,
		pool:  pool,
		disp:  disp,
		log:   log.WithField("component", "engine"),
		now:   time.Now,
		queue: NewGuildQueue(cfg.MaxConcurrentGuilds),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.provenance = NewProvenance(cfg.ProvenanceWindow, e.now)
	return e
}

// RecordInvocation remembers a command issued by a trigger. It is meant
// to be installed with dispatch.WithInvokeHook.
func (e *Engine) RecordInvocation(inv dispatch.Invocation) {
	e.provenance.Record(inv)
}

// Submit queues msg for evaluation behind earlier messages of its guild.
func (e *Engine) Submit(ctx context.Context, msg *trigger.Message) {
	e.queue.Enqueue(ctx, msg.GuildID, func(ctx context.Context) {
		if _, err := e.HandleMessage(ctx, msg); err != nil {
			e.log.WithField("guild", msg.GuildID).Errorf("evaluating message %s: %v", msg.ID, err)
		}
	})
}

// SubmitEdit queues an edited message for evaluation.
func (e *Engine) SubmitEdit(ctx context.Context, msg *trigger.Message) {
	msg.Edited = true
	e.Submit(ctx, msg)
}

// Wait blocks until every submitted message has been evaluated.
func (e *Engine) Wait() {
	e.queue.Wait()
}

// HandleEdit evaluates an edited message. Triggers that ignore edits are
// skipped.
func (e *Engine) HandleEdit(ctx context.Context, msg *trigger.Message) (*Outcome, error) {
	msg.Edited = true
	return e.HandleMessage(ctx, msg)
}

// HandleMessage evaluates msg against its guild's triggers in insertion
// order and dispatches the ones that fire. Unless the guild allows
// multiple matches, evaluation stops at the first trigger that fires.
func (e *Engine) HandleMessage(ctx context.Context, msg *trigger.Message) (*Outcome, error) {
	var span *trace.Span
	if e.trace != nil {
		span = e.trace.NewSpan("engine.HandleMessage")
		defer span.Finish()
		ctx = trace.NewContext(ctx, span)
	}

	log := e.log.WithFields(logrus.Fields{
		"guild":   msg.GuildID,
		"channel": msg.ChannelID,
		"message": msg.ID,
	})
	log.WithField("state", StateReceived).Debug("message received")

	if reason := e.filter(msg); reason != "" {
		log.WithFields(logrus.Fields{"state": StateFiltered, "reason": reason}).Debug("message dropped")
		return &Outcome{State: StateFiltered, Reason: reason}, nil
	}

	triggers, err := e.reg.List(ctx, msg.GuildID)
	if err != nil {
		return nil, err
	}
	settings, err := e.reg.Settings(ctx, msg.GuildID)
	if err != nil {
		return nil, err
	}

	isCommand := e.prefix != "" && strings.HasPrefix(msg.Content, e.prefix)
	log.WithFields(logrus.Fields{"state": StateScanning, "triggers": len(triggers)}).Debug("scanning triggers")

	out := &Outcome{State: StateNoMatch}
	for _, t := range triggers {
		f, ok := e.try(ctx, log, t, msg, isCommand, settings)
		if !ok {
			continue
		}
		out.Fired = append(out.Fired, f)
		if !settings.AllowMultiple {
			break
		}
	}

	switch {
	case len(out.Fired) == 1:
		out.State = StateMatchedSingle
	case len(out.Fired) > 1:
		out.State = StateMatchedMultiple
	}
	log.WithFields(logrus.Fields{"state": out.State, "fired": len(out.Fired)}).Debug("evaluation finished")
	log.WithField("state", StateDone).Debug("message done")
	return out, nil
}

func (e *Engine) filter(msg *trigger.Message) string {
	switch {
	case msg.GuildID == "":
		return "direct message"
	case msg.AuthorIsBot:
		return "bot author"
	case e.botID != "" && msg.AuthorID == e.botID:
		return "own message"
	case strings.TrimSpace(msg.Content) == "" && len(msg.Attachments) == 0:
		return "empty message"
	case e.provenance.Synthetic(msg):
		return "issued by a trigger"
	}
	return ""
}

// try evaluates one trigger and fires it when it matches.
func (e *Engine) try(ctx context.Context, log logrus.FieldLogger, t *trigger.Trigger, msg *trigger.Message, isCommand bool, settings trigger.Settings) (Fired, bool) {
	if msg.Edited && t.IgnoreEdits {
		return Fired{}, false
	}
	if isCommand && !t.Has(trigger.KindCommand) && !t.Has(trigger.KindMock) {
		return Fired{}, false
	}
	if !t.Allowed(msg) {
		return Fired{}, false
	}
	now := e.now()
	// Cheap check on the snapshot; Fire checks again under the guild lock.
	if !t.Cooldown.Ready(msg, now) {
		return Fired{}, false
	}

	log = log.WithField("trigger", t.Name)

	var filenames []string
	if t.CheckFilenames {
		filenames = msg.Filenames()
	}

	span := trace.FromContext(ctx).NewChild("matcher.Match")
	m, err := e.pool.Match(ctx, t.Pattern, msg.Content, filenames)
	span.Finish()
	if err != nil {
		if errors.Is(err, trigger.ErrEvaluationTimeout) {
			log.Warnf("pattern took too long, treating as no match: %v", err)
		} else {
			log.Warnf("matching: %v", err)
		}
		return Fired{}, false
	}
	if m == nil {
		return Fired{}, false
	}

	fired, ok, err := e.reg.Fire(ctx, msg.GuildID, t.Name, msg, now)
	if errors.Is(err, trigger.ErrNotFound) {
		log.Debug("trigger removed before it could fire")
		return Fired{}, false
	}
	if err != nil {
		log.Errorf("recording fire: %v", err)
		return Fired{}, false
	}
	if !ok {
		log.Debug("trigger cooling down")
		return Fired{}, false
	}

	log.WithField("kind", fired.ResponseTypes).Debug("trigger matched")
	span = trace.FromContext(ctx).NewChild("dispatch.Dispatch")
	results := e.disp.Dispatch(ctx, fired, m, msg, settings)
	span.Finish()
	log.WithField("state", StateDispatched).Debug("actions dispatched")

	return Fired{Trigger: fired, Match: m, Results: results}, true
}

// Maintain drops expired provenance records and cooldown entries.
func (e *Engine) Maintain(ctx context.Context) {
	n := e.provenance.Prune()
	pruned, err := e.reg.PruneCooldowns(ctx, e.now())
	if err != nil {
		e.log.Warnf("pruning cooldowns: %v", err)
	}
	e.log.WithFields(logrus.Fields{"provenance": n, "cooldowns": pruned}).Debug("maintenance finished")
}
