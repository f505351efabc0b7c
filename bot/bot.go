package bot

import (
	"context"

	"cloud.google.com/go/trace"
	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/commands"
	"github.com/gobridge/retrigger/trigger"
)

type (
	// Engine evaluates messages against the guild triggers.
	Engine interface {
		Submit(ctx context.Context, msg *trigger.Message)
		SubmitEdit(ctx context.Context, msg *trigger.Message)
	}

	// Bot routes the events of a chat host to the reply waiter, the
	// command router and the trigger engine.
	Bot struct {
		router      *commands.Router
		waiter      *commands.Waiter
		engine      Engine
		traceClient *trace.Client
		devMode     bool
		log         logrus.FieldLogger
	}
)

// NewBot will create a new Bot. traceClient may be nil.
func NewBot(router *commands.Router, waiter *commands.Waiter, engine Engine, traceClient *trace.Client, devMode bool, log logrus.FieldLogger) *Bot {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bot{
		router:      router,
		waiter:      waiter,
		engine:      engine,
		traceClient: traceClient,
		devMode:     devMode,
		log:         log.WithField("component", "bot"),
	}
}

func (b *Bot) span(name string) (context.Context, *trace.Span) {
	if b.traceClient == nil {
		return context.Background(), nil
	}
	span := b.traceClient.NewSpan(name)
	return trace.NewContext(context.Background(), span), span
}

// HandleMessage is called for every new message the host sees. It blocks
// while a command waits for follow-up input, so hosts call it from its own
// goroutine.
func (b *Bot) HandleMessage(m *trigger.Message) {
	if m.AuthorID == "" {
		return
	}
	if b.devMode {
		b.log.WithFields(logrus.Fields{
			"guild":   m.GuildID,
			"channel": m.ChannelID,
			"author":  m.AuthorID,
		}).Infof("got message: %q", m.Content)
	}

	ctx, span := b.span("b.HandleMessage")
	defer span.Finish()

	// Triggers see every message, commands included.
	b.engine.Submit(ctx, m)

	if m.AuthorIsBot {
		return
	}
	if b.waiter.DeliverMessage(m) {
		return
	}
	b.router.Handle(ctx, m)
}

// HandleEdit is called when a message is edited.
func (b *Bot) HandleEdit(m *trigger.Message) {
	if m.AuthorID == "" || m.Content == "" && len(m.Attachments) == 0 {
		return
	}
	ctx, span := b.span("b.HandleEdit")
	defer span.Finish()

	b.engine.SubmitEdit(ctx, m)
}

// HandleReaction is called when a reaction is added to a message.
func (b *Bot) HandleReaction(r commands.Reaction) {
	if !b.waiter.DeliverReaction(r) && b.devMode {
		b.log.WithField("message", r.MessageID).Infof("unclaimed reaction %s", r.Emoji)
	}
}
