package commands

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gobridge/retrigger/trigger"
)

// ErrWaitTimeout is returned when nobody answered in time.
var ErrWaitTimeout = errors.New("timed out waiting for a reply")

// Reaction is a reaction added to a message.
type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

type messageWait struct {
	match func(*trigger.Message) bool
	ch    chan *trigger.Message
}

type reactionWait struct {
	match func(Reaction) bool
	ch    chan Reaction
}

// Waiter lets a command wait for a follow-up message or reaction. Hosts
// feed it every inbound event.
type Waiter struct {
	mu        sync.Mutex
	messages  []*messageWait
	reactions []*reactionWait
}

// NewWaiter constructs a *Waiter.
func NewWaiter() *Waiter {
	return &Waiter{}
}

// DeliverMessage hands m to the first waiter it satisfies and reports
// whether one took it.
func (w *Waiter) DeliverMessage(m *trigger.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, mw := range w.messages {
		if mw.match(m) {
			w.messages = append(w.messages[:i], w.messages[i+1:]...)
			mw.ch <- m
			return true
		}
	}
	return false
}

// DeliverReaction hands r to the first waiter it satisfies and reports
// whether one took it.
func (w *Waiter) DeliverReaction(r Reaction) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, rw := range w.reactions {
		if rw.match(r) {
			w.reactions = append(w.reactions[:i], w.reactions[i+1:]...)
			rw.ch <- r
			return true
		}
	}
	return false
}

// WaitMessage blocks until a message satisfying match arrives, ctx ends
// or timeout passes.
func (w *Waiter) WaitMessage(ctx context.Context, timeout time.Duration, match func(*trigger.Message) bool) (*trigger.Message, error) {
	mw := &messageWait{match: match, ch: make(chan *trigger.Message, 1)}
	w.mu.Lock()
	w.messages = append(w.messages, mw)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case m := <-mw.ch:
		return m, nil
	case <-ctx.Done():
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, have := range w.messages {
			if have == mw {
				w.messages = append(w.messages[:i], w.messages[i+1:]...)
				return nil, waitErr(ctx)
			}
		}
		// Delivered while timing out.
		return <-mw.ch, nil
	}
}

// WaitReaction blocks until a reaction satisfying match arrives, ctx ends
// or timeout passes.
func (w *Waiter) WaitReaction(ctx context.Context, timeout time.Duration, match func(Reaction) bool) (Reaction, error) {
	rw := &reactionWait{match: match, ch: make(chan Reaction, 1)}
	w.mu.Lock()
	w.reactions = append(w.reactions, rw)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case r := <-rw.ch:
		return r, nil
	case <-ctx.Done():
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, have := range w.reactions {
			if have == rw {
				w.reactions = append(w.reactions[:i], w.reactions[i+1:]...)
				return Reaction{}, waitErr(ctx)
			}
		}
		return <-rw.ch, nil
	}
}

func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrWaitTimeout
	}
	return ctx.Err()
}

// FromAuthor matches messages by the author of m in m's channel.
func FromAuthor(m *trigger.Message) func(*trigger.Message) bool {
	return func(other *trigger.Message) bool {
		return other.AuthorID == m.AuthorID && other.ChannelID == m.ChannelID && other.ID != m.ID
	}
}
