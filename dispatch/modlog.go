package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobridge/retrigger/trigger"
)

// ChannelModlog writes modlog entries as messages in a channel.
type ChannelModlog struct {
	m Messenger
	// fallback resolves trigger.ModlogDefault to the host's own modlog
	// channel for a guild. It returns "" when the guild has none.
	fallback func(guildID string) string
}

// NewChannelModlog constructs a *ChannelModlog.
func NewChannelModlog(m Messenger, fallback func(guildID string) string) *ChannelModlog {
	return &ChannelModlog{m: m, fallback: fallback}
}

var modlogTitles = map[trigger.Kind]string{
	trigger.KindBan:        "Banned",
	trigger.KindKick:       "Kicked",
	trigger.KindAddRole:    "Roles added",
	trigger.KindRemoveRole: "Roles removed",
	trigger.KindDelete:     "Message filtered",
}

func (l *ChannelModlog) Record(ctx context.Context, e ModlogEntry) error {
	channel := e.ChannelID
	if channel == trigger.ModlogDefault {
		channel = ""
		if l.fallback != nil {
			channel = l.fallback(e.GuildID)
		}
	}
	if channel == "" {
		return nil
	}

	title, ok := modlogTitles[e.Kind]
	if !ok {
		title = string(e.Kind)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** <@%s> by trigger `%s` at %s", title, e.TargetID, e.Trigger, e.At.UTC().Format("2006-01-02 15:04:05 MST"))
	if e.Detail != "" {
		fmt.Fprintf(&b, "\n%s", e.Detail)
	}
	return l.m.SendText(ctx, channel, b.String())
}
