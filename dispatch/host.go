package dispatch

import (
	"context"
	"io"
	"time"

	"github.com/gobridge/retrigger/trigger"
)

// Messenger posts to channels and users.
type Messenger interface {
	SendText(ctx context.Context, channelID, text string) error
	// SendFile uploads r as name with an optional text body.
	SendFile(ctx context.Context, channelID, name string, r io.Reader, text string) error
	SendDM(ctx context.Context, userID, text string) error
}

// Reactor adds reactions to messages.
type Reactor interface {
	React(ctx context.Context, channelID, messageID, emoji string) error
}

// Moderator performs moderation on guild members and messages.
type Moderator interface {
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Hierarchy answers role ordering questions. Higher positions outrank
// lower ones.
type Hierarchy interface {
	BotID() string
	GuildOwner(ctx context.Context, guildID string) (string, error)
	TopRolePosition(ctx context.Context, guildID, userID string) (int, error)
	RolePosition(ctx context.Context, guildID, roleID string) (int, error)
}

// Invocation is a command issued on behalf of a trigger.
type Invocation struct {
	GuildID   string
	ChannelID string
	// AuthorID is who the command runs as: the message author for
	// command actions and the trigger author for mock actions.
	AuthorID string
	// Content is the full command line, prefix included.
	Content string
	// Elevated is set for mock actions.
	Elevated bool
	// MessageID is the message that fired the trigger.
	MessageID string
	// Nonce identifies the synthetic message so it is never evaluated
	// again as trigger input.
	Nonce string
}

// CommandInvoker runs host commands by name.
type CommandInvoker interface {
	CommandPrefix() string
	CommandExists(name string) bool
	Invoke(ctx context.Context, inv Invocation) error
}

// Host is everything a chat platform adapter provides.
type Host interface {
	Messenger
	Reactor
	Moderator
	Hierarchy
}

// FileStore keeps uploaded images per guild.
type FileStore interface {
	Open(guildID, name string) (io.ReadCloser, error)
	Save(guildID, name string, r io.Reader) (string, error)
}

// Resizer scales an image to fit within width x height.
type Resizer interface {
	Resize(r io.Reader, name string, width, height int) (io.Reader, error)
}

// ModlogEntry describes one moderation action taken by a trigger.
type ModlogEntry struct {
	GuildID string
	// ChannelID is the configured modlog channel, possibly
	// trigger.ModlogDefault.
	ChannelID string
	Kind      trigger.Kind
	Trigger   string
	TargetID  string
	Detail    string
	At        time.Time
}

// Modlog records moderation actions.
type Modlog interface {
	Record(ctx context.Context, e ModlogEntry) error
}
