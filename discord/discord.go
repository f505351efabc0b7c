// Package discord adapts a discordgo session to the bot's host interfaces.
package discord

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/commands"
	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/trigger"
)

// Handler receives the events of the session.
type Handler interface {
	HandleMessage(m *trigger.Message)
	HandleEdit(m *trigger.Message)
	HandleReaction(r commands.Reaction)
}

// Host is a Discord bot connection.
type Host struct {
	s   *discordgo.Session
	log logrus.FieldLogger
}

var (
	_ dispatch.Host = (*Host)(nil)
	_ commands.Host = (*Host)(nil)
)

// New creates a session for the bot token. Call Run to connect.
func New(token string, log logrus.FieldLogger) (*Host, error) {
	s, err := discordgo.New("Bot " + strings.TrimPrefix(token, "Bot "))
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %v", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	s.StateEnabled = true
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{s: s, log: log.WithField("host", "discord")}, nil
}

// Run connects, feeds h until ctx is done and disconnects.
func (d *Host) Run(ctx context.Context, h Handler) error {
	d.s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
		h.HandleMessage(convert(e.Message))
	})
	d.s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageUpdate) {
		// Embed-only updates carry no author.
		if e.Message == nil || e.Author == nil {
			return
		}
		h.HandleEdit(convert(e.Message))
	})
	d.s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
		h.HandleReaction(commands.Reaction{
			GuildID:   e.GuildID,
			ChannelID: e.ChannelID,
			MessageID: e.MessageID,
			UserID:    e.UserID,
			Emoji:     e.Emoji.Name,
		})
	})

	if err := d.s.Open(); err != nil {
		return fmt.Errorf("opening discord session: %v", err)
	}
	d.log.WithField("user", d.BotID()).Info("connected to discord")

	<-ctx.Done()
	if err := d.s.Close(); err != nil {
		d.log.Warnf("closing discord session: %v", err)
	}
	return nil
}

func convert(m *discordgo.Message) *trigger.Message {
	out := &trigger.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorIsBot = m.Author.Bot
	}
	if m.Member != nil {
		out.AuthorRoles = append([]string(nil), m.Member.Roles...)
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, trigger.Attachment{Filename: a.Filename, URL: a.URL})
	}
	return out
}

func (d *Host) SendText(ctx context.Context, channelID, text string) error {
	_, err := d.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func (d *Host) Post(ctx context.Context, channelID, text string) (string, error) {
	m, err := d.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (d *Host) SendFile(ctx context.Context, channelID, name string, r io.Reader, text string) error {
	_, err := d.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: text,
		Files:   []*discordgo.File{{Name: name, Reader: r}},
	}, discordgo.WithContext(ctx))
	return err
}

func (d *Host) SendDM(ctx context.Context, userID, text string) error {
	ch, err := d.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening dm channel: %v", err)
	}
	return d.SendText(ctx, ch.ID, text)
}

// apiEmoji turns <:name:id> and <a:name:id> into the name:id form the API
// expects. Unicode emoji pass through.
func apiEmoji(e string) string {
	e = strings.TrimSuffix(strings.TrimPrefix(e, "<"), ">")
	e = strings.TrimPrefix(e, "a:")
	return strings.TrimPrefix(e, ":")
}

func (d *Host) React(ctx context.Context, channelID, messageID, emoji string) error {
	return d.s.MessageReactionAdd(channelID, messageID, apiEmoji(emoji), discordgo.WithContext(ctx))
}

func (d *Host) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return d.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

func (d *Host) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return d.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

func (d *Host) Ban(ctx context.Context, guildID, userID, reason string) error {
	return d.s.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx))
}

func (d *Host) Kick(ctx context.Context, guildID, userID, reason string) error {
	return d.s.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
}

func (d *Host) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return d.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (d *Host) BotID() string {
	if d.s.State == nil || d.s.State.User == nil {
		return ""
	}
	return d.s.State.User.ID
}

func (d *Host) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if g, err := d.s.State.Guild(guildID); err == nil {
		return g, nil
	}
	return d.s.Guild(guildID, discordgo.WithContext(ctx))
}

func (d *Host) GuildOwner(ctx context.Context, guildID string) (string, error) {
	g, err := d.guild(ctx, guildID)
	if err != nil {
		return "", err
	}
	return g.OwnerID, nil
}

// ModlogChannel is the channel the "default" modlog setting resolves to.
func (d *Host) ModlogChannel(guildID string) string {
	g, err := d.s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	return g.SystemChannelID
}

func (d *Host) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := d.s.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	return d.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
}

func (d *Host) roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if g, err := d.s.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
		return g.Roles, nil
	}
	return d.s.GuildRoles(guildID, discordgo.WithContext(ctx))
}

// TopRolePosition returns the highest position among the member's roles.
// Members without roles sit at 0, the @everyone position.
func (d *Host) TopRolePosition(ctx context.Context, guildID, userID string) (int, error) {
	m, err := d.member(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	roles, err := d.roles(ctx, guildID)
	if err != nil {
		return 0, err
	}
	return topPosition(m.Roles, roles), nil
}

func topPosition(memberRoles []string, roles []*discordgo.Role) int {
	held := make(map[string]bool, len(memberRoles))
	for _, id := range memberRoles {
		held[id] = true
	}
	top := 0
	for _, r := range roles {
		if held[r.ID] && r.Position > top {
			top = r.Position
		}
	}
	return top
}

func (d *Host) RolePosition(ctx context.Context, guildID, roleID string) (int, error) {
	roles, err := d.roles(ctx, guildID)
	if err != nil {
		return 0, err
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r.Position, nil
		}
	}
	return 0, fmt.Errorf("%w: role %s", trigger.ErrMissingTarget, roleID)
}

var permissions = map[commands.Permission]int64{
	commands.PermManageMessages: discordgo.PermissionManageMessages,
	commands.PermManageRoles:    discordgo.PermissionManageRoles,
	commands.PermBanMembers:     discordgo.PermissionBanMembers,
	commands.PermKickMembers:    discordgo.PermissionKickMembers,
	commands.PermAdministrator:  discordgo.PermissionAdministrator,
}

func (d *Host) HasPermission(ctx context.Context, guildID, channelID, userID string, p commands.Permission) (bool, error) {
	if owner, err := d.GuildOwner(ctx, guildID); err == nil && owner == userID {
		return true, nil
	}
	perms, err := d.s.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	return hasPermission(perms, permissions[p]), nil
}

func hasPermission(perms, want int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return want != 0 && perms&want == want
}
