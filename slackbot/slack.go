// Package slackbot adapts a Slack RTM connection to the bot's host
// interfaces. Slack has no roles or bans, so those actions are refused.
package slackbot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/nlopes/slack"
	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/commands"
	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/trigger"
)

// Handler receives the events of the connection.
type Handler interface {
	HandleMessage(m *trigger.Message)
	HandleEdit(m *trigger.Message)
	HandleReaction(r commands.Reaction)
}

// API is the part of *slack.Client the host uses.
type API interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	OpenIMChannelContext(ctx context.Context, user string) (bool, bool, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
	DeleteMessageContext(ctx context.Context, channel, messageTimestamp string) (string, string, error)
	UploadFileContext(ctx context.Context, params slack.FileUploadParameters) (*slack.File, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

var _ API = (*slack.Client)(nil)

// Host is a Slack workspace connection. The workspace is the guild.
type Host struct {
	client *slack.Client
	api    API
	token  string
	log    logrus.FieldLogger

	mu     sync.RWMutex
	botID  string
	teamID string
}

var (
	_ dispatch.Host = (*Host)(nil)
	_ commands.Host = (*Host)(nil)
)

// New constructs a *Host for the bot token.
func New(token string, log logrus.FieldLogger) *Host {
	c := slack.New(token)
	h := newHost(c, log)
	h.client = c
	h.token = token
	return h
}

func newHost(api API, log logrus.FieldLogger) *Host {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{api: api, log: log.WithField("host", "slack")}
}

// Init determines the bot and workspace ids. Run calls it.
func (s *Host) Init(ctx context.Context) error {
	resp, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %v", err)
	}
	s.mu.Lock()
	s.botID, s.teamID = resp.UserID, resp.TeamID
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"user": resp.UserID, "team": resp.TeamID}).Info("initialized slack bot")
	return nil
}

// Run connects to the RTM API and feeds h until ctx is done.
func (s *Host) Run(ctx context.Context, h Handler) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	rtm := s.client.NewRTM()
	go rtm.ManageConnection()
	defer rtm.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-rtm.IncomingEvents:
			switch event := msg.Data.(type) {
			case *slack.MessageEvent:
				s.dispatchMessage(event, h)
			case *slack.ReactionAddedEvent:
				go h.HandleReaction(s.reaction(event))
			case *slack.InvalidAuthEvent:
				return fmt.Errorf("slack: invalid credentials")
			}
		}
	}
}

func (s *Host) dispatchMessage(event *slack.MessageEvent, h Handler) {
	switch event.SubType {
	case "", "file_share", "thread_broadcast":
		go h.HandleMessage(s.convert(&event.Msg, event.Channel))
	case "message_changed":
		if event.SubMessage != nil {
			go h.HandleEdit(s.convert(event.SubMessage, event.Channel))
		}
	}
}

func (s *Host) convert(m *slack.Msg, channel string) *trigger.Message {
	s.mu.RLock()
	team := s.teamID
	s.mu.RUnlock()
	if m.Team != "" {
		team = m.Team
	}

	out := &trigger.Message{
		ID:          m.Timestamp,
		GuildID:     team,
		ChannelID:   channel,
		AuthorID:    m.User,
		AuthorIsBot: m.BotID != "" || m.SubType == "bot_message",
		Content:     unescape(m.Text),
	}
	// Direct message channels always start with 'D'.
	if strings.HasPrefix(channel, "D") {
		out.GuildID = ""
	}
	if out.AuthorID == "" {
		out.AuthorID = m.BotID
	}
	for _, f := range m.Files {
		out.Attachments = append(out.Attachments, trigger.Attachment{Filename: f.Name, URL: f.URLPrivateDownload})
	}
	return out
}

var unescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">")

// unescape undoes Slack's escaping of the three control characters.
func unescape(text string) string {
	return unescaper.Replace(text)
}

func (s *Host) reaction(e *slack.ReactionAddedEvent) commands.Reaction {
	s.mu.RLock()
	team := s.teamID
	s.mu.RUnlock()
	return commands.Reaction{
		GuildID:   team,
		ChannelID: e.Item.Channel,
		MessageID: e.Item.Timestamp,
		UserID:    e.User,
		Emoji:     fromName(e.Reaction),
	}
}

// Slack names its emoji. Commands use the unicode form for the choices
// they offer.
var emojiNames = map[string]string{
	"✅": "white_check_mark",
	"❌": "x",
	"👍": "+1",
	"👎": "-1",
}

func toName(emoji string) string {
	if n, ok := emojiNames[emoji]; ok {
		return n
	}
	return strings.Trim(emoji, ":")
}

func fromName(name string) string {
	for e, n := range emojiNames {
		if n == name {
			return e
		}
	}
	return name
}

func (s *Host) SendText(ctx context.Context, channelID, text string) error {
	_, err := s.Post(ctx, channelID, text)
	return err
}

func (s *Host) Post(ctx context.Context, channelID, text string) (string, error) {
	_, ts, err := s.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false), slack.MsgOptionAsUser(true))
	if err != nil {
		return "", err
	}
	return ts, nil
}

func (s *Host) SendFile(ctx context.Context, channelID, name string, r io.Reader, text string) error {
	_, err := s.api.UploadFileContext(ctx, slack.FileUploadParameters{
		Reader:         r,
		Filename:       name,
		InitialComment: text,
		Channels:       []string{channelID},
	})
	return err
}

func (s *Host) SendDM(ctx context.Context, userID, text string) error {
	_, _, channel, err := s.api.OpenIMChannelContext(ctx, userID)
	if err != nil {
		return fmt.Errorf("opening im channel: %v", err)
	}
	return s.SendText(ctx, channel, text)
}

func (s *Host) React(ctx context.Context, channelID, messageID, emoji string) error {
	return s.api.AddReactionContext(ctx, toName(emoji), slack.NewRefToMessage(channelID, messageID))
}

func (s *Host) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	_, _, err := s.api.DeleteMessageContext(ctx, channelID, messageID)
	return err
}

func unsupported(action string) error {
	return fmt.Errorf("%w: slack does not support %s", trigger.ErrPermissionDenied, action)
}

func (s *Host) AddRole(context.Context, string, string, string, string) error {
	return unsupported("roles")
}

func (s *Host) RemoveRole(context.Context, string, string, string, string) error {
	return unsupported("roles")
}

func (s *Host) Ban(context.Context, string, string, string) error {
	return unsupported("bans")
}

func (s *Host) Kick(context.Context, string, string, string) error {
	return unsupported("kicks")
}

func (s *Host) BotID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botID
}

// GuildOwner is unknown on Slack; owners are recognised per user by
// HasPermission.
func (s *Host) GuildOwner(context.Context, string) (string, error) {
	return "", nil
}

func (s *Host) TopRolePosition(context.Context, string, string) (int, error) {
	return 0, nil
}

func (s *Host) RolePosition(_ context.Context, _, roleID string) (int, error) {
	return 0, fmt.Errorf("%w: role %s", trigger.ErrMissingTarget, roleID)
}

// HasPermission grants every permission to workspace admins and owners.
func (s *Host) HasPermission(ctx context.Context, _, _, userID string, _ commands.Permission) (bool, error) {
	u, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin || u.IsOwner || u.IsPrimaryOwner, nil
}

// AuthClient adds the bot token to requests for private Slack files.
type AuthClient struct {
	Token  string
	Client *http.Client
}

// Do implements files.Client.
func (c *AuthClient) Do(r *http.Request) (*http.Response, error) {
	if isSlackHost(r) {
		r.Header.Set("Authorization", "Bearer "+c.Token)
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(r)
}

func isSlackHost(r *http.Request) bool {
	host := r.URL.Hostname()
	return host == "slack.com" || strings.HasSuffix(host, ".slack.com")
}

// FileClient returns an AuthClient for the host's token.
func (s *Host) FileClient(c *http.Client) *AuthClient {
	return &AuthClient{Token: s.token, Client: c}
}
