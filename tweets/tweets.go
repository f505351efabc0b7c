// Package tweets relays the statuses of followed Twitter accounts into chat
// channels.
package tweets

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/trace"
	"github.com/ChimeraCoder/anaconda"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrUnknownUser is returned when Twitter does not know a screen name.
	ErrUnknownUser = errors.New("unknown twitter user")
	// ErrNotSaved is returned when a change to the followed accounts was
	// applied but could not be persisted.
	ErrNotSaved = errors.New("followed accounts not saved")
)

// Twitter is the part of *anaconda.TwitterApi the relay uses.
type Twitter interface {
	GetUsersLookup(usernames string, v url.Values) ([]anaconda.User, error)
	GetUserTimeline(v url.Values) ([]anaconda.Tweet, error)
	PublicStreamFilter(v url.Values) *anaconda.Stream
	PostTweet(status string, v url.Values) (anaconda.Tweet, error)
}

var _ Twitter = (*anaconda.TwitterApi)(nil)

// Poster delivers relayed statuses.
type Poster interface {
	SendText(ctx context.Context, channelID, text string) error
}

// Account is a followed Twitter account and the channels it posts to.
type Account struct {
	ID         int64    `json:"id"`
	ScreenName string   `json:"screen_name"`
	Channels   []string `json:"channels"`
	// Replies relays the account's replies to other users too.
	Replies bool `json:"replies"`
}

// Relay follows accounts on the streaming API and posts their statuses.
type Relay struct {
	api     Twitter
	post    Poster
	limiter *rate.Limiter
	log     logrus.FieldLogger

	// retry is the pause before reconnecting a dropped stream.
	retry time.Duration

	// saveMu orders writes to store.
	saveMu sync.Mutex
	store  AccountStore

	mu           sync.Mutex
	accounts     map[int64]*Account
	errorChannel string
	restart      chan struct{}
}

// New constructs a *Relay posting at most limit messages per second.
func New(api Twitter, post Poster, limit rate.Limit, log logrus.FieldLogger) *Relay {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Relay{
		api:      api,
		post:     post,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log.WithField("component", "tweets"),
		retry:    30 * time.Second,
		accounts: make(map[int64]*Account),
		restart:  make(chan struct{}, 1),
	}
}

// SetErrorChannel sets where relay failures are reported. An empty id
// disables reporting.
func (r *Relay) SetErrorChannel(channelID string) {
	r.mu.Lock()
	r.errorChannel = channelID
	r.mu.Unlock()
}

// Load replaces the followed accounts with those saved in s and persists
// every later change there.
func (r *Relay) Load(ctx context.Context, s AccountStore) error {
	accounts, err := s.LoadAccounts(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
	r.accounts = make(map[int64]*Account, len(accounts))
	for i := range accounts {
		a := accounts[i]
		if len(a.Channels) > 0 {
			r.accounts[a.ID] = &a
		}
	}
	return nil
}

func (r *Relay) save(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	r.mu.Lock()
	s := r.store
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.SaveAccounts(ctx, r.Accounts()); err != nil {
		r.log.Errorf("saving followed accounts: %v", err)
		return fmt.Errorf("%w: %v", ErrNotSaved, err)
	}
	return nil
}

// Lookup resolves a screen name.
func (r *Relay) Lookup(ctx context.Context, screenName string) (anaconda.User, error) {
	span := trace.FromContext(ctx).NewChild("tweets.Lookup")
	defer span.Finish()

	users, err := r.api.GetUsersLookup(strings.TrimPrefix(screenName, "@"), nil)
	if err != nil {
		return anaconda.User{}, fmt.Errorf("looking up %s: %v", screenName, err)
	}
	if len(users) == 0 {
		return anaconda.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, screenName)
	}
	return users[0], nil
}

// Follow relays screenName's statuses into channelID and restarts the
// stream when the set of followed accounts changed.
func (r *Relay) Follow(ctx context.Context, screenName, channelID string) (Account, error) {
	user, err := r.Lookup(ctx, screenName)
	if err != nil {
		return Account{}, err
	}

	r.mu.Lock()
	a, ok := r.accounts[user.Id]
	if !ok {
		a = &Account{ID: user.Id, ScreenName: user.ScreenName}
		r.accounts[user.Id] = a
	}
	added := !contains(a.Channels, channelID)
	if added {
		a.Channels = append(a.Channels, channelID)
	}
	out := copyAccount(a)
	r.mu.Unlock()

	if !ok {
		r.Restart()
	}
	if added {
		return out, r.save(ctx)
	}
	return out, nil
}

// Unfollow stops relaying screenName into channelID and reports whether it
// was relayed there.
func (r *Relay) Unfollow(ctx context.Context, screenName, channelID string) (bool, error) {
	r.mu.Lock()
	a := r.find(screenName)
	if a == nil || !contains(a.Channels, channelID) {
		r.mu.Unlock()
		return false, nil
	}
	dropped := r.removeChannel(a, channelID)
	r.mu.Unlock()

	if dropped {
		r.Restart()
	}
	return true, r.save(ctx)
}

// ToggleReplies flips whether replies of screenName are relayed.
func (r *Relay) ToggleReplies(ctx context.Context, screenName string) (bool, error) {
	r.mu.Lock()
	a := r.find(screenName)
	if a == nil {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s is not followed", ErrUnknownUser, screenName)
	}
	a.Replies = !a.Replies
	on := a.Replies
	r.mu.Unlock()
	return on, r.save(ctx)
}

// Accounts lists followed accounts by screen name.
func (r *Relay) Accounts() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ScreenName) < strings.ToLower(out[j].ScreenName)
	})
	return out
}

// Restart reconnects the stream with the current set of accounts.
func (r *Relay) Restart() {
	select {
	case r.restart <- struct{}{}:
	default:
	}
}

func (r *Relay) find(screenName string) *Account {
	screenName = strings.TrimPrefix(screenName, "@")
	for _, a := range r.accounts {
		if strings.EqualFold(a.ScreenName, screenName) {
			return a
		}
	}
	return nil
}

// removeChannel drops channelID from a and forgets a once it has no
// channels left. It reports whether a was forgotten. r.mu must be held.
func (r *Relay) removeChannel(a *Account, channelID string) bool {
	kept := a.Channels[:0]
	for _, c := range a.Channels {
		if c != channelID {
			kept = append(kept, c)
		}
	}
	a.Channels = kept
	if len(a.Channels) == 0 {
		delete(r.accounts, a.ID)
		return true
	}
	return false
}

func (r *Relay) follows() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	sort.Strings(ids)
	return ids
}

// Run follows the accounts on the streaming API until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		ids := r.follows()
		if len(ids) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.restart:
				continue
			}
		}

		r.log.WithField("accounts", len(ids)).Info("starting twitter stream")
		s := r.api.PublicStreamFilter(url.Values{"follow": []string{strings.Join(ids, ",")}})
		err := r.consume(ctx, s.C)
		s.Stop()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.log.Warnf("twitter stream: %v", err)
			r.reportError(ctx, fmt.Sprintf("Twitter stream disconnected: %v", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retry):
			case <-r.restart:
			}
		}
	}
}

var errStreamClosed = errors.New("stream closed")

// consume handles stream items until the stream closes, ctx is done or a
// restart is requested. A requested restart returns nil.
func (r *Relay) consume(ctx context.Context, c <-chan interface{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.restart:
			return nil
		case item, ok := <-c:
			if !ok {
				return errStreamClosed
			}
			switch v := item.(type) {
			case anaconda.Tweet:
				r.Handle(ctx, v)
			case anaconda.DisconnectMessage:
				return fmt.Errorf("disconnected: %s", v.Reason)
			}
		}
	}
}

// Handle posts t to the channels of its author when the author is
// followed.
func (r *Relay) Handle(ctx context.Context, t anaconda.Tweet) {
	span := trace.FromContext(ctx).NewChild("tweets.Handle")
	defer span.Finish()

	r.mu.Lock()
	a, ok := r.accounts[t.User.Id]
	var acct Account
	if ok {
		acct = copyAccount(a)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if t.InReplyToScreenName != "" && !acct.Replies {
		return
	}

	text := Format(t)
	log := r.log.WithField("account", acct.ScreenName)
	for _, ch := range acct.Channels {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		err := r.post.SendText(ctx, ch, text)
		if err == nil {
			continue
		}
		log.WithField("channel", ch).Warnf("posting status %d: %v", t.Id, err)
		msg := fmt.Sprintf("%s from <#%s>(%s): %v", acct.ScreenName, ch, ch, err)
		if forbidden(err) {
			r.mu.Lock()
			if a, ok := r.accounts[acct.ID]; ok {
				r.removeChannel(a, ch)
			}
			r.mu.Unlock()
			r.save(ctx)
			msg = "Removing " + msg
		}
		r.reportError(ctx, msg)
	}
}

func forbidden(err error) bool {
	s := err.Error()
	return strings.Contains(s, "403") || strings.Contains(strings.ToUpper(s), "FORBIDDEN")
}

func (r *Relay) reportError(ctx context.Context, msg string) {
	r.mu.Lock()
	ch := r.errorChannel
	r.mu.Unlock()
	if ch == "" {
		return
	}
	if err := r.post.SendText(ctx, ch, msg); err != nil {
		r.log.WithField("channel", ch).Warnf("reporting relay error: %v", err)
	}
}

// Timeline returns up to count recent statuses of screenName.
func (r *Relay) Timeline(ctx context.Context, screenName string, count int) ([]anaconda.Tweet, error) {
	span := trace.FromContext(ctx).NewChild("tweets.Timeline")
	defer span.Finish()

	v := url.Values{}
	v.Set("screen_name", strings.TrimPrefix(screenName, "@"))
	v.Set("count", strconv.Itoa(count))
	tweets, err := r.api.GetUserTimeline(v)
	if err != nil {
		return nil, fmt.Errorf("getting timeline of %s: %v", screenName, err)
	}
	return tweets, nil
}

// Send posts a status from the bot's account.
func (r *Relay) Send(ctx context.Context, status string) (anaconda.Tweet, error) {
	span := trace.FromContext(ctx).NewChild("tweets.Send")
	defer span.Finish()

	t, err := r.api.PostTweet(status, nil)
	if err != nil {
		return anaconda.Tweet{}, fmt.Errorf("posting tweet: %v", err)
	}
	return t, nil
}

// StatusURL links to t on twitter.com.
func StatusURL(t anaconda.Tweet) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%d", t.User.ScreenName, t.Id)
}

// Format renders t as a chat message.
func Format(t anaconda.Tweet) string {
	header := t.User.Name
	status := t
	if t.RetweetedStatus != nil {
		header += " Retweeted"
		status = *t.RetweetedStatus
	}
	text := html.UnescapeString(status.Text)
	return fmt.Sprintf("%s\n**%s** (@%s)\n%s", StatusURL(t), header, t.User.ScreenName, text)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyAccount(a *Account) Account {
	out := *a
	out.Channels = append([]string(nil), a.Channels...)
	return out
}
