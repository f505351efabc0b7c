package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/dispatch/dispatchtest"
	"github.com/gobridge/retrigger/registry"
	"github.com/gobridge/retrigger/trigger"
)

type cmdHost struct {
	*dispatchtest.Host

	mu    sync.Mutex
	perms map[string]map[Permission]bool
	posts int
}

func (h *cmdHost) Post(ctx context.Context, channelID, text string) (string, error) {
	if err := h.SendText(ctx, channelID, text); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.posts++
	return fmt.Sprintf("ask-%d", h.posts), nil
}

func (h *cmdHost) HasPermission(_ context.Context, _, _, userID string, p Permission) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perms[userID][p], nil
}

type fakeFiles struct {
	mu   sync.Mutex
	urls []string
	fail bool
}

func (f *fakeFiles) Download(_ context.Context, guildID, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("boom")
	}
	f.urls = append(f.urls, url)
	return fmt.Sprintf("file%d.png", len(f.urls)), nil
}

type roleCheckFunc func(roles []string) error

func (f roleCheckFunc) CheckAssignable(_ context.Context, _, _ string, roles []string) error {
	return f(roles)
}

type fixture struct {
	host   *cmdHost
	reg    *registry.Registry
	router *Router
	waiter *Waiter
	files  *fakeFiles
	nextID int
}

func newFixture(t *testing.T) *fixture {
	log, _ := test.NewNullLogger()
	h := &cmdHost{
		Host: dispatchtest.NewHost(),
		perms: map[string]map[Permission]bool{
			"mod": {
				PermManageMessages: true,
				PermManageRoles:    true,
				PermBanMembers:     true,
				PermKickMembers:    true,
			},
			"admin": {PermAdministrator: true},
		},
	}
	f := &fixture{
		host:   h,
		reg:    registry.New(registry.NewMemoryStore(), log),
		router: NewRouter("!", h, log),
		waiter: NewWaiter(),
		files:  &fakeFiles{},
	}
	f.router.Register(&Command{Name: "ping", Handler: HandlerFunc(func(ctx context.Context, req *Request, r Responder) {
		r.Respond(ctx, "pong")
	})})
	roles := roleCheckFunc(func(roles []string) error {
		for _, r := range roles {
			if r == "high" {
				return fmt.Errorf("%w: I can't assign roles higher than my own", trigger.ErrPermissionDenied)
			}
		}
		return nil
	})
	NewReTrigger(f.reg, h, f.router, f.files, roles, f.waiter, Config{
		ConfirmTimeout: 50 * time.Millisecond,
		UploadTimeout:  time.Second,
		ResizeEnabled:  true,
	}, log)
	return f
}

func (f *fixture) message(author, content string) *trigger.Message {
	f.nextID++
	return &trigger.Message{
		ID:        fmt.Sprintf("m%d", f.nextID),
		GuildID:   "g1",
		ChannelID: "c1",
		AuthorID:  author,
		Content:   content,
	}
}

func (f *fixture) run(author, content string) *trigger.Message {
	m := f.message(author, content)
	f.router.Handle(context.Background(), m)
	return m
}

func (f *fixture) replies() []string {
	var out []string
	for _, c := range f.host.Calls() {
		if c.Method == "SendText" {
			out = append(out, c.Text)
		}
	}
	return out
}

func (f *fixture) lastReply() string {
	r := f.replies()
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
		err  bool
	}{
		{in: "", want: nil},
		{in: "a b  c", want: []string{"a", "b", "c"}},
		{in: `text hi "\bhi\b" hello`, want: []string{"text", "hi", `\bhi\b`, "hello"}},
		{in: `"two words" x`, want: []string{"two words", "x"}},
		{in: `"say \"hi\""`, want: []string{`say "hi"`}},
		{in: `don't`, want: []string{"don't"}},
		{in: `"open`, err: true},
	}
	for _, tt := range tests {
		got, err := SplitArgs(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRestAfter(t *testing.T) {
	got, err := restAfter(`text hi "a b" the rest  here `, 3)
	require.NoError(t, err)
	assert.Equal(t, "the rest  here", got)

	got, err = restAfter("one", 2)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = restAfter(`"open`, 1)
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	for in, want := range map[string]string{
		"123":             "123",
		"<@123>":          "123",
		"<@!123>":         "123",
		"<@&456>":         "456",
		"<#789>":          "789",
		"<#C123|general>": "C123",
		"<U42>":           "U42",
	} {
		assert.Equal(t, want, ParseID(in), in)
	}
}

func TestRouterHandle(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.router.Handle(context.Background(), f.message("user", "ping")))
	assert.False(t, f.router.Handle(context.Background(), f.message("user", "!nope")))
	assert.True(t, f.router.Handle(context.Background(), f.message("user", "!PING")))
	assert.Equal(t, []string{"pong"}, f.replies())

	assert.True(t, f.router.CommandExists("rt"))
	f.router.Unregister("ping")
	assert.False(t, f.router.CommandExists("ping"))
}

func TestRouterInvokeUnknown(t *testing.T) {
	f := newFixture(t)
	f.router.Unregister("ping")
	err := f.router.Invoke(context.Background(), dispatch.Invocation{GuildID: "g1", ChannelID: "c1", AuthorID: "mod", Content: "!ping"})
	assert.True(t, errors.Is(err, trigger.ErrMissingTarget))
}

func TestRequire(t *testing.T) {
	f := newFixture(t)

	f.run("user", "!retrigger text hi hi hello")
	assert.Equal(t, "You need the manage messages permission to do that.", f.lastReply())
	_, err := f.reg.Get(context.Background(), "g1", "hi")
	assert.True(t, errors.Is(err, trigger.ErrNotFound))

	f.run("admin", "!retrigger text hi hi hello")
	assert.Equal(t, "Trigger `hi` set.", f.lastReply())
}

func TestCreateText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run("mod", `!rt text hi "\bhi\b" Hello there {0}`)
	assert.Equal(t, "Trigger `hi` set.", f.lastReply())

	got, err := f.reg.Get(ctx, "g1", "hi")
	require.NoError(t, err)
	assert.Equal(t, `\bhi\b`, got.Pattern)
	assert.Equal(t, "Hello there {0}", got.Text)
	assert.Equal(t, []trigger.Kind{trigger.KindText}, got.ResponseTypes)
	assert.Equal(t, "mod", got.AuthorID)

	f.run("mod", "!rt dm hi x y")
	assert.Equal(t, "hi is already a trigger name", f.lastReply())

	f.run("mod", "!rt text bad ( x")
	assert.Contains(t, f.lastReply(), "is not a valid regex pattern")

	f.run("mod", "!rt text short x")
	assert.Contains(t, f.lastReply(), "Usage:")
}

func TestCreateRandomCollects(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.run("mod", "!rt random greet hello")
	}()

	for _, content := range []string{"one", "two", "exit"} {
		m := &trigger.Message{ID: "r-" + content, GuildID: "g1", ChannelID: "c1", AuthorID: "mod", Content: content}
		assert.Eventually(t, func() bool { return f.waiter.DeliverMessage(m) }, time.Second, time.Millisecond)
	}
	<-done

	got, err := f.reg.Get(context.Background(), "g1", "greet")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got.Payload)
	assert.Equal(t, "Trigger `greet` set.", f.lastReply())
}

func TestCreateImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.message("mod", "!rt image cat cat")
	m.Attachments = []trigger.Attachment{{Filename: "cat.png", URL: "https://cdn/cat.png"}}
	f.router.Handle(ctx, m)

	got, err := f.reg.Get(ctx, "g1", "cat")
	require.NoError(t, err)
	assert.Equal(t, []string{"file1.png"}, got.Payload)
	assert.Equal(t, []string{"https://cdn/cat.png"}, f.files.urls)

	f.run("mod", "!rt imagetext dog dog woof https://cdn/dog.png")
	got, err = f.reg.Get(ctx, "g1", "dog")
	require.NoError(t, err)
	assert.Equal(t, "woof", got.Text)
	assert.Equal(t, []string{"file2.png"}, got.Payload)

	f.files.fail = true
	f.run("mod", "!rt resize big big https://cdn/big.png")
	assert.Equal(t, "I couldn't download that image.", f.lastReply())
	_, err = f.reg.Get(ctx, "g1", "big")
	assert.True(t, errors.Is(err, trigger.ErrNotFound))
}

func TestCreateImageWaitsForUpload(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.run("mod", "!rt image cat cat")
	}()

	up := &trigger.Message{ID: "up", GuildID: "g1", ChannelID: "c1", AuthorID: "mod",
		Attachments: []trigger.Attachment{{Filename: "cat.png", URL: "https://cdn/cat.png"}}}
	assert.Eventually(t, func() bool { return f.waiter.DeliverMessage(up) }, time.Second, time.Millisecond)
	<-done

	_, err := f.reg.Get(context.Background(), "g1", "cat")
	assert.NoError(t, err)
}

func TestCreateMockWithoutConfirmation(t *testing.T) {
	f := newFixture(t)

	f.run("admin", "!rt mock m hello ping")
	assert.Equal(t, "Not creating trigger.", f.lastReply())
	_, err := f.reg.Get(context.Background(), "g1", "m")
	assert.True(t, errors.Is(err, trigger.ErrNotFound))

	var reacts []string
	for _, c := range f.host.Calls() {
		if c.Method == "React" {
			reacts = append(reacts, c.Arg)
		}
	}
	assert.Equal(t, []string{emojiYes, emojiNo}, reacts)
}

func TestCreateMockConfirmed(t *testing.T) {
	f := newFixture(t)
	f.waiter = NewWaiter()
	log, _ := test.NewNullLogger()
	f.router = NewRouter("!", f.host, log)
	f.router.Register(&Command{Name: "ping", Handler: HandlerFunc(func(context.Context, *Request, Responder) {})})
	NewReTrigger(f.reg, f.host, f.router, f.files, nil, f.waiter, Config{ConfirmTimeout: time.Second}, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.run("admin", "!rt mock m hello !ping now")
	}()
	assert.Eventually(t, func() bool {
		return f.waiter.DeliverReaction(Reaction{GuildID: "g1", ChannelID: "c1", MessageID: "ask-1", UserID: "admin", Emoji: emojiYes})
	}, time.Second, time.Millisecond)
	<-done

	got, err := f.reg.Get(context.Background(), "g1", "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"ping now"}, got.Payload)
	assert.Equal(t, []trigger.Kind{trigger.KindMock}, got.ResponseTypes)
}

func TestCreateCommandMustExist(t *testing.T) {
	f := newFixture(t)
	f.run("mod", "!rt command c hello nope")
	assert.Equal(t, "nope doesn't seem to be an available command.", f.lastReply())

	f.run("mod", "!rt mock c hello ping")
	assert.Equal(t, "You need the administrator permission to do that.", f.lastReply())
}

func TestCreateFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run("mod", `!rt filter bad true "\.exe$"`)
	got, err := f.reg.Get(ctx, "g1", "bad")
	require.NoError(t, err)
	assert.True(t, got.CheckFilenames)
	assert.Equal(t, `\.exe$`, got.Pattern)

	f.run("mod", "!rt filter words some bad words")
	got, err = f.reg.Get(ctx, "g1", "words")
	require.NoError(t, err)
	assert.False(t, got.CheckFilenames)
	assert.Equal(t, "some bad words", got.Pattern)
}

func TestCreateRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run("mod", "!rt addrole r hi <@&high>")
	assert.Equal(t, "I can't assign roles higher than my own", f.lastReply())

	f.run("mod", "!rt addrole r hi <@&low> 77")
	got, err := f.reg.Get(ctx, "g1", "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "77"}, got.Payload)
}

func TestCreateMulti(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run("admin", `!rt multi m hi "text;hello" "react;👍" "add_role;<@&5>"`)
	got, err := f.reg.Get(ctx, "g1", "m")
	require.NoError(t, err)
	require.Len(t, got.Multi, 3)
	assert.Equal(t, []string{"5"}, got.Multi[2].Payload)

	f.run("admin", `!rt multi n hi "bogus;x" "text;y"`)
	assert.Contains(t, f.lastReply(), "is not a valid response")
}

func TestCreateMultiMockNeedsConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("no answer", func(t *testing.T) {
		f := newFixture(t)
		f.run("admin", `!rt multi mm hello "text;hi" "mock;!ping"`)
		assert.Equal(t, "Not creating trigger.", f.lastReply())
		_, err := f.reg.Get(ctx, "g1", "mm")
		assert.True(t, errors.Is(err, trigger.ErrNotFound))
	})

	t.Run("confirmed", func(t *testing.T) {
		f := newFixture(t)
		f.waiter = NewWaiter()
		log, _ := test.NewNullLogger()
		f.router = NewRouter("!", f.host, log)
		f.router.Register(&Command{Name: "ping", Handler: HandlerFunc(func(context.Context, *Request, Responder) {})})
		NewReTrigger(f.reg, f.host, f.router, f.files, nil, f.waiter, Config{ConfirmTimeout: time.Second}, log)

		done := make(chan struct{})
		go func() {
			defer close(done)
			f.run("admin", `!rt multi mm hello "text;hi" "mock;!ping now"`)
		}()
		assert.Eventually(t, func() bool {
			return f.waiter.DeliverReaction(Reaction{GuildID: "g1", ChannelID: "c1", MessageID: "ask-1", UserID: "admin", Emoji: emojiYes})
		}, time.Second, time.Millisecond)
		<-done

		got, err := f.reg.Get(ctx, "g1", "mm")
		require.NoError(t, err)
		require.Len(t, got.Multi, 2)
		assert.Equal(t, trigger.KindMock, got.Multi[1].Kind)
		assert.Equal(t, []string{"ping now"}, got.Multi[1].Payload)
	})

	t.Run("unknown command", func(t *testing.T) {
		f := newFixture(t)
		f.run("admin", `!rt multi mc hello "command;!doesnotexist"`)
		assert.Equal(t, "doesnotexist doesn't seem to be an available command.", f.lastReply())
		_, err := f.reg.Get(ctx, "g1", "mc")
		assert.True(t, errors.Is(err, trigger.ErrNotFound))

		f.run("admin", `!rt multi mc hello "command;!ping"`)
		got, err := f.reg.Get(ctx, "g1", "mc")
		require.NoError(t, err)
		assert.Equal(t, []string{"ping"}, got.Multi[0].Payload)
		for _, c := range f.host.Calls() {
			assert.NotEqual(t, "React", c.Method, "plain commands need no confirmation")
		}
	})
}

func TestCreateMultiRejectsImages(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{"image;cat.png", "randimage;a.png", "resize;big.png"} {
		f.run("admin", `!rt multi mi hello "text;hi" "`+raw+`"`)
		assert.Contains(t, f.lastReply(), "can't be part of a multi trigger", raw)
		_, err := f.reg.Get(context.Background(), "g1", "mi")
		assert.True(t, errors.Is(err, trigger.ErrNotFound), raw)
	}
}

func TestListAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run("user", "!rt list")
	assert.Equal(t, "There are no triggers setup on this server.", f.lastReply())

	f.run("mod", "!rt text a a one")
	f.run("mod", "!rt react b b 👍")
	f.host.Reset()

	f.run("user", "!rt list")
	page := f.lastReply()
	assert.True(t, strings.Index(page, "`a`") < strings.Index(page, "`b`"))

	f.run("user", "!rt list b")
	assert.Contains(t, f.lastReply(), "**Emojis:** 👍")

	f.run("mod", "!rt remove a")
	assert.Equal(t, "Trigger `a` removed.", f.lastReply())
	f.run("mod", "!rt del a")
	assert.Equal(t, "Trigger `a` doesn't exist.", f.lastReply())

	list, err := f.reg.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)
}

func TestCooldownAndLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run("mod", "!rt text a a one")

	f.run("mod", "!rt cooldown a 30 channel")
	assert.Equal(t, "Cooldown of 30s per channel set for Trigger `a`.", f.lastReply())
	got, err := f.reg.Get(ctx, "g1", "a")
	require.NoError(t, err)
	require.NotNil(t, got.Cooldown)
	assert.Equal(t, 30*time.Second, got.Cooldown.Duration)
	assert.Equal(t, trigger.ScopeChannel, got.Cooldown.Scope)

	f.run("mod", "!rt cooldown a 0")
	assert.Equal(t, "Cooldown for Trigger `a` reset.", f.lastReply())
	got, _ = f.reg.Get(ctx, "g1", "a")
	assert.Nil(t, got.Cooldown)

	f.run("mod", "!rt cooldown a 5 weekly")
	assert.Contains(t, f.lastReply(), "Style must be")

	f.run("mod", "!rt whitelist add a <#c1> <@u2>")
	assert.Equal(t, "2 added to the whitelist of Trigger `a`.", f.lastReply())
	f.run("mod", "!rt blacklist add a <@u3>")
	f.run("mod", "!rt whitelist remove a c1")
	got, _ = f.reg.Get(ctx, "g1", "a")
	assert.Equal(t, []string{"u2"}, got.Whitelist)
	assert.Equal(t, []string{"u3"}, got.Blacklist)

	f.run("mod", "!rt whitelist add missing c1")
	assert.Equal(t, "Trigger `missing` doesn't exist.", f.lastReply())

	f.run("mod", "!rt ignoreedits a")
	got, _ = f.reg.Get(ctx, "g1", "a")
	assert.True(t, got.IgnoreEdits)
}

func TestSettingsCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run("mod", "!rt allowmultiple")
	f.run("mod", "!rt modlog bans")
	assert.Equal(t, "Custom ban events will now appear in the modlog if it's setup.", f.lastReply())
	f.run("mod", "!rt modlog rolerem")
	f.run("mod", "!rt modlog channel <#c9>")
	assert.Equal(t, "ReTrigger's modlog channel set to <#c9>.", f.lastReply())

	st, err := f.reg.Settings(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, st.AllowMultiple)
	assert.True(t, st.Modlog.Ban)
	assert.True(t, st.Modlog.RemoveRole)
	assert.False(t, st.Modlog.Kick)
	assert.Equal(t, "c9", st.ModlogChannel)

	f.run("mod", "!rt modlog channel none")
	st, _ = f.reg.Settings(ctx, "g1")
	assert.Equal(t, "", st.ModlogChannel)

	f.run("mod", "!rt modlog settings")
	assert.Contains(t, f.lastReply(), "**Channel:** None")
}

func TestWaiterTimeout(t *testing.T) {
	w := NewWaiter()
	_, err := w.WaitMessage(context.Background(), 10*time.Millisecond, func(*trigger.Message) bool { return true })
	assert.Equal(t, ErrWaitTimeout, err)
	assert.False(t, w.DeliverMessage(&trigger.Message{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.WaitReaction(ctx, time.Second, func(Reaction) bool { return true })
	assert.Equal(t, context.Canceled, err)
}
