package dispatch_test

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/dispatch/dispatchtest"
	"github.com/gobridge/retrigger/files"
	"github.com/gobridge/retrigger/matcher"
	"github.com/gobridge/retrigger/trigger"
)

type fixture struct {
	host    *dispatchtest.Host
	invoker *dispatchtest.Invoker
	files   *files.Store
	d       *dispatch.Dispatcher
	modlog  []dispatch.ModlogEntry
}

type modlogFunc func(context.Context, dispatch.ModlogEntry) error

func (f modlogFunc) Record(ctx context.Context, e dispatch.ModlogEntry) error { return f(ctx, e) }

type stampResizer struct{}

func (stampResizer) Resize(r io.Reader, name string, w, h int) (io.Reader, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(string(b) + "@" + strconv.Itoa(w) + "x" + strconv.Itoa(h)), nil
}

func newFixture(t *testing.T, opts ...dispatch.Option) *fixture {
	log, _ := test.NewNullLogger()
	f := &fixture{
		host:    dispatchtest.NewHost(),
		invoker: dispatchtest.NewInvoker("ping", "userinfo"),
		files:   files.New(afero.NewMemMapFs(), "/images", nil),
	}
	opts = append([]dispatch.Option{
		dispatch.WithRand(rand.New(rand.NewSource(1))),
		dispatch.WithInvoker(f.invoker),
		dispatch.WithModlog(modlogFunc(func(_ context.Context, e dispatch.ModlogEntry) error {
			f.modlog = append(f.modlog, e)
			return nil
		})),
	}, opts...)
	f.d = dispatch.New(f.host, f.files, log, opts...)
	return f
}

func message() *trigger.Message {
	return &trigger.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		AuthorID:  "u1",
		Content:   "I wanna be the very best",
	}
}

func match(groups ...string) *matcher.Match {
	return &matcher.Match{Groups: groups}
}

func TestText(t *testing.T) {
	f := newFixture(t)
	tr := trigger.New("tracer", `(?i)(^I wanna be )([^.]*)`, trigger.KindText, "mod", "I'm already {2}")

	res := f.d.Dispatch(context.Background(), tr, match("I wanna be the very best", "I wanna be ", "the very best"), message(), trigger.DefaultSettings())
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)

	calls := f.host.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SendText", calls[0].Method)
	assert.Equal(t, "c1", calls[0].Target)
	assert.Equal(t, "I'm already the very best", calls[0].Text)
}

func TestRandText(t *testing.T) {
	f := newFixture(t)
	tr := trigger.New("r", "x", trigger.KindRandText, "mod", "", "one", "two", "three")
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		f.d.Dispatch(context.Background(), tr, match("x"), message(), trigger.DefaultSettings())
	}
	for _, c := range f.host.Calls() {
		seen[c.Text] = true
	}
	assert.Len(t, seen, 3)
}

func TestDM(t *testing.T) {
	f := newFixture(t)
	tr := trigger.New("d", "x", trigger.KindDM, "mod", "psst {0}")
	res := f.d.Dispatch(context.Background(), tr, match("x"), message(), trigger.DefaultSettings())
	assert.NoError(t, res[0].Err)
	assert.Equal(t, dispatchtest.Call{Method: "SendDM", Target: "u1", Text: "psst x"}, f.host.Calls()[0])
}

func TestImageAndResize(t *testing.T) {
	f := newFixture(t, dispatch.WithResizer(stampResizer{}), dispatch.WithMaxDimensions(100, 40))
	name, err := f.files.Save("g1", "gopher.png", strings.NewReader("PNG"))
	require.NoError(t, err)

	img := trigger.New("img", "x", trigger.KindImage, "mod", "look {0}", name)
	res := f.d.Dispatch(context.Background(), img, match("x"), message(), trigger.DefaultSettings())
	require.NoError(t, res[0].Err)
	assert.Equal(t, dispatchtest.Call{Method: "SendFile", Target: "c1", Arg: name + ":PNG", Text: "look x"}, f.host.Calls()[0])

	f.host.Reset()
	rs := trigger.New("rs", "x+", trigger.KindResize, "mod", "", name)
	res = f.d.Dispatch(context.Background(), rs, match("xx"), message(), trigger.DefaultSettings())
	require.NoError(t, res[0].Err)
	assert.Equal(t, name+":PNG@32x32", f.host.Calls()[0].Arg)

	f.host.Reset()
	res = f.d.Dispatch(context.Background(), rs, match(strings.Repeat("x", 50)), message(), trigger.DefaultSettings())
	require.NoError(t, res[0].Err)
	assert.Equal(t, name+":PNG@100x40", f.host.Calls()[0].Arg, "bounded by the maximum dimensions")
}

func TestResizeWithoutResizerPostsImage(t *testing.T) {
	f := newFixture(t)
	name, err := f.files.Save("g1", "gopher.png", strings.NewReader("PNG"))
	require.NoError(t, err)

	rs := trigger.New("rs", "x+", trigger.KindResize, "mod", "", name)
	res := f.d.Dispatch(context.Background(), rs, match("xx"), message(), trigger.DefaultSettings())
	require.NoError(t, res[0].Err)
	assert.Equal(t, name+":PNG", f.host.Calls()[0].Arg)
}

func TestMissingImage(t *testing.T) {
	f := newFixture(t)
	img := trigger.New("img", "x", trigger.KindImage, "mod", "", "gone.png")
	res := f.d.Dispatch(context.Background(), img, match("x"), message(), trigger.DefaultSettings())
	assert.ErrorIs(t, res[0].Err, trigger.ErrMissingTarget)
}

func TestBanHierarchy(t *testing.T) {
	tests := []struct {
		name     string
		author   string
		target   int
		authorTo int
		allowed  bool
	}{
		{name: "below bot and author", author: "mod", target: 1, authorTo: 5, allowed: true},
		{name: "equal to bot", author: "owner", target: 10, allowed: false},
		{name: "above author", author: "mod", target: 6, authorTo: 5, allowed: false},
		{name: "owner author ignores own rank", author: "owner", target: 6, allowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.host.TopRoles["u1"] = tt.target
			f.host.TopRoles["mod"] = tt.authorTo

			tr := trigger.New("ban", "x", trigger.KindBan, tt.author, "")
			res := f.d.Dispatch(context.Background(), tr, match("x"), message(), trigger.DefaultSettings())
			if tt.allowed {
				assert.NoError(t, res[0].Err)
				assert.Equal(t, []string{"Ban"}, f.host.Methods())
				return
			}
			assert.ErrorIs(t, res[0].Err, trigger.ErrPermissionDenied)
			assert.Empty(t, f.host.Methods())
		})
	}
}

func TestKickOwnerRejected(t *testing.T) {
	f := newFixture(t)
	msg := message()
	msg.AuthorID = "owner"
	tr := trigger.New("kick", "x", trigger.KindKick, "owner", "")
	res := f.d.Dispatch(context.Background(), tr, match("x"), msg, trigger.DefaultSettings())
	assert.ErrorIs(t, res[0].Err, trigger.ErrPermissionDenied)
}

func TestRolesSkipUnmanageable(t *testing.T) {
	f := newFixture(t)
	f.host.Roles = map[string]int{"low": 2, "high": 15, "mid": 5}

	tr := trigger.New("roles", "x", trigger.KindAddRole, "owner", "", "low", "high", "mid")
	settings := trigger.DefaultSettings()
	settings.Modlog.AddRole = true
	res := f.d.Dispatch(context.Background(), tr, match("x"), message(), settings)

	assert.ErrorIs(t, res[0].Err, trigger.ErrPermissionDenied)
	var added []string
	for _, c := range f.host.Calls() {
		added = append(added, c.Arg)
	}
	assert.Equal(t, []string{"low", "mid"}, added)

	require.Len(t, f.modlog, 1)
	assert.Equal(t, trigger.KindAddRole, f.modlog[0].Kind)
	assert.Equal(t, "roles: low, mid", f.modlog[0].Detail)
}

func TestCheckAssignable(t *testing.T) {
	f := newFixture(t)
	f.host.Roles = map[string]int{"low": 2, "mid": 6, "high": 15}
	f.host.TopRoles["mod"] = 5
	ctx := context.Background()

	assert.NoError(t, f.d.CheckAssignable(ctx, "g1", "mod", []string{"low"}))
	assert.ErrorIs(t, f.d.CheckAssignable(ctx, "g1", "mod", []string{"low", "mid"}), trigger.ErrPermissionDenied)
	assert.ErrorIs(t, f.d.CheckAssignable(ctx, "g1", "owner", []string{"high"}), trigger.ErrPermissionDenied)
	assert.NoError(t, f.d.CheckAssignable(ctx, "g1", "owner", []string{"mid"}))
	assert.ErrorIs(t, f.d.CheckAssignable(ctx, "g1", "owner", []string{"nope"}), trigger.ErrMissingTarget)
}

func TestReactAndDelete(t *testing.T) {
	f := newFixture(t)
	react := trigger.New("r", "x", trigger.KindReact, "mod", "", "👍", "🎉")
	del := trigger.New("d", "x", trigger.KindDelete, "mod", "")

	settings := trigger.DefaultSettings()
	settings.Modlog.Filter = true
	f.d.Dispatch(context.Background(), react, match("x"), message(), settings)
	f.d.Dispatch(context.Background(), del, match("x"), message(), settings)

	assert.Equal(t, []string{"React", "React", "DeleteMessage"}, f.host.Methods())
	require.Len(t, f.modlog, 1)
	assert.Equal(t, trigger.KindDelete, f.modlog[0].Kind)
	assert.Equal(t, trigger.ModlogDefault, f.modlog[0].ChannelID)
}

func TestModlogDisabled(t *testing.T) {
	f := newFixture(t)
	del := trigger.New("d", "x", trigger.KindDelete, "mod", "")
	settings := trigger.DefaultSettings()
	settings.Modlog.Filter = true
	settings.ModlogChannel = ""
	f.d.Dispatch(context.Background(), del, match("x"), message(), settings)
	assert.Empty(t, f.modlog)
}

func TestCommandAndMock(t *testing.T) {
	var hooked []dispatch.Invocation
	f := newFixture(t, dispatch.WithInvokeHook(func(inv dispatch.Invocation) { hooked = append(hooked, inv) }))

	cmd := trigger.New("c", "x", trigger.KindCommand, "mod", "", "!ping now")
	mock := trigger.New("m", "x", trigger.KindMock, "mod", "", "userinfo")

	res := f.d.Dispatch(context.Background(), cmd, match("x"), message(), trigger.DefaultSettings())
	require.NoError(t, res[0].Err)
	res = f.d.Dispatch(context.Background(), mock, match("x"), message(), trigger.DefaultSettings())
	require.NoError(t, res[0].Err)

	inv := f.invoker.Invocations()
	require.Len(t, inv, 2)
	assert.Equal(t, "!ping now", inv[0].Content)
	assert.Equal(t, "u1", inv[0].AuthorID)
	assert.False(t, inv[0].Elevated)
	assert.Equal(t, "!userinfo", inv[1].Content)
	assert.Equal(t, "mod", inv[1].AuthorID)
	assert.True(t, inv[1].Elevated)
	assert.NotEmpty(t, inv[0].Nonce)
	assert.NotEqual(t, inv[0].Nonce, inv[1].Nonce)
	assert.Equal(t, inv, hooked)
}

func TestCommandRemoved(t *testing.T) {
	f := newFixture(t)
	cmd := trigger.New("c", "x", trigger.KindCommand, "mod", "", "vanished")
	var res []dispatch.Result
	require.NotPanics(t, func() {
		res = f.d.Dispatch(context.Background(), cmd, match("x"), message(), trigger.DefaultSettings())
	})
	assert.ErrorIs(t, res[0].Err, trigger.ErrMissingTarget)
	assert.Empty(t, f.invoker.Invocations())
}

func TestMultiIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.host.Fail["SendDM"] = errors.New("cannot send messages to this user")

	tr := trigger.NewMulti("multi", `\btest\b`, "mod", []trigger.Action{
		{Kind: trigger.KindDM, Text: "You said a bad word!"},
		{Kind: trigger.KindDelete},
		{Kind: trigger.KindReact, Payload: []string{"👀"}},
	})
	res := f.d.Dispatch(context.Background(), tr, match("test"), message(), trigger.DefaultSettings())

	require.Len(t, res, 3)
	assert.Error(t, res[0].Err)
	assert.NoError(t, res[1].Err)
	assert.NoError(t, res[2].Err)
	assert.Equal(t, []string{"SendDM", "DeleteMessage", "React"}, f.host.Methods())
}

func TestChannelModlog(t *testing.T) {
	host := dispatchtest.NewHost()
	l := dispatch.NewChannelModlog(host, func(guildID string) string { return "modlog-" + guildID })
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, dispatch.ModlogEntry{GuildID: "g1", ChannelID: trigger.ModlogDefault, Kind: trigger.KindBan, Trigger: "ban", TargetID: "u1"}))
	require.NoError(t, l.Record(ctx, dispatch.ModlogEntry{GuildID: "g1", ChannelID: "c9", Kind: trigger.KindKick, Trigger: "kick", TargetID: "u1", Detail: "bad"}))
	require.NoError(t, l.Record(ctx, dispatch.ModlogEntry{GuildID: "g1", ChannelID: "", Kind: trigger.KindKick}))

	calls := host.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "modlog-g1", calls[0].Target)
	assert.Contains(t, calls[0].Text, "Banned")
	assert.Equal(t, "c9", calls[1].Target)
	assert.Contains(t, calls[1].Text, "\nbad")
}
