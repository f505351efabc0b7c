package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *Message {
	return &Message{
		ID:          "m1",
		GuildID:     "g1",
		ChannelID:   "c1",
		AuthorID:    "u1",
		AuthorRoles: []string{"r1", "r2"},
		Content:     "bob there",
	}
}

func TestAllowed(t *testing.T) {
	t.Run("empty lists allow", func(t *testing.T) {
		tr := New("hi", "hi", KindText, "a", "hello")
		assert.True(t, tr.Allowed(testMessage()))
	})

	t.Run("blacklisted channel with empty whitelist", func(t *testing.T) {
		tr := New("hi", "hi", KindText, "a", "hello")
		tr.Blacklist = []string{"c1"}
		assert.False(t, tr.Allowed(testMessage()))
	})

	t.Run("blacklisted role", func(t *testing.T) {
		tr := New("hi", "hi", KindText, "a", "hello")
		tr.Blacklist = []string{"r2"}
		assert.False(t, tr.Allowed(testMessage()))
	})

	t.Run("blacklist wins over whitelist", func(t *testing.T) {
		tr := New("hi", "hi", KindText, "a", "hello")
		tr.Whitelist = []string{"u1"}
		tr.Blacklist = []string{"c1"}
		assert.False(t, tr.Allowed(testMessage()))
	})

	t.Run("whitelist without intersection", func(t *testing.T) {
		tr := New("hi", "hi", KindText, "a", "hello")
		tr.Whitelist = []string{"c2", "u9"}
		assert.False(t, tr.Allowed(testMessage()))
	})

	t.Run("whitelisted role", func(t *testing.T) {
		tr := New("hi", "hi", KindText, "a", "hello")
		tr.Whitelist = []string{"r1"}
		assert.True(t, tr.Allowed(testMessage()))
	})
}

func TestListEditing(t *testing.T) {
	tr := New("hi", "hi", KindText, "a", "hello")
	assert.Equal(t, 2, tr.AddToList(false, "c1", "u1", "c1"))
	assert.Equal(t, []string{"c1", "u1"}, tr.Whitelist)
	assert.Equal(t, 1, tr.RemoveFromList(false, "c1", "nope"))
	assert.Equal(t, []string{"u1"}, tr.Whitelist)
	assert.Equal(t, 1, tr.AddToList(true, "r1"))
	assert.Equal(t, []string{"r1"}, tr.Blacklist)
}

func TestCooldownGuildScope(t *testing.T) {
	start := time.Unix(1000, 0)
	cd := NewCooldown(10*time.Second, ScopeGuild)
	m := testMessage()

	require.True(t, cd.Ready(m, start))
	cd.Commit(m, start)

	assert.False(t, cd.Ready(m, start.Add(5*time.Second)))
	other := testMessage()
	other.ChannelID = "c2"
	assert.False(t, cd.Ready(other, start.Add(5*time.Second)), "guild scope is shared by every channel")
	assert.True(t, cd.Ready(m, start.Add(11*time.Second)))
}

func TestCooldownPerScope(t *testing.T) {
	start := time.Unix(1000, 0)
	for _, scope := range []Scope{ScopeChannel, ScopeAuthor} {
		t.Run(string(scope), func(t *testing.T) {
			cd := NewCooldown(10*time.Second, scope)
			m := testMessage()
			cd.Commit(m, start)

			other := testMessage()
			other.ChannelID = "c2"
			other.AuthorID = "u2"
			assert.False(t, cd.Ready(m, start.Add(time.Second)))
			assert.True(t, cd.Ready(other, start.Add(time.Second)))

			assert.Equal(t, 1, cd.Prune(start.Add(time.Minute)))
			assert.Empty(t, cd.LastByScope)
		})
	}
}

func TestCooldownCheckDoesNotCommit(t *testing.T) {
	cd := NewCooldown(time.Minute, ScopeGuild)
	now := time.Now()
	m := testMessage()
	assert.True(t, cd.Ready(m, now))
	assert.True(t, cd.Ready(m, now), "checking alone must not start the cooldown")
}

func TestNoCooldown(t *testing.T) {
	assert.Nil(t, NewCooldown(0, ScopeGuild))
	var cd *Cooldown
	assert.True(t, cd.Ready(testMessage(), time.Now()))
	cd.Commit(testMessage(), time.Now())
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{
		"guild": ScopeGuild, "server": ScopeGuild, "channel": ScopeChannel,
		"user": ScopeAuthor, "member": ScopeAuthor,
	} {
		got, err := ParseScope(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseScope("planet")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	groups := []string{"bob there", "bob"}

	t.Run("substitutes group", func(t *testing.T) {
		assert.Equal(t, "Hello bob", Format("Hello {1}", groups))
	})
	t.Run("whole match", func(t *testing.T) {
		assert.Equal(t, "<bob there>", Format("<{0}>", groups))
	})
	t.Run("out of range stays literal", func(t *testing.T) {
		assert.Equal(t, "{9}", Format("{9}", groups))
	})
	t.Run("no groups", func(t *testing.T) {
		assert.Equal(t, "I'm already {2}", Format("I'm already {2}", nil))
	})
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("dm;You said a bad word!")
	require.NoError(t, err)
	assert.Equal(t, Action{Kind: KindDM, Text: "You said a bad word!"}, a)

	a, err = ParseAction("filter")
	require.NoError(t, err)
	assert.Equal(t, KindDelete, a.Kind)

	a, err = ParseAction("add_role;123;456")
	require.NoError(t, err)
	assert.Equal(t, []string{"123", "456"}, a.Payload)

	_, err = ParseAction("add_role")
	assert.Error(t, err)

	_, err = ParseAction("explode;now")
	assert.Error(t, err)
}

func TestValidateAndClone(t *testing.T) {
	tr := NewMulti("multi", `\btest\b`, "a", []Action{
		{Kind: KindDM, Text: "no"},
		{Kind: KindDelete},
	})
	require.NoError(t, tr.Validate())
	assert.Equal(t, []Kind{KindDM, KindDelete}, tr.ResponseTypes)
	assert.Len(t, tr.Actions(), 2)

	tr.Cooldown = NewCooldown(time.Second, ScopeAuthor)
	tr.Cooldown.Commit(testMessage(), time.Now())
	c := tr.Clone()
	c.Multi[0].Text = "changed"
	c.Cooldown.LastByScope["u1"] = time.Time{}
	assert.Equal(t, "no", tr.Multi[0].Text)
	assert.False(t, tr.Cooldown.LastByScope["u1"].IsZero())

	bad := New("two words", "x", KindText, "a", "t")
	assert.Error(t, bad.Validate())
	empty := New("empty", "", KindText, "a", "t")
	assert.ErrorIs(t, empty.Validate(), ErrInvalidPattern)
}

func TestSettingsLogs(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.Logs(KindBan))
	s.Modlog.Ban = true
	assert.True(t, s.Logs(KindBan))
	s.ModlogChannel = ""
	assert.False(t, s.Logs(KindBan))
}
