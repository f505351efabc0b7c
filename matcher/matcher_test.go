package matcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobridge/retrigger/trigger"
)

func testPool(t *testing.T, cfg Config) *Pool {
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	p := NewPool(cfg, log)
	t.Cleanup(p.Close)
	return p
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		valid   bool
	}{
		{"word boundary", `\btest\b`, true},
		{"inline flag", `(?i)hello`, true},
		{"lookahead", `foo(?=bar)`, true},
		{"unbalanced", `(abc`, false},
		{"empty", ``, false},
		{"blank", `   `, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pattern)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, trigger.ErrInvalidPattern)
		})
	}
}

func TestMatchGroups(t *testing.T) {
	p := testPool(t, Config{Workers: 2, Timeout: time.Second})

	m, err := p.Match(context.Background(), `(\w+) there`, "hi bob there", nil)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"bob there", "bob"}, m.Groups)
	assert.Equal(t, "bob there", m.Text())
	assert.Empty(t, m.Filename)

	m, err = p.Match(context.Background(), `(a)|(b)`, "b", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "", "b"}, m.Groups)

	m, err = p.Match(context.Background(), `nope`, "hi bob there", nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMatchCaseFlags(t *testing.T) {
	p := testPool(t, Config{Workers: 1, Timeout: time.Second})

	m, err := p.Match(context.Background(), `hello`, "HELLO", nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = p.Match(context.Background(), `(?i)hello`, "HELLO", nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestMatchFilenames(t *testing.T) {
	p := testPool(t, Config{Workers: 1, Timeout: time.Second})

	m, err := p.Match(context.Background(), `\.exe$`, "look at this", []string{"cat.png", "dir/setup.exe"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "dir/setup.exe", m.Filename)
	assert.Equal(t, ".exe", m.Text())

	m, err = p.Match(context.Background(), `look`, "look at this", []string{"look.exe"})
	require.NoError(t, err)
	assert.Empty(t, m.Filename, "body matches win over filenames")
}

func TestMatchInvalidPattern(t *testing.T) {
	p := testPool(t, Config{Workers: 1, Timeout: time.Second})
	_, err := p.Match(context.Background(), `(abc`, "abc", nil)
	assert.ErrorIs(t, err, trigger.ErrInvalidPattern)
}

func TestMatchTimeout(t *testing.T) {
	p := testPool(t, Config{Workers: 1, Timeout: 100 * time.Millisecond})

	input := strings.Repeat("a", 40) + "!"
	start := time.Now()
	_, err := p.Match(context.Background(), `(a+)+$`, input, nil)
	assert.ErrorIs(t, err, trigger.ErrEvaluationTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The pool keeps serving after a runaway pattern.
	m, err := p.Match(context.Background(), `hello`, "hello world", nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestMatchRecycling(t *testing.T) {
	p := testPool(t, Config{Workers: 1, Timeout: time.Second, MaxTasksPerWorker: 2})
	for i := 0; i < 7; i++ {
		m, err := p.Match(context.Background(), `x(\d)`, "x1", nil)
		require.NoError(t, err)
		assert.Equal(t, "1", m.Groups[1])
	}
}

func TestMatchCancelledContext(t *testing.T) {
	p := testPool(t, Config{Workers: 1, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Match(ctx, `x`, "x", nil)
	assert.Error(t, err)
}

func TestMatchClosed(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := NewPool(Config{Workers: 1, Timeout: time.Second}, log)
	p.Close()
	_, err := p.Match(context.Background(), `x`, "x", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
