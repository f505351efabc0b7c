package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	log, hook := test.NewNullLogger()
	var ran []string
	task := func(name string, err error) Task {
		return Task{Name: name, Run: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	m := New(time.Minute, nil, log,
		task("first", nil),
		task("broken", errors.New("store down")),
		Task{Name: "panics", Run: func(context.Context) error { panic("boom") }},
		task("last", nil),
	)
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	err := m.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: store down")
	assert.Equal(t, []string{"first", "broken", "last"}, ran)
	assert.Len(t, hook.AllEntries(), 2)

	t.Run("too soon", func(t *testing.T) {
		ran = nil
		now = now.Add(30 * time.Second)
		assert.NoError(t, m.Poll(context.Background()))
		assert.Empty(t, ran)
	})

	t.Run("after the interval", func(t *testing.T) {
		now = now.Add(time.Minute)
		m.Poll(context.Background())
		assert.Equal(t, []string{"first", "broken", "last"}, ran)
	})
}

func TestSchedule(t *testing.T) {
	log, _ := test.NewNullLogger()

	t.Run("bad schedule", func(t *testing.T) {
		m := New(0, nil, log)
		assert.Error(t, m.Schedule(context.Background(), "not a schedule"))
	})

	t.Run("runs until cancelled", func(t *testing.T) {
		var n int32
		m := New(0, nil, log, Task{Name: "count", Run: func(context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		}})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- m.Schedule(ctx, "@every 1s") }()

		assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) > 0 }, 3*time.Second, 50*time.Millisecond)
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Schedule did not return after cancel")
		}
	})
}
