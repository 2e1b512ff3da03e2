package background

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksync/internal/logging"
)

func TestManager_RegisterIsIdempotent(t *testing.T) {
	m := New(logging.Discard())
	assert.True(t, m.Register("sync-tasks"))
	assert.False(t, m.Register("sync-tasks"))
	assert.Equal(t, []string{"sync-tasks"}, m.Tags())
	assert.True(t, m.Registered("sync-tasks"))
}

func TestManager_FireClearsOnSuccess(t *testing.T) {
	m := New(logging.Discard())
	var runs atomic.Int32
	m.Handle("sync-tasks", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	m.Register("sync-tasks")

	require.NoError(t, m.Fire(context.Background(), "sync-tasks"))
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, m.Registered("sync-tasks"))
}

func TestManager_FireKeepsOnFailure(t *testing.T) {
	m := New(logging.Discard())
	boom := errors.New("boom")
	m.Handle("sync-tasks", func(context.Context) error { return boom })
	m.Register("sync-tasks")

	assert.ErrorIs(t, m.Fire(context.Background(), "sync-tasks"), boom)
	assert.True(t, m.Registered("sync-tasks"))
}

func TestManager_RegisterDuringRunSurvives(t *testing.T) {
	m := New(logging.Discard())
	m.Handle("sync-tasks", func(context.Context) error {
		m.Register("sync-tasks")
		return nil
	})
	m.Register("sync-tasks")

	require.NoError(t, m.Fire(context.Background(), "sync-tasks"))
	assert.True(t, m.Registered("sync-tasks"))
}

func TestManager_FireWithoutHandler(t *testing.T) {
	m := New(logging.Discard())
	assert.ErrorIs(t, m.Fire(context.Background(), "nope"), ErrNoHandler)
}

func TestManager_FireAll(t *testing.T) {
	m := New(logging.Discard())
	var ran []string
	var mu sync.Mutex
	for _, tag := range []string{"a", "b", "c"} {
		m.Handle(tag, func(context.Context) error {
			mu.Lock()
			ran = append(ran, tag)
			mu.Unlock()
			return nil
		})
	}
	m.Register("a")
	m.Register("c")

	require.NoError(t, m.FireAll(context.Background()))
	assert.Equal(t, []string{"a", "c"}, ran)
	assert.Empty(t, m.Tags())
}

func TestManager_FireNeverOverlaps(t *testing.T) {
	m := New(logging.Discard())
	var active, maxActive atomic.Int32
	m.Handle("sync-tasks", func(context.Context) error {
		n := active.Add(1)
		for {
			cur := maxActive.Load()
			if n <= cur || maxActive.CompareAndSwap(cur, n) {
				break
			}
		}
		active.Add(-1)
		return nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Fire(context.Background(), "sync-tasks")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestManager_RunWithExplicitHandler(t *testing.T) {
	m := New(logging.Discard())
	m.Register("sync-tasks")

	var got int
	err := m.Run(context.Background(), "sync-tasks", func(context.Context) error {
		got = 42
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.False(t, m.Registered("sync-tasks"))
}

func TestManager_WakeOnNewRegistration(t *testing.T) {
	m := New(logging.Discard())
	boom := errors.New("boom")
	m.Handle("sync-tasks", func(context.Context) error { return boom })

	m.Register("sync-tasks")
	m.Register("sync-tasks")
	select {
	case <-m.Wake():
	default:
		t.Fatal("no wake after registration")
	}
	select {
	case <-m.Wake():
		t.Fatal("duplicate registration woke twice")
	default:
	}

	// A failed run keeps the tag pending without waking again.
	require.Error(t, m.Fire(context.Background(), "sync-tasks"))
	assert.True(t, m.Registered("sync-tasks"))
	select {
	case <-m.Wake():
		t.Fatal("failed run woke")
	default:
	}
}
