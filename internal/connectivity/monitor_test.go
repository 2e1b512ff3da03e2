package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksync/internal/logging"
)

// gate fails requests while down is set.
type gate struct{ down atomic.Bool }

func (g *gate) RoundTrip(req *http.Request) (*http.Response, error) {
	if g.down.Load() {
		return nil, errOffline
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &probes
}

func TestStatic(t *testing.T) {
	assert.True(t, Static(true).Online(context.Background()))
	assert.False(t, Static(false).Online(context.Background()))
}

func TestMonitor_AnyResponseIsOnline(t *testing.T) {
	srv, _ := newServer(t, http.StatusInternalServerError)
	m := New(srv.Client(), srv.URL, Options{}, logging.Discard())
	assert.True(t, m.Probe(context.Background()))
}

func TestMonitor_TransportFailureIsOffline(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK)
	g := &gate{}
	g.down.Store(true)
	m := New(&http.Client{Transport: g}, srv.URL, Options{}, logging.Discard())
	assert.False(t, m.Probe(context.Background()))
}

func TestMonitor_OnlineCachesResult(t *testing.T) {
	srv, probes := newServer(t, http.StatusOK)
	m := New(srv.Client(), srv.URL, Options{Interval: time.Hour}, logging.Discard())

	assert.True(t, m.Online(context.Background()))
	assert.True(t, m.Online(context.Background()))
	assert.Equal(t, int32(1), probes.Load())
}

func TestMonitor_WatchFiresOnRestore(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK)
	g := &gate{}
	g.down.Store(true)
	m := New(&http.Client{Transport: g}, srv.URL, Options{
		Interval:    10 * time.Millisecond,
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restored := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, nil, func(context.Context) {
			select {
			case restored <- struct{}{}:
			default:
			}
		})
	}()

	select {
	case <-restored:
		t.Fatal("restored fired while offline")
	case <-time.After(50 * time.Millisecond):
	}

	g.down.Store(false)
	select {
	case <-restored:
	case <-time.After(2 * time.Second):
		t.Fatal("restored not fired after connectivity returned")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestMonitor_WatchFiresAtStartWhenOnline(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK)
	m := New(srv.Client(), srv.URL, Options{Interval: time.Hour}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, nil, func(context.Context) { fired.Add(1) })
	}()

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestMonitor_WatchFiresOnWake(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK)
	m := New(srv.Client(), srv.URL, Options{Interval: time.Hour}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan struct{}, 1)
	var fired atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, wake, func(context.Context) { fired.Add(1) })
	}()
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	wake <- struct{}{}
	require.Eventually(t, func() bool { return fired.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestMonitor_WatchFiresOnEveryOnlineProbe(t *testing.T) {
	srv, probes := newServer(t, http.StatusOK)
	m := New(srv.Client(), srv.URL, Options{Interval: 10 * time.Millisecond}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, nil, func(context.Context) { fired.Add(1) })
	}()

	require.Eventually(t, func() bool { return fired.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.GreaterOrEqual(t, probes.Load(), int32(3))
}

func TestMonitor_WatchIgnoresWakeWhileOffline(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK)
	g := &gate{}
	m := New(&http.Client{Transport: g}, srv.URL, Options{
		Interval:    time.Hour,
		BaseBackoff: time.Hour,
	}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan struct{}, 1)
	var fired atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, wake, func(context.Context) { fired.Add(1) })
	}()
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The cached result is still fresh, so force a failing probe first.
	g.down.Store(true)
	require.False(t, m.Probe(context.Background()))
	wake <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	cancel()
	<-done
}
