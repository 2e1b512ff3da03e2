package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksync/internal/config"
	"tasksync/internal/logging"
	"tasksync/internal/testutil"
	"tasksync/internal/worker"
)

type toggle struct{ down atomic.Bool }

func (t *toggle) Online(context.Context) bool { return !t.down.Load() }

func (t *toggle) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.down.Load() {
		return nil, errors.New("network unreachable")
	}
	return http.DefaultTransport.RoundTrip(req)
}

type fixture struct {
	backend *testutil.FakeBackend
	net     *toggle
	proxy   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := testutil.NewFakeBackend(t)
	cfg, err := config.New(t.TempDir())
	require.NoError(t, err)
	cfg.Settings.Server.URL = b.URL()

	net := &toggle{}
	w, err := worker.New(context.Background(), cfg,
		worker.WithLogger(logging.Discard()),
		worker.WithTransport(net),
		worker.WithChecker(net))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	srv, err := New(w)
	require.NoError(t, err)
	ps := httptest.NewServer(srv.Handler())
	t.Cleanup(ps.Close)
	return &fixture{backend: b, net: net, proxy: ps}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.proxy.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestProxy_ReadsThroughAndFromCache(t *testing.T) {
	f := newFixture(t)
	f.backend.AddTask("walk dog")

	status, body := f.do(t, http.MethodGet, "/tasks/api/tasks/", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "walk dog")

	f.net.down.Store(true)
	status, body = f.do(t, http.MethodGet, "/tasks/api/tasks/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "walk dog")
}

func TestProxy_OfflineUncachedAPI(t *testing.T) {
	f := newFixture(t)
	f.net.down.Store(true)

	status, body := f.do(t, http.MethodGet, "/tasks/api/tasks/", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"error": "No cached data available."}`, body)
}

func TestProxy_CreateOnline(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/tasks/api/tasks/create/", `{"task":"buy milk"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Contains(t, body, "buy milk")
	assert.Equal(t, []string{"buy milk"}, f.backend.Names())
}

func TestProxy_CreateUsesCallerCSRFToken(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"header", func(r *http.Request) { r.Header.Set("X-CSRFToken", "callertok") }},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "csrftoken", Value: "callertok"}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req, err := http.NewRequest(http.MethodPost, f.proxy.URL+"/tasks/api/tasks/create/", strings.NewReader(`{"task":"buy milk"}`))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			tt.setup(req)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			calls := f.backend.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "callertok", calls[0].CSRFToken)
		})
	}
}

func TestProxy_CreateOfflineThenSync(t *testing.T) {
	f := newFixture(t)
	f.net.down.Store(true)

	status, body := f.do(t, http.MethodPost, "/tasks/api/tasks/create/", `{"task":"buy milk"}`)
	require.Equal(t, http.StatusAccepted, status)
	assert.Contains(t, body, "queued")
	assert.Empty(t, f.backend.Names())

	status, body = f.do(t, http.MethodGet, "/_status", "")
	require.Equal(t, http.StatusOK, status)
	var st struct {
		Online     bool             `json:"online"`
		Pending    []map[string]any `json:"pending"`
		Registered []string         `json:"registered"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.False(t, st.Online)
	assert.Len(t, st.Pending, 1)
	assert.Equal(t, []string{"sync-tasks"}, st.Registered)

	f.net.down.Store(false)
	status, body = f.do(t, http.MethodPost, "/_sync", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"synced":1,"failed":0}`, body)
	assert.Equal(t, []string{"buy milk"}, f.backend.Names())
}

func TestProxy_CreateInvalid(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/tasks/api/tasks/create/", `{"task":"  "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "invalid task: name required")

	status, _ = f.do(t, http.MethodPost, "/tasks/api/tasks/create/", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProxy_OfflinePassthroughWrite(t *testing.T) {
	f := newFixture(t)
	task := f.backend.AddTask("walk dog")
	f.net.down.Store(true)

	status, _ := f.do(t, http.MethodDelete, "/tasks/api/tasks/delete/"+task.ID+"/", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
