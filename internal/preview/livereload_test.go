package preview

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/preview/events"
)

// connect opens an SSE stream and waits until the hub registered it.
func connect(t *testing.T, hub *LiveReloadHub, url string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Clients() > 0 }, time.Second, 5*time.Millisecond)
	return bufio.NewReader(resp.Body)
}

// nextData returns the payload of the next data line.
func nextData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return strings.TrimSpace(data)
		}
	}
}

func TestLiveReload_BroadcastSendsEvent(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	server := httptest.NewServer(hub)
	defer server.Close()

	r := connect(t, hub, server.URL)
	hub.Broadcast(Message{BuildID: "b1"})

	assert.JSONEq(t, `{"build":"b1"}`, nextData(t, r))
}

func TestLiveReload_LateClientSeesCurrentError(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	server := httptest.NewServer(hub)
	defer server.Close()

	hub.Broadcast(Message{BuildID: "b1", Error: "incremental build b1: failed"})

	r := connect(t, hub, server.URL)
	assert.JSONEq(t, `{"build":"b1","error":"incremental build b1: failed"}`, nextData(t, r))
}

func TestLiveReload_NotifyMessages(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	server := httptest.NewServer(hub)
	defer server.Close()
	r := connect(t, hub, server.URL)

	// Nothing changed and nothing to clear: no message. The next event
	// read must therefore be the CSS swap.
	hub.Notify(events.OutputsChanged{BuildID: "noop"})
	hub.Notify(events.OutputsChanged{BuildID: "css", Paths: []string{"css/site.css"}})
	assert.JSONEq(t, `{"build":"css","css":true}`, nextData(t, r))

	hub.Notify(events.OutputsChanged{BuildID: "bad", Failed: true, Summary: "boom", Paths: []string{"css/site.css"}})
	assert.JSONEq(t, `{"build":"bad","error":"boom"}`, nextData(t, r))

	// A no-op success after a failure clears the overlay with a reload.
	hub.Notify(events.OutputsChanged{BuildID: "fixed"})
	assert.JSONEq(t, `{"build":"fixed"}`, nextData(t, r))
}

func TestLiveReload_ShutdownEndsStreams(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	r := connect(t, hub, server.URL)

	hub.Shutdown()
	assert.Zero(t, hub.Clients())

	for {
		if _, err := r.ReadString('\n'); err != nil {
			break
		}
	}

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
