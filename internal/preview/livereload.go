package preview

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/preview/events"
)

// Message is the payload of one live-reload event.
type Message struct {
	BuildID string `json:"build"`
	// CSS asks the browser to swap stylesheets instead of reloading.
	CSS bool `json:"css,omitempty"`
	// Error carries the build summary of a failed build.
	Error string `json:"error,omitempty"`
}

// LiveReloadHub manages SSE clients for build notifications.
type LiveReloadHub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*lrClient
	recorder metrics.Recorder
	closed   bool
	last     *Message
}

type lrClient struct {
	id   int
	ch   chan Message
	done chan struct{}
}

func NewLiveReloadHub(rec metrics.Recorder) *LiveReloadHub {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &LiveReloadHub{clients: map[int]*lrClient{}, recorder: rec}
}

// ServeHTTP implements the SSE endpoint.
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		ferrors.NewHTTPErrorAdapter(slog.Default()).WriteErrorResponse(w, r, ferrors.RuntimeError("live reload is shutting down").Build())
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		ferrors.NewHTTPErrorAdapter(slog.Default()).WriteErrorResponse(w, r, ferrors.InternalError("response writer cannot stream").Build())
		return
	}

	client := &lrClient{ch: make(chan Message, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.last
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(count)

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		slog.Debug("livereload write", logfields.Error(err))
		h.removeClient(client.id)
		return
	}
	// A client connecting while the last build is broken sees the error at once.
	if current != nil && current.Error != "" {
		if err := writeEvent(bw, *current); err != nil {
			h.removeClient(client.id)
			return
		}
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(30 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			}
		case msg := <-client.ch:
			if err := writeEvent(bw, msg); err != nil {
				slog.Debug("livereload broadcast write", logfields.Error(err))
				h.removeClient(client.id)
				return
			}
			_ = bw.Flush()
			flusher.Flush()
		}
	}
}

func writeEvent(bw *bufio.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = bw.WriteString("data: " + string(data) + "\n\n")
	return err
}

func (h *LiveReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetLiveReloadClients(count)
	}
}

// Clients returns the number of connected browsers.
func (h *LiveReloadHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client without blocking. Clients whose
// buffer is full are dropped; their browser reconnects.
func (h *LiveReloadHub) Broadcast(msg Message) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.last = &msg
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- msg:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	slog.Debug("livereload broadcast", slog.String("build", msg.BuildID), slog.Int("clients", len(snapshot)), slog.Int("dropped", dropped))
}

// Notify turns a build result into a broadcast. Builds that changed nothing
// are not sent unless they fail or clear a previous failure.
func (h *LiveReloadHub) Notify(evt events.OutputsChanged) {
	h.mu.RLock()
	lastFailed := h.last != nil && h.last.Error != ""
	h.mu.RUnlock()
	if len(evt.Paths) == 0 && !evt.Failed && !lastFailed {
		return
	}
	msg := Message{BuildID: evt.BuildID, CSS: evt.CSSOnly() && !lastFailed}
	if evt.Failed {
		msg.Error = evt.Summary
		msg.CSS = false
	}
	h.Broadcast(msg)
}

// Shutdown closes all clients and prevents future broadcasts.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}

// LiveReloadScript is served at ScriptPath and injected into every HTML page.
const LiveReloadScript = `(() => {
  if (window.__SITEGEN_LR__) return;
  window.__SITEGEN_LR__ = true;
  function overlay(text) {
    let el = document.getElementById('__sitegen_error');
    if (!el) {
      el = document.createElement('div');
      el.id = '__sitegen_error';
      el.style.cssText = 'position:fixed;inset:0;z-index:2147483647;background:rgba(20,0,0,.92);color:#fff;font:14px/1.5 monospace;padding:2em;white-space:pre-wrap;overflow:auto';
      document.body.appendChild(el);
    }
    el.textContent = text + '\n\nDetails: /__sitegen/status';
  }
  function swapCSS() {
    document.querySelectorAll('link[rel="stylesheet"]').forEach((l) => {
      const u = new URL(l.href, location.href);
      u.searchParams.set('__lr', Date.now());
      l.href = u.toString();
    });
  }
  function connect() {
    const es = new EventSource('/__livereload');
    es.onmessage = (e) => {
      let p;
      try { p = JSON.parse(e.data); } catch (_) { return; }
      if (p.error) { overlay(p.error); return; }
      if (p.css) { swapCSS(); return; }
      location.reload();
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
