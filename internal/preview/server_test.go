package preview

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/build"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return dir
}

func idle() build.State { return build.StateWatching }

func get(t *testing.T, h http.Handler, target string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHandler_InjectsScriptIntoHTML(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html":      "<html><body><p>home</p></body></html>",
		"blog/index.html": "<html><body>blog</body></html>",
		"css/site.css":    "body{}",
		"fragment.html":   "<p>no body tag</p>",
	})
	h := NewHandler(dir, NewLiveReloadHub(nil), &Status{}, idle, nil)

	resp, body := get(t, h, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html><body><p>home</p>"+scriptTag+"</body></html>", body)
	assert.Equal(t, strconv.Itoa(len(body)), resp.Header.Get("Content-Length"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	_, body = get(t, h, "/blog/")
	assert.Contains(t, body, scriptTag)

	_, body = get(t, h, "/fragment.html")
	assert.Equal(t, "<p>no body tag</p>"+scriptTag, body)

	_, body = get(t, h, "/css/site.css")
	assert.Equal(t, "body{}", body)
}

func TestHandler_NotFoundFallsBackToSitePage(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html": "<html><body>home</body></html>",
		"404.html":   "<html><body>lost</body></html>",
	})
	h := NewHandler(dir, NewLiveReloadHub(nil), &Status{}, idle, nil)

	resp, body := get(t, h, "/missing/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "<html><body>lost"+scriptTag+"</body></html>", body)

	resp, _ = get(t, h, "/missing.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_NotFoundWithoutSitePage(t *testing.T) {
	h := NewHandler(t.TempDir(), NewLiveReloadHub(nil), &Status{}, idle, nil)
	resp, _ := get(t, h, "/nope/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_Script(t *testing.T) {
	h := NewHandler(t.TempDir(), NewLiveReloadHub(nil), &Status{}, idle, nil)
	resp, body := get(t, h, ScriptPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, body, LiveReloadPath)
}

func TestHandler_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "sitegen_builds_total 1\n")
	})
	h := NewHandler(t.TempDir(), NewLiveReloadHub(nil), &Status{}, idle, metrics)
	_, body := get(t, h, MetricsPath)
	assert.Contains(t, body, "sitegen_builds_total")
}

func TestStatus_ReportsFailureAndRecovery(t *testing.T) {
	status := &Status{}
	h := NewHandler(t.TempDir(), NewLiveReloadHub(nil), status, idle, nil)

	status.Update(nil, errors.New("content dir missing"))
	assert.True(t, status.Failed())

	resp, body := get(t, h, StatusPath+"?format=json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var v statusView
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.True(t, v.Failed)
	assert.False(t, v.HasGoodBuild)
	assert.Equal(t, "content dir missing", v.Error)
	assert.Equal(t, "watching", v.State)

	resp, body = get(t, h, StatusPath)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Build failed")
	assert.Contains(t, body, "content dir missing")

	status.Update(&build.Report{BuildID: "b2", Kind: build.KindFull, Outcome: build.OutcomeSuccess, End: time.Now()}, nil)
	assert.False(t, status.Failed())

	resp, body = get(t, h, StatusPath+"?format=json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	v = statusView{}
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.False(t, v.Failed)
	assert.True(t, v.HasGoodBuild)
	assert.Equal(t, "b2", v.BuildID)
	assert.Equal(t, "success", v.Outcome)
	assert.Empty(t, v.Error)
}

func TestListen_FallsBackToNextPort(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = taken.Close() }()
	port := taken.Addr().(*net.TCPAddr).Port

	ln, err := Listen("127.0.0.1", port, 5)
	if err != nil {
		t.Skipf("no free port next to %d: %v", port, err)
	}
	defer func() { _ = ln.Close() }()
	got := ln.Addr().(*net.TCPAddr).Port
	assert.Greater(t, got, port)
	assert.LessOrEqual(t, got, port+4)
}

func TestListen_GivesUpAfterAttempts(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = taken.Close() }()
	port := taken.Addr().(*net.TCPAddr).Port

	_, err = Listen("127.0.0.1", port, 1)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryRuntime, ferrors.GetCategory(err))
}
