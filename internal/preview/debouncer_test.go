package preview

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/preview/events"
)

func startDebouncer(t *testing.T, bus *events.Bus, cfg BuildDebouncerConfig) <-chan events.BuildNow {
	t.Helper()
	debouncer, err := NewBuildDebouncer(bus, cfg)
	require.NoError(t, err)

	buildNowCh, unsub := events.Subscribe[events.BuildNow](bus, 10)
	t.Cleanup(unsub)

	go func() { _ = debouncer.Run(t.Context()) }()

	select {
	case <-debouncer.Ready():
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for debouncer ready")
	}
	return buildNowCh
}

func change(t *testing.T, bus *events.Bus, p string) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), events.ChangeDetected{Paths: []string{p}, DetectedAt: time.Now()}))
}

func TestNewBuildDebouncer_Validation(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	_, err := NewBuildDebouncer(nil, BuildDebouncerConfig{QuietWindow: time.Second, MaxDelay: time.Second})
	require.Error(t, err)
	_, err = NewBuildDebouncer(bus, BuildDebouncerConfig{MaxDelay: time.Second})
	require.Error(t, err)
	_, err = NewBuildDebouncer(bus, BuildDebouncerConfig{QuietWindow: time.Second})
	require.Error(t, err)
}

func TestBuildDebouncer_BurstCoalescesToSingleBuild(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var running atomic.Bool
	buildNowCh := startDebouncer(t, bus, BuildDebouncerConfig{
		QuietWindow:       25 * time.Millisecond,
		MaxDelay:          200 * time.Millisecond,
		CheckBuildRunning: running.Load,
		PollInterval:      10 * time.Millisecond,
	})

	for _, p := range []string{"/site/content/b.md", "/site/content/a.md", "/site/content/b.md"} {
		change(t, bus, p)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case got := <-buildNowCh:
		require.Equal(t, []string{"/site/content/a.md", "/site/content/b.md"}, got.Paths)
		require.Equal(t, 3, got.RequestCount)
		require.Equal(t, "quiet", got.DebounceCause)
		require.False(t, got.FirstRequest.After(got.LastRequest))
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for BuildNow")
	}

	select {
	case <-buildNowCh:
		t.Fatal("expected only one BuildNow for burst")
	case <-time.After(75 * time.Millisecond):
	}
}

func TestBuildDebouncer_MaxDelayForcesBuild(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var running atomic.Bool
	buildNowCh := startDebouncer(t, bus, BuildDebouncerConfig{
		QuietWindow:       200 * time.Millisecond,
		MaxDelay:          60 * time.Millisecond,
		CheckBuildRunning: running.Load,
		PollInterval:      10 * time.Millisecond,
	})

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		change(t, bus, "/site/content/a.md")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case got := <-buildNowCh:
		require.Equal(t, "max_delay", got.DebounceCause)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for max-delay BuildNow")
	}
}

func TestBuildDebouncer_BuildRunningQueuesOneFollowUp(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var running atomic.Bool
	running.Store(true)
	buildNowCh := startDebouncer(t, bus, BuildDebouncerConfig{
		QuietWindow:       20 * time.Millisecond,
		MaxDelay:          50 * time.Millisecond,
		CheckBuildRunning: running.Load,
		PollInterval:      10 * time.Millisecond,
	})

	change(t, bus, "/site/content/a.md")
	change(t, bus, "/site/templates/page.html")

	select {
	case <-buildNowCh:
		t.Fatal("expected no BuildNow while build is running")
	case <-time.After(100 * time.Millisecond):
	}

	running.Store(false)

	select {
	case got := <-buildNowCh:
		require.Equal(t, "after_running", got.DebounceCause)
		require.Len(t, got.Paths, 2)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for follow-up BuildNow")
	}

	select {
	case <-buildNowCh:
		t.Fatal("expected exactly one follow-up BuildNow")
	case <-time.After(75 * time.Millisecond):
	}
}
