package dom

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jkallio/tourguide/pkg/api"
)

func TestLocate_SynchronousHit(t *testing.T) {
	p, err := NewMemPage(`<html><body><button id="go">Go</button></body></html>`)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, Locate(context.Background(), p, "#go", time.Second))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Zero(t, p.SubscriberCount())
}

func TestLocate_ResolvesOnMutation(t *testing.T) {
	p, err := NewMemPage(`<html><body></body></html>`)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- Locate(context.Background(), p, "#late", 2*time.Second)
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, p.SetHTML(`<html><body><div id="late"></div></body></html>`))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("locate did not resolve after mutation")
	}
	require.Zero(t, p.SubscriberCount())
}

func TestLocate_TimeoutBounds(t *testing.T) {
	p, err := NewMemPage(`<html><body></body></html>`)
	require.NoError(t, err)

	const timeout = 300 * time.Millisecond
	start := time.Now()
	err = Locate(context.Background(), p, "#never-exists", timeout)
	elapsed := time.Since(start)

	sel, ok := api.IsElementNotFound(err)
	require.True(t, ok, "expected ElementNotFoundError, got %v", err)
	require.Equal(t, "#never-exists", sel)

	// No earlier than the deadline, and not meaningfully later than one
	// extra poll interval.
	require.GreaterOrEqual(t, elapsed, timeout)
	require.Less(t, elapsed, timeout+150*time.Millisecond)

	// No leaked observers.
	require.Zero(t, p.SubscriberCount())
}

func TestLocate_ContextCancellation(t *testing.T) {
	p, err := NewMemPage(`<html><body></body></html>`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Locate(ctx, p, "#never", 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("locate did not honor cancellation")
	}
	require.Zero(t, p.SubscriberCount())
}
