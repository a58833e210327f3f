package sse

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

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/logger"
)

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
		defer stop()
		_ = m.Shutdown(shutdownCtx)
		cancel()
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case evt := <-c.Events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestManager_DeliversOnlyToOwner(t *testing.T) {
	m := startManager(t)

	alice, err := m.Connect("alice")
	require.NoError(t, err)
	bob, err := m.Connect("bob")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewCategoryCreatedEvent(&domain.Category{ID: "cat-1", OwnerID: "alice", Name: "AI"}))
	m.Emit(NewHeartbeatEvent())

	first := receive(t, alice)
	assert.Equal(t, EventCategoryCreated, first.Type)
	assert.Equal(t, EventHeartbeat, receive(t, alice).Type)

	// Bob only sees the broadcast heartbeat.
	assert.Equal(t, EventHeartbeat, receive(t, bob).Type)
	select {
	case evt := <-bob.Events:
		t.Fatalf("bob received unexpected event %s", evt.Type)
	default:
	}
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	m := startManager(t)

	c, err := m.Connect("alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.ID, "sse-"))

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())

	_, open := <-c.Done
	assert.False(t, open)
}

func TestManager_TracksStreamsPerUser(t *testing.T) {
	m := startManager(t)

	a1, err := m.Connect("alice")
	require.NoError(t, err)
	a2, err := m.Connect("alice")
	require.NoError(t, err)
	_, err = m.Connect("bob")
	require.NoError(t, err)

	assert.Equal(t, 3, m.ClientCount())
	assert.Equal(t, 2, m.UserClientCount("alice"))

	m.Emit(NewSyncStartedEvent("alice", SyncStartedEventData{RunID: "r1"}))
	assert.Equal(t, EventSyncStarted, receive(t, a1).Type)
	assert.Equal(t, EventSyncStarted, receive(t, a2).Type)

	m.Disconnect(a1.ID)
	assert.Equal(t, 1, m.UserClientCount("alice"))
	m.Disconnect(a2.ID)
	assert.Equal(t, 0, m.UserClientCount("alice"))
	assert.Equal(t, 1, m.ClientCount())
}

func TestManager_ShutdownClosesStreams(t *testing.T) {
	m := NewManager(logger.Discard())

	c, err := m.Connect("alice")
	require.NoError(t, err)
	m.Emit(NewSyncStartedEvent("alice", SyncStartedEventData{RunID: "r1"}))

	// Shutdown delivers what was queued before closing the stream.
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.ClientCount())
	assert.Equal(t, EventSyncStarted, (<-c.Events).Type)

	_, open := <-c.Done
	assert.False(t, open)
	m.Disconnect(c.ID)
}

func TestManager_EmitAfterShutdownIsDropped(t *testing.T) {
	m := NewManager(logger.Discard())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.NotPanics(t, func() {
		m.Emit(NewSyncStartedEvent("alice", SyncStartedEventData{RunID: "r1"}))
	})
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestHandler_StreamsUserEvents(t *testing.T) {
	m := startManager(t)
	h := NewHandler(m, logger.Discard())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r, "alice")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	// Wait for the client to be registered before emitting.
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	m.Emit(NewSyncProgressEvent("alice", SyncProgressEventData{RunID: "r1", Page: 1, Inserted: 3}))

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: sync.progress") {
			data, err := reader.ReadString('\n')
			require.NoError(t, err)
			assert.Contains(t, data, `"run_id":"r1"`)
			assert.Contains(t, data, `"inserted":3`)
			return
		}
	}
}
