package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dimitrije/teamboard/internal/metrics"
	"github.com/dimitrije/teamboard/internal/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T, m *metrics.Metrics) *Hub {
	t.Helper()
	hub := NewHub(m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func newTestClient(teams ...uuid.UUID) *Client {
	client := NewClient(uuid.New(), "Test User")
	for _, teamID := range teams {
		client.Teams[teamID] = true
	}
	return client
}

func drainChannel(ch <-chan []byte, timeout time.Duration) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(timeout):
			return
		}
	}
}

func receiveEvent(t *testing.T, ch <-chan []byte, eventType string) Event {
	t.Helper()
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case msg := <-ch:
			var event Event
			require.NoError(t, json.Unmarshal(msg, &event))
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("did not receive %s event", eventType)
		}
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := runHub(t, nil)
	client := newTestClient()

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, exists := hub.clients[client.ID]
	hub.mu.RUnlock()
	assert.True(t, exists)

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, exists = hub.clients[client.ID]
	hub.mu.RUnlock()
	assert.False(t, exists)

	_, ok := <-client.Send
	assert.False(t, ok)
}

func TestHub_Broadcast_ToSubscribedClient(t *testing.T) {
	hub := runHub(t, nil)
	teamID := uuid.New()
	client := newTestClient(teamID)

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	task := models.Task{ID: uuid.New(), TeamID: teamID, Title: "Write report", Status: models.StatusTodo}
	hub.Broadcast(teamID, Change{Op: OpInsert, Row: task})

	event := receiveEvent(t, client.Send, EventTaskChange)
	require.NotNil(t, event.TeamID)
	assert.Equal(t, teamID, *event.TeamID)

	dataBytes, _ := json.Marshal(event.Data)
	var change Change
	require.NoError(t, json.Unmarshal(dataBytes, &change))
	assert.Equal(t, OpInsert, change.Op)
	assert.Equal(t, task.ID, change.Row.ID)
	assert.Equal(t, "Write report", change.Row.Title)
}

func TestHub_Broadcast_WireFormat(t *testing.T) {
	hub := runHub(t, nil)
	teamID := uuid.New()
	client := newTestClient(teamID)

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(teamID, Change{Op: OpDelete, Row: models.Task{ID: uuid.New(), TeamID: teamID}})

	select {
	case msg := <-client.Send:
		var raw map[string]any
		require.NoError(t, json.Unmarshal(msg, &raw))
		assert.Equal(t, "task_change", raw["type"])
		assert.Equal(t, teamID.String(), raw["team_id"])
		data := raw["data"].(map[string]any)
		assert.Equal(t, "delete", data["op"])
		assert.Contains(t, data, "row")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive message")
	}
}

func TestHub_Broadcast_NotToOtherTeams(t *testing.T) {
	hub := runHub(t, nil)
	client := newTestClient(uuid.New())

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(uuid.New(), Change{Op: OpUpdate})

	select {
	case <-client.Send:
		t.Fatal("should not have received message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Broadcast_FullBufferDropped(t *testing.T) {
	hub := runHub(t, nil)
	teamID := uuid.New()
	client := newTestClient(teamID)
	client.Send = make(chan []byte, 1)

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	client.Send <- []byte("fill")
	hub.Broadcast(teamID, Change{Op: OpUpdate})
	time.Sleep(10 * time.Millisecond)

	<-client.Send

	select {
	case <-client.Send:
		t.Fatal("should not receive dropped message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SubscribeBroadcastsPresence(t *testing.T) {
	hub := runHub(t, nil)
	teamID := uuid.New()
	watcher := newTestClient(teamID)
	joiner := NewClient(uuid.New(), "Bo")

	hub.Register(watcher)
	hub.Register(joiner)
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(joiner.ID, teamID)

	event := receiveEvent(t, watcher.Send, EventPresenceUpdate)
	dataBytes, _ := json.Marshal(event.Data)
	var presence PresenceUpdateData
	require.NoError(t, json.Unmarshal(dataBytes, &presence))
	assert.Len(t, presence.OnlineUsers, 2)

	hub.Unsubscribe(joiner.ID, teamID)
	assert.Len(t, hub.OnlineUsers(teamID), 1)
}

func TestHub_OnlineUsersDeduplicatesUsers(t *testing.T) {
	hub := runHub(t, nil)
	teamID := uuid.New()
	first := newTestClient(teamID)
	second := newTestClient(teamID)
	second.UserID = first.UserID

	hub.Register(first)
	hub.Register(second)
	time.Sleep(10 * time.Millisecond)

	assert.Len(t, hub.OnlineUsers(teamID), 1)
}

func TestHub_UnregisterBroadcastsPresence(t *testing.T) {
	hub := runHub(t, nil)
	teamID := uuid.New()
	stays := newTestClient(teamID)
	leaves := newTestClient(teamID)

	hub.Register(stays)
	hub.Register(leaves)
	time.Sleep(10 * time.Millisecond)

	hub.Unregister(leaves)

	event := receiveEvent(t, stays.Send, EventPresenceUpdate)
	dataBytes, _ := json.Marshal(event.Data)
	var presence PresenceUpdateData
	require.NoError(t, json.Unmarshal(dataBytes, &presence))
	require.Len(t, presence.OnlineUsers, 1)
	assert.Equal(t, stays.UserID, presence.OnlineUsers[0].UserID)
}

func TestHub_NonexistentClient(t *testing.T) {
	hub := runHub(t, nil)
	time.Sleep(10 * time.Millisecond)

	assert.NotPanics(t, func() {
		hub.Subscribe("nonexistent", uuid.New())
		hub.Unsubscribe("nonexistent", uuid.New())
		hub.Unregister(newTestClient())
	})
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := newTestClient()
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	cancel()
	drainChannel(client.Send, 100*time.Millisecond)

	_, ok := <-client.Send
	assert.False(t, ok)

	// After shutdown these return instead of blocking.
	hub.Register(newTestClient())
	hub.Broadcast(uuid.New(), Change{Op: OpInsert})
}

func TestHub_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hub := runHub(t, m)
	teamID := uuid.New()
	client := newTestClient(teamID)

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimeClients))

	hub.Broadcast(teamID, Change{Op: OpInsert})
	receiveEvent(t, client.Send, EventTaskChange)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangeEventsTotal.WithLabelValues("insert")))

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RealtimeClients))
}

func TestHub_SubscribeRightAfterRegister(t *testing.T) {
	hub := runHub(t, nil)
	teamID := uuid.New()
	client := NewClient(uuid.New(), "Ada")

	hub.Register(client)
	hub.Subscribe(client.ID, teamID)

	event := receiveEvent(t, client.Send, EventPresenceUpdate)
	require.NotNil(t, event.TeamID)
	assert.Equal(t, teamID, *event.TeamID)
	assert.Len(t, hub.OnlineUsers(teamID), 1)
}
