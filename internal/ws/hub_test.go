package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.sessions)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
}

func TestHub_AddAndRemoveClient(t *testing.T) {
	hub := runHub(t)

	client := &Client{hub: hub, sessionID: "s1", send: make(chan []byte, 1)}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, hub.ConnectedClients("s1"))

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.ConnectedClients("s1"))
	_, open := <-client.send
	assert.False(t, open)
}

func TestHub_Publish(t *testing.T) {
	hub := runHub(t)

	client := &Client{hub: hub, sessionID: "s1", send: make(chan []byte, 10)}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	hub.Publish("s1", EventFlowCompleted, map[string]string{"reason": "match"})

	select {
	case msg := <-client.send:
		var event Event
		require.NoError(t, json.Unmarshal(msg, &event))
		assert.Equal(t, EventFlowCompleted, event.Type)
		assert.Equal(t, "s1", event.SessionID)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestHub_SessionIsolation(t *testing.T) {
	hub := runHub(t)

	follower := &Client{hub: hub, sessionID: "s1", send: make(chan []byte, 10)}
	other := &Client{hub: hub, sessionID: "s2", send: make(chan []byte, 10)}
	wall := &Client{hub: hub, sessionID: "", send: make(chan []byte, 10)}

	hub.register <- follower
	hub.register <- other
	hub.register <- wall
	time.Sleep(50 * time.Millisecond)

	hub.Publish("s1", EventCaptureStarted, nil)

	select {
	case <-follower.send:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("follower should receive the event")
	}

	select {
	case <-wall.send:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wall display should receive every event")
	}

	select {
	case <-other.send:
		t.Fatal("other session should not receive the event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := runHub(t)

	slow := &Client{hub: hub, sessionID: "", send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(50 * time.Millisecond)

	hub.Publish("", EventFlowCompleted, nil)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.ConnectedClients(""))
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	_, open := <-client.send
	assert.False(t, open)
}
