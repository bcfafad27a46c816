package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"pothole-service/models"
)

func newRegisteredClient(hub *Hub, buffer int) *Client {
	client := &Client{hub: hub, send: make(chan []byte, buffer)}
	hub.Register <- client
	return client
}

func waitForClientCount(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := hub.GetStats(); n == want {
			return
		}
		if time.Now().After(deadline) {
			n, _ := hub.GetStats()
			t.Fatalf("Expected %d connected clients, got %d", want, n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastPothole(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	first := newRegisteredClient(hub, 4)
	second := newRegisteredClient(hub, 4)

	event := models.PotholeEvent{
		ID:          7,
		Latitude:    40.7128,
		Longitude:   -74.0060,
		Severity:    "high",
		Area:        0.42,
		DepthMeters: 0.26,
		Confidence:  0.91,
		Timestamp:   time.Now(),
	}
	hub.BroadcastPothole(event)

	for _, client := range []*Client{first, second} {
		select {
		case data := <-client.send:
			var msg models.BroadcastMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("Failed to unmarshal broadcast: %v", err)
			}
			if msg.Type != "new_pothole" {
				t.Errorf("Expected message type new_pothole, got %s", msg.Type)
			}

			payload, ok := msg.Data.(map[string]interface{})
			if !ok {
				t.Fatalf("Expected object payload, got %T", msg.Data)
			}
			if id, _ := payload["id"].(float64); id != 7 {
				t.Errorf("Expected pothole id 7, got %v", payload["id"])
			}
			if severity, _ := payload["severity"].(string); severity != "high" {
				t.Errorf("Expected severity high, got %v", payload["severity"])
			}

		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for broadcast")
		}
	}

	clients, lastID := hub.GetStats()
	if clients != 2 {
		t.Errorf("Expected 2 connected clients, got %d", clients)
	}
	if lastID != 7 {
		t.Errorf("Expected last broadcast id 7, got %d", lastID)
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newRegisteredClient(hub, 1)
	waitForClientCount(t, hub, 1)

	hub.Unregister <- client

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("Expected send channel to be closed after unregister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send channel was not closed after unregister")
	}

	waitForClientCount(t, hub, 0)
}

func TestSlowClientDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Unbuffered send with no reader, so the first broadcast cannot be
	// delivered and the client gets dropped.
	slow := &Client{hub: hub, send: make(chan []byte)}
	hub.Register <- slow
	waitForClientCount(t, hub, 1)

	hub.BroadcastPothole(models.PotholeEvent{ID: 1, Severity: "low", Timestamp: time.Now()})

	waitForClientCount(t, hub, 0)

	select {
	case _, ok := <-slow.send:
		if ok {
			t.Error("Expected dropped client's send channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dropped client's send channel was not closed")
	}
}
