package dashboard

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

func TestBroadcastReachesConnectedClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+server.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	waitForClients(t, hub, 1)

	hub.Broadcast(map[string]string{"type": "SLA_WARNING", "ticketId": "t-1"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["ticketId"] != "t-1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestBroadcastDropsClosedClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+server.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, hub, 1)
	conn.Close(websocket.StatusNormalClosure, "leaving")

	waitForClients(t, hub, 0)

	// Broadcasting with no clients is a no-op, not a failure.
	hub.Broadcast(map[string]string{"type": "NEW_TICKET"})
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	if hub.ClientCount() != 0 {
		t.Fatalf("fresh hub has %d clients", hub.ClientCount())
	}
	hub.Broadcast(map[string]string{"type": "NEW_TICKET"})
	// Unmarshalable payloads are logged and dropped.
	hub.Broadcast(func() {})
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
}
