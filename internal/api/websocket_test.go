package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lutron-gateway/internal/auth"
	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
)

func newTestClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	hub.Register(c)
	return c
}

func TestHub_BroadcastRouting(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	byType := newTestClient(hub, lutron.EventZoneStatus)
	byBridge := newTestClient(hub, BridgeChannel("0A1B2C3D"))
	other := newTestClient(hub, BridgeChannel("00C0FFEE"))
	all := newTestClient(hub, ChannelAll, lutron.EventZoneStatus)
	none := newTestClient(hub)

	hub.Broadcast(lutron.ZoneStatusEnvelope("0A1B2C3D", 3, 25))

	tests := []struct {
		name   string
		client *WSClient
		want   int
	}{
		{"message type", byType, 1},
		{"bridge channel", byBridge, 1},
		{"other bridge", other, 0},
		{"all channel once", all, 1},
		{"unsubscribed", none, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.client.send); got != tt.want {
				t.Errorf("queued = %d, want %d", got, tt.want)
			}
		})
	}

	var msg WSMessage
	if err := json.Unmarshal(<-byType.send, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != lutron.EventZoneStatus || msg.Bridge != "0A1B2C3D" {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_UnregisterThenBroadcast(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newTestClient(hub, ChannelAll)
	hub.Unregister(c)
	hub.Unregister(c)

	hub.Broadcast(lutron.ZoneStatusEnvelope("0A1B2C3D", 1, 0))
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	// A closed queue refuses further sends.
	if c.trySend([]byte("x")) {
		t.Error("trySend() on a closed client = true")
	}
}

func TestClient_SubscribeMessages(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newTestClient(hub)

	c.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["all","ButtonAction"]}}`))
	if !c.follows([]string{"ButtonAction"}) {
		t.Error("subscribe did not add ButtonAction")
	}
	c.handleMessage([]byte(`{"type":"unsubscribe","id":"2","payload":{"channels":["ButtonAction"]}}`))
	if c.follows([]string{"ButtonAction"}) {
		t.Error("unsubscribe did not remove ButtonAction")
	}
	c.handleMessage([]byte(`{"type":"ping","id":"3"}`))
	c.handleMessage([]byte(`{"type":"dance","id":"4"}`))
	c.handleMessage([]byte(`not json`))

	want := []string{WSTypeResponse, WSTypeResponse, WSTypePong, WSTypeError, WSTypeError}
	for i, typ := range want {
		var msg WSMessage
		if err := json.Unmarshal(<-c.send, &msg); err != nil {
			t.Fatalf("reply %d: %v", i, err)
		}
		if msg.Type != typ {
			t.Errorf("reply %d type = %q, want %q", i, msg.Type, typ)
		}
	}
}

func TestTicketStore(t *testing.T) {
	store := newTicketStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	ticket := store.issue("panel", auth.RoleViewer)
	entry, ok := store.redeem(ticket)
	if !ok || entry.subject != "panel" || entry.role != auth.RoleViewer {
		t.Errorf("redeem() = %+v, %v", entry, ok)
	}
	if _, ok := store.redeem(ticket); ok {
		t.Error("ticket redeemed twice")
	}

	expired := store.issue("panel", auth.RoleViewer)
	now = now.Add(2 * ticketTTL)
	if _, ok := store.redeem(expired); ok {
		t.Error("expired ticket accepted")
	}

	store.issue("panel", auth.RoleViewer)
	now = now.Add(2 * ticketTTL)
	store.clean()
	if store.size() != 0 {
		t.Errorf("size() after clean = %d, want 0", store.size())
	}
}

func TestWebSocket_TicketFlow(t *testing.T) {
	srv := newTestServer(t, &mockService{})
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	// Exchange the bearer token for a ticket.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/auth/ws-ticket", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, auth.RoleViewer))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ticket request: %v", err)
	}
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	err = json.NewDecoder(resp.Body).Decode(&ticket)
	resp.Body.Close()
	if err != nil || ticket.Ticket == "" {
		t.Fatalf("ticket response: %v %+v", err, ticket)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?ticket=" + ticket.Ticket
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := `{"type":"subscribe","id":"s1","payload":{"channels":["all"]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		t.Fatalf("write: %v", err)
	}
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil || reply.Type != WSTypeResponse {
		t.Fatalf("subscribe reply = %+v, %v", reply, err)
	}

	srv.Hub().Broadcast(lutron.ButtonActionEnvelope("0A1B2C3D", "12345678", 5, 2, lutron.ActionPushed))

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.EventType != lutron.EventButtonAction || event.Bridge != "0A1B2C3D" {
		t.Errorf("event = %+v", event)
	}

	// Tickets are single use.
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Error("second dial with the same ticket succeeded")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reused ticket status = %d, want 401", resp.StatusCode)
	}
}

func TestWebSocket_RejectsUnauthenticated(t *testing.T) {
	srv := newTestServer(t, &mockService{})
	tests := []struct {
		name string
		url  string
	}{
		{"no credentials", "/ws"},
		{"unknown ticket", "/ws?ticket=nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestWSTimings(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.WebSocketConfig
		wantPing time.Duration
		wantPong time.Duration
	}{
		{"defaults", config.WebSocketConfig{}, 30 * time.Second, 10 * time.Second},
		{"configured", config.WebSocketConfig{PingInterval: 5, PongTimeout: 2}, 5 * time.Second, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ping, pong := wsTimings(tt.cfg)
			if ping != tt.wantPing || pong != tt.wantPong {
				t.Errorf("wsTimings() = %v, %v, want %v, %v", ping, pong, tt.wantPing, tt.wantPong)
			}
		})
	}
}

func TestHub_FullQueueDrops(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newTestClient(hub, ChannelAll)
	for i := 0; i < wsSendBufferSize+10; i++ {
		hub.Broadcast(lutron.ZoneStatusEnvelope("0A1B2C3D", 1, float64(i%100)))
	}
	if got := len(c.send); got != wsSendBufferSize {
		t.Errorf("queued = %d, want %d", got, wsSendBufferSize)
	}
}
