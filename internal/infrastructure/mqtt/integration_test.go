//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"
)

// Integration tests against a live broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "lutrongw-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	cfg := testConfig()

	cfg.Broker.ClientID = "lutrongw-int-gw"
	gw, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() gateway error = %v", err)
	}
	defer gw.Close()

	cfg.Broker.ClientID = "lutrongw-int-hub"
	hub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() hub error = %v", err)
	}
	defer hub.Close()

	topics := gw.Topics()
	received := make(chan string, 1)
	var once sync.Once

	err = gw.Subscribe(topics.AllCommands(), 1, func(topic string, p []byte) error {
		once.Do(func() {
			_, op, _ := topics.ParseCommand(topic)
			received <- op + " " + string(p)
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !gw.Subscribed(topics.AllCommands()) {
		t.Error("Subscribed() = false after Subscribe()")
	}

	time.Sleep(100 * time.Millisecond)

	if err := hub.Publish(topics.Command("0A1B2C3D", "scene"), []byte(`{"scene":"Evening"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != `scene {"scene":"Evening"}` {
			t.Errorf("received %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for command")
	}
}
