package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/mqtt"
)

func newTestSink(pub Publisher, rec Recorder, bc Broadcaster) *Sink {
	return NewSink(SinkConfig{
		Publisher:   pub,
		Topics:      mqtt.NewTopics("lutron"),
		Recorder:    rec,
		Broadcaster: bc,
		Logger:      testLogger(),
	})
}

func TestSink_ZoneStatus(t *testing.T) {
	pub := newMockPublisher()
	rec := &mockRecorder{}
	bc := &mockBroadcaster{}
	s := newTestSink(pub, rec, bc)
	s.Start()

	s.SendEvent(lutron.ZoneStatusEnvelope("0A1B2C3D", 4, 75))
	s.Stop()

	events := pub.withPrefix("lutron/event/0A1B2C3D/OneZoneStatus")
	if len(events) != 1 {
		t.Fatalf("event publishes = %d, want 1", len(events))
	}
	if events[0].retained || events[0].qos != 1 {
		t.Errorf("event qos/retained = %d/%v, want 1/false", events[0].qos, events[0].retained)
	}

	states := pub.withPrefix("lutron/state/0A1B2C3D/zone/4")
	if len(states) != 1 || !states[0].retained {
		t.Fatalf("zone state publishes = %+v, want one retained", states)
	}
	var env lutron.Envelope
	if err := json.Unmarshal(states[0].payload, &env); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	status, err := env.DecodeZoneStatus()
	if err != nil || status.Level != 75 {
		t.Errorf("state payload level = %v (%v), want 75", status.Level, err)
	}

	levels, _, _ := rec.snapshot()
	if len(levels) != 1 || levels[0] != "0A1B2C3D/4=75" {
		t.Errorf("recorded levels = %v", levels)
	}
	if bc.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", bc.count())
	}
	if delivered, dropped := s.Stats(); delivered != 1 || dropped != 0 {
		t.Errorf("Stats() = %d/%d, want 1/0", delivered, dropped)
	}
}

func TestSink_ButtonActionKeepsOrder(t *testing.T) {
	pub := newMockPublisher()
	rec := &mockRecorder{}
	s := newTestSink(pub, rec, nil)
	s.Start()

	s.SendEvent(lutron.ButtonActionEnvelope("0A1B2C3D", "12345678", 5, 2, lutron.ActionPushed))
	s.SendEvent(lutron.ButtonActionEnvelope("0A1B2C3D", "12345678", 5, 2, lutron.ActionOpen))
	s.Stop()

	_, actions, _ := rec.snapshot()
	want := []string{"0A1B2C3D/12345678/2=pushed", "0A1B2C3D/12345678/2=open"}
	if len(actions) != len(want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("actions[%d] = %s, want %s", i, actions[i], want[i])
		}
	}
	if n := len(pub.withPrefix("lutron/state/")); n != 0 {
		t.Errorf("button actions produced %d state publishes", n)
	}
	if n := len(pub.withPrefix("lutron/event/0A1B2C3D/ButtonAction")); n != 2 {
		t.Errorf("button events = %d, want 2", n)
	}
}

func TestSink_PublishFailureStillRecords(t *testing.T) {
	pub := newMockPublisher()
	pub.publishErr = errors.New("broker gone")
	rec := &mockRecorder{}
	s := newTestSink(pub, rec, nil)
	s.Start()

	s.SendEvent(lutron.ZoneStatusEnvelope("0A1B2C3D", 1, 10))
	s.Stop()

	levels, _, _ := rec.snapshot()
	if len(levels) != 1 {
		t.Errorf("recorded levels = %v, want one", levels)
	}
}

func TestSink_DropsWhenQueueFull(t *testing.T) {
	s := newTestSink(nil, nil, nil)
	for range sinkQueueSize + 3 {
		s.SendEvent(lutron.ZoneStatusEnvelope("0A1B2C3D", 1, 10))
	}
	if _, dropped := s.Stats(); dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}

	s.Start()
	s.Stop()
	if delivered, _ := s.Stats(); delivered != sinkQueueSize {
		t.Errorf("delivered = %d, want %d", delivered, sinkQueueSize)
	}
}

func TestSink_AfterStop(t *testing.T) {
	s := newTestSink(nil, nil, nil)
	s.Start()
	s.Stop()
	s.Stop()

	s.SendEvent(lutron.ZoneStatusEnvelope("0A1B2C3D", 1, 10))
	if _, dropped := s.Stats(); dropped != 1 {
		t.Errorf("dropped after stop = %d, want 1", dropped)
	}
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary lutron.Summary
		want    HealthStatus
		reason  string
	}{
		{
			name:    "ready",
			summary: lutron.Summary{Initialized: true, Connected: true, State: "ready"},
			want:    HealthHealthy,
		},
		{
			name:    "starting",
			summary: lutron.Summary{State: "connecting"},
			want:    HealthStarting,
			reason:  "initializing",
		},
		{
			name:    "failed start",
			summary: lutron.Summary{State: "reconnecting", LastError: "lutron: authentication rejected"},
			want:    HealthDegraded,
			reason:  "lutron: authentication rejected",
		},
		{
			name:    "lost connection",
			summary: lutron.Summary{Initialized: true, State: "reconnecting"},
			want:    HealthDegraded,
			reason:  "bridge reconnecting",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := healthStatus(tt.summary)
			if got != tt.want || reason != tt.reason {
				t.Errorf("healthStatus() = %q, %q; want %q, %q", got, reason, tt.want, tt.reason)
			}
		})
	}
}

func TestHealthReporter_PublishNow(t *testing.T) {
	pub := newMockPublisher()
	rec := &mockRecorder{}
	h := NewHealthReporter(HealthReporterConfig{
		Version:   "1.2.3",
		Interval:  time.Hour,
		Publisher: pub,
		Recorder:  rec,
		StartTime: time.Now().Add(-time.Minute),
		Bridges: func() []BridgeSample {
			return []BridgeSample{
				{Summary: lutron.Summary{BridgeID: "0A1B2C3D", Initialized: true, Connected: true, State: "ready", TelnetUp: true}, Devices: 4},
				{Summary: lutron.Summary{BridgeID: "00C0FFEE", State: "connecting"}},
			}
		},
	})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msgs := pub.withPrefix("lutron/health/")
	if len(msgs) != 2 {
		t.Fatalf("health publishes = %d, want 2", len(msgs))
	}
	var first HealthMessage
	if err := json.Unmarshal(msgs[0].payload, &first); err != nil {
		t.Fatalf("health payload: %v", err)
	}
	if msgs[0].topic != "lutron/health/0A1B2C3D" || !msgs[0].retained {
		t.Errorf("health topic/retained = %s/%v", msgs[0].topic, msgs[0].retained)
	}
	if first.Status != HealthHealthy || first.Version != "1.2.3" || first.DevicesManaged != 4 || !first.TelnetConnected {
		t.Errorf("health = %+v", first)
	}
	if first.UptimeSeconds < 59 {
		t.Errorf("UptimeSeconds = %d, want about 60", first.UptimeSeconds)
	}

	_, _, states := rec.snapshot()
	if len(states) != 2 || states[0] != "0A1B2C3D ready true true 4" {
		t.Errorf("recorded states = %v", states)
	}
}

func TestHealthReporter_SkipsWhenDisconnected(t *testing.T) {
	pub := newMockPublisher()
	pub.connected = false
	h := NewHealthReporter(HealthReporterConfig{
		Publisher: pub,
		Bridges: func() []BridgeSample {
			return []BridgeSample{{Summary: lutron.Summary{BridgeID: "0A1B2C3D"}}}
		},
	})
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() error = %v, want nil", err)
	}
	if n := len(pub.withPrefix("")); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}
}
