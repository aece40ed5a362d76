package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/mqtt"
)

// mockEngine records calls and returns canned results.
type mockEngine struct {
	mu        sync.Mutex
	id        string
	summary   lutron.Summary
	initErrs  []error
	initCalls int
	calls     []string
	err       error
	devices   []lutron.Device
	status    *lutron.ZoneStatus
	stopped   bool
}

func newMockEngine(id string) *mockEngine {
	return &mockEngine{
		id:      id,
		summary: lutron.Summary{BridgeID: id, Address: "10.0.0.5", State: "ready"},
	}
}

func (m *mockEngine) record(format string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
	return m.err
}

func (m *mockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockEngine) InitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls
}

func (m *mockEngine) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *mockEngine) BridgeID() string { return m.id }

func (m *mockEngine) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalls++
	if len(m.initErrs) > 0 {
		err := m.initErrs[0]
		m.initErrs = m.initErrs[1:]
		return err
	}
	m.summary.Initialized = true
	m.summary.Connected = true
	return ctx.Err()
}

func (m *mockEngine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockEngine) Summary() lutron.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *mockEngine) UpdateAddress(address string) {
	_ = m.record("address %s", address)
	m.mu.Lock()
	m.summary.Address = address
	m.mu.Unlock()
}

func (m *mockEngine) DeviceList(_ context.Context, reset bool) (lutron.DeviceList, error) {
	err := m.record("devices %v", reset)
	m.mu.Lock()
	defer m.mu.Unlock()
	return lutron.DeviceList{Devices: m.devices}, err
}

func (m *mockEngine) SceneList(_ context.Context, reset bool) (lutron.SceneList, error) {
	err := m.record("scenes %v", reset)
	return lutron.SceneList{Scenes: []lutron.Scene{{Name: "Evening", Scene: 3}}}, err
}

func (m *mockEngine) ZoneStatus(_ context.Context, zone string, id int) (*lutron.ZoneStatus, error) {
	err := m.record("status %s %d", zone, id)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, err
}

func (m *mockEngine) SetZoneLevel(_ context.Context, zone string, id int, level float64, fade int) error {
	return m.record("setlevel %s %d %v %d", zone, id, level, fade)
}

func (m *mockEngine) ChangeZoneLevel(_ context.Context, zone string, id int, cmd string) error {
	return m.record("%s %s %d", cmd, zone, id)
}

func (m *mockEngine) Scene(_ context.Context, ref string) error {
	return m.record("scene %s", ref)
}

func (m *mockEngine) RefreshZones(context.Context) error {
	return m.record("refresh")
}

func (m *mockEngine) ButtonAction(_ context.Context, serial string, button int, action lutron.Action) error {
	return m.record("button %s %d %s", serial, button, action)
}

func (m *mockEngine) SetButtonMode(_ context.Context, serial string, modes map[int]lutron.ButtonSetting, push, repeat time.Duration) error {
	return m.record("buttonmode %s %d %v %v", serial, len(modes), push, repeat)
}

func (m *mockEngine) WriteCommunique(_ context.Context, raw string) error {
	return m.record("communique %s", raw)
}

// published is one captured MQTT publish.
type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockPublisher captures publishes and subscriptions.
type mockPublisher struct {
	mu         sync.Mutex
	messages   []published
	handlers   map[string]mqtt.MessageHandler
	connected  bool
	publishErr error
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{handlers: make(map[string]mqtt.MessageHandler), connected: true}
}

func (p *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.messages = append(p.messages, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (p *mockPublisher) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = handler
	return nil
}

func (p *mockPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// withPrefix returns the captured messages whose topic starts with prefix.
func (p *mockPublisher) withPrefix(prefix string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if strings.HasPrefix(m.topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func (p *mockPublisher) handler(topic string) mqtt.MessageHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers[topic]
}

// mockRecorder captures time-series writes.
type mockRecorder struct {
	mu      sync.Mutex
	levels  []string
	actions []string
	states  []string
}

func (r *mockRecorder) WriteZoneLevel(bridgeID string, zone int, level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, fmt.Sprintf("%s/%d=%v", bridgeID, zone, level))
}

func (r *mockRecorder) WriteButtonAction(bridgeID, serial string, button int, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, fmt.Sprintf("%s/%s/%d=%s", bridgeID, serial, button, action))
}

func (r *mockRecorder) WriteBridgeState(bridgeID, state string, connected, telnet bool, devices int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, fmt.Sprintf("%s %s %v %v %d", bridgeID, state, connected, telnet, devices))
}

func (r *mockRecorder) snapshot() (levels, actions, states []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.levels...), append([]string(nil), r.actions...), append([]string(nil), r.states...)
}

// mockBroadcaster captures streamed envelopes.
type mockBroadcaster struct {
	mu   sync.Mutex
	envs []lutron.Envelope
}

func (b *mockBroadcaster) Broadcast(env lutron.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envs = append(b.envs, env)
}

func (b *mockBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.envs)
}

var errNoCreds = errors.New("no credentials")

func nopSource() lutron.CredentialSource {
	return lutron.CredentialSourceFunc(func(context.Context, string, string) (*lutron.CredentialBundle, error) {
		return nil, errNoCreds
	})
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "debug"}, "test")
}

func testConfig(ids ...string) *config.Config {
	cfg := &config.Config{
		Gateway: config.GatewayConfig{ID: "gw", HealthInterval: 3600, InitTimeout: 5},
		MQTT:    config.MQTTConfig{TopicPrefix: "lutron"},
	}
	for _, id := range ids {
		cfg.Bridges = append(cfg.Bridges, config.BridgeConfig{
			ID:       id,
			Type:     config.BridgeTypeLutron,
			Address:  "10.0.0.5",
			LEAPPort: 8081,
			LIPPort:  23,
		})
	}
	return cfg
}

// newTestGateway builds a gateway whose engines are mocks, returned by ID.
func newTestGateway(t *testing.T, pub Publisher, rec Recorder, ids ...string) (*Gateway, map[string]*mockEngine) {
	t.Helper()
	engines := make(map[string]*mockEngine)
	opts := Options{
		Config:         testConfig(ids...),
		Credentials:    nopSource(),
		Publisher:      pub,
		Recorder:       rec,
		Logger:         testLogger(),
		Version:        "test",
		InitRetryDelay: 10 * time.Millisecond,
		NewEngine: func(o lutron.Options) (Engine, error) {
			e := newMockEngine(o.BridgeID)
			engines[o.BridgeID] = e
			return e, nil
		},
	}
	g, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(g.Stop)
	return g, engines
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
