package api

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/lutron-gateway/internal/auth"
	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/gateway"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/logging"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

// executed is one captured Execute call.
type executed struct {
	bridge string
	op     string
	cmd    gateway.CommandMessage
}

// mockService records Execute calls and returns canned results.
type mockService struct {
	mu        sync.Mutex
	summaries []lutron.Summary
	calls     []executed
	result    any
	err       error
}

func (m *mockService) Summaries() []lutron.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries
}

func (m *mockService) Execute(_ context.Context, bridgeID, op string, cmd gateway.CommandMessage) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, executed{bridge: bridgeID, op: op, cmd: cmd})
	return m.result, m.err
}

func (m *mockService) last(t *testing.T) executed {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		t.Fatal("Execute was not called")
	}
	return m.calls[len(m.calls)-1]
}

func (m *mockService) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "debug"}, "test")
}

func testSecurity() config.SecurityConfig {
	return config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret, Issuer: "lutrongw", AccessTokenTTL: 60}}
}

// newTestServer builds a server around svc without starting a listener.
func newTestServer(t *testing.T, svc *mockService) *Server {
	t.Helper()
	srv, err := New(Deps{
		Config:   config.APIConfig{MaxBodyBytes: 4096},
		WS:       config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: testSecurity(),
		Logger:   testLogger(),
		Gateway:  svc,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// tokenFor mints a bearer token for role.
func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.IssueToken(auth.TokenConfig{Secret: testSecret, Issuer: "lutrongw"}, "tester", role)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

// do sends one request through the router.
func do(t *testing.T, srv *Server, method, path, body string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, role))
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}
