package lutron

import (
	"context"
	"crypto/tls"
	"sync"
	"time"
)

// Default bridge ports and transport timeouts.
const (
	DefaultLEAPPort = 8081
	DefaultLIPPort  = 23

	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	readBufferSize      = 4096
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

func (c *closeOnce) closed() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Transport is an open bridge connection.
type Transport interface {
	// Send writes a raw payload.
	Send(payload []byte) error
	// Close tears the connection down. OnClose is not called for it.
	Close() error
}

// LEAPDialConfig configures one TLS dial.
type LEAPDialConfig struct {
	Host         string
	Port         int
	Bundle       *CredentialBundle
	SessionCache tls.ClientSessionCache
	Timeout      time.Duration
	Logger       Logger
}

// LEAPEvents receives inbound traffic from a LEAP connection. Callbacks run
// on the connection's read goroutine, one at a time, in arrival order.
type LEAPEvents struct {
	// Record is called with each complete JSON record.
	Record func(raw []byte)
	// ProtocolError is called when bytes cannot be framed; the buffer is
	// dropped and the connection kept.
	ProtocolError func(err error)
	// Closed is called once when the peer or the network ends the connection.
	Closed func(err error)
}

// LIPDialConfig configures one Telnet dial.
type LIPDialConfig struct {
	Host     string
	Port     int
	Login    string
	Password string
	Timeout  time.Duration
	Logger   Logger
}

// LIPEvents receives inbound traffic from a LIP connection.
type LIPEvents struct {
	// Session is called on the first ready prompt.
	Session func()
	// Keepalive is called on every later ready prompt.
	Keepalive func()
	// Line is called for each non-prompt line, in order.
	Line func(line string)
	// Closed is called once when the connection ends.
	Closed func(err error)
}

// Dialer opens bridge transports. The engine holds one so tests can swap the
// network out.
type Dialer interface {
	DialLEAP(ctx context.Context, cfg LEAPDialConfig, events LEAPEvents) (Transport, error)
	DialLIP(ctx context.Context, cfg LIPDialConfig, events LIPEvents) (Transport, error)
}

// NetDialer is the Dialer backed by real TLS and TCP sockets.
type NetDialer struct{}

// DialLEAP opens a LEAP connection.
func (NetDialer) DialLEAP(ctx context.Context, cfg LEAPDialConfig, events LEAPEvents) (Transport, error) {
	c, err := DialLEAP(ctx, cfg, events)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DialLIP opens a LIP connection.
func (NetDialer) DialLIP(ctx context.Context, cfg LIPDialConfig, events LIPEvents) (Transport, error) {
	c, err := DialLIP(ctx, cfg, events)
	if err != nil {
		return nil, err
	}
	return c, nil
}
