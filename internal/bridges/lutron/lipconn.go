package lutron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// lipPrompt matches the ready prompt of Smart Bridge Pro (GNET>) and
// RadioRA 2 / HomeWorks QS (QNET>) processors.
var lipPrompt = regexp.MustCompile(`[GQ]NET>\s?`)

type lipItemKind int

const (
	lipItemSession lipItemKind = iota
	lipItemKeepalive
	lipItemLogin
	lipItemPassword
	lipItemLine
)

type lipItem struct {
	kind lipItemKind
	text string
}

// lipScanner turns Telnet chunks into prompts, credential requests and
// lines. Prompts may arrive alone or embedded in a burst of lines.
type lipScanner struct {
	sessionUp bool
	partial   string
}

// Feed scans one chunk. A chunk with any ready prompt yields exactly one
// session or keepalive item ahead of its lines.
func (s *lipScanner) Feed(chunk string) []lipItem {
	data := s.partial + chunk
	s.partial = ""

	var items []lipItem
	if lipPrompt.MatchString(data) {
		if s.sessionUp {
			items = append(items, lipItem{kind: lipItemKeepalive})
		} else {
			s.sessionUp = true
			items = append(items, lipItem{kind: lipItemSession})
		}
		data = lipPrompt.ReplaceAllString(data, "")
	}

	lines := strings.Split(data, "\n")
	last := len(lines) - 1
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if i == last {
			// unterminated: only credential prompts are acted on now
			if credentialPrompt(line) < 0 {
				s.partial = raw
				break
			}
		}
		if line == "" {
			continue
		}
		switch credentialPrompt(line) {
		case lipItemLogin:
			items = append(items, lipItem{kind: lipItemLogin})
		case lipItemPassword:
			items = append(items, lipItem{kind: lipItemPassword})
		default:
			items = append(items, lipItem{kind: lipItemLine, text: line})
		}
	}
	return items
}

// credentialPrompt classifies a login or password prompt, or returns -1.
func credentialPrompt(line string) lipItemKind {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "login"):
		return lipItemLogin
	case strings.Contains(lower, "password"):
		return lipItemPassword
	default:
		return -1
	}
}

// LIPConn is a Telnet connection to a bridge's integration port.
//
// Thread Safety: Send and Close are safe for concurrent use. Events are
// delivered from a single read goroutine.
type LIPConn struct {
	conn   net.Conn
	cfg    LIPDialConfig
	events LIPEvents

	writeMu sync.Mutex
	done    *closeOnce

	linesRx atomic.Uint64
}

// DialLIP opens a Telnet connection and starts reading. The session is
// usable once events.Session fires.
func DialLIP(ctx context.Context, cfg LIPDialConfig, events LIPEvents) (*LIPConn, error) {
	if cfg.Login == "" || cfg.Password == "" {
		return nil, ErrNoCredentials
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultLIPPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultDialTimeout
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 2 * time.Second}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	nc, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, err
	}

	c := &LIPConn{
		conn:   nc,
		cfg:    cfg,
		events: events,
		done:   newCloseOnce(),
	}
	go c.receiveLoop()
	return c, nil
}

func (c *LIPConn) receiveLoop() {
	var scanner lipScanner
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, item := range scanner.Feed(string(buf[:n])) {
				c.handle(item)
			}
		}
		if err != nil {
			if c.done.closed() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.done.Close()
			c.conn.Close()
			if c.events.Closed != nil {
				c.events.Closed(err)
			}
			return
		}
	}
}

func (c *LIPConn) handle(item lipItem) {
	switch item.kind {
	case lipItemSession:
		if c.events.Session != nil {
			c.events.Session()
		}
	case lipItemKeepalive:
		if c.events.Keepalive != nil {
			c.events.Keepalive()
		}
	case lipItemLogin:
		c.answer(c.cfg.Login)
	case lipItemPassword:
		c.answer(c.cfg.Password)
	case lipItemLine:
		c.linesRx.Add(1)
		if c.events.Line != nil {
			c.events.Line(item.text)
		}
	}
}

func (c *LIPConn) answer(s string) {
	if err := c.Send([]byte(s + lipEOL)); err != nil && c.cfg.Logger != nil {
		c.cfg.Logger.Warn("telnet credential reply failed", "error", err)
	}
}

// Send writes a raw LIP command.
func (c *LIPConn) Send(payload []byte) error {
	if c.done.closed() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	_, err := c.conn.Write(payload)
	return err
}

// Close logs out and closes the socket without reporting Closed.
func (c *LIPConn) Close() error {
	if !c.done.closed() {
		_ = c.Send([]byte(LIPLogout()))
	}
	c.done.Close()
	return c.conn.Close()
}
