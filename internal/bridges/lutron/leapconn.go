package lutron

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// maxRecordSize bounds a buffered partial LEAP record.
const maxRecordSize = 1 << 20

// jsonFramer splits a byte stream into complete JSON records.
type jsonFramer struct {
	buf []byte
}

// Feed appends p and returns every record now complete, in order.
// Incomplete input is kept for the next call. Any other decode failure
// drops the buffer and returns ErrProtocol along with the records that
// preceded it.
func (f *jsonFramer) Feed(p []byte) ([][]byte, error) {
	f.buf = append(f.buf, p...)

	var records [][]byte
	for {
		rest := bytes.TrimLeft(f.buf, " \t\r\n")
		if len(rest) == 0 {
			f.buf = f.buf[:0]
			return records, nil
		}

		dec := json.NewDecoder(bytes.NewReader(rest))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				if len(rest) > maxRecordSize {
					f.buf = nil
					return records, fmt.Errorf("%w: record exceeds %d bytes", ErrProtocol, maxRecordSize)
				}
				f.buf = append(f.buf[:0], rest...)
				return records, nil
			}
			f.buf = nil
			return records, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		records = append(records, raw)
		f.buf = rest[dec.InputOffset():]
	}
}

// Buffered returns the number of bytes held for an incomplete record.
func (f *jsonFramer) Buffered() int { return len(f.buf) }

// LEAPConn is a TLS connection carrying LEAP JSON records.
//
// Thread Safety: Send and Close are safe for concurrent use. Events are
// delivered from a single read goroutine.
type LEAPConn struct {
	conn   *tls.Conn
	events LEAPEvents
	logger Logger

	writeMu sync.Mutex
	done    *closeOnce

	resumed   bool
	recordsRx atomic.Uint64
	bytesTx   atomic.Uint64
}

// DialLEAP opens a TLS connection to the bridge's LEAP port using the
// bundle's client certificate. When cfg.SessionCache holds a ticket for the
// bridge the handshake resumes it.
//
// Returns ErrNoCredentials when the bundle is missing or unusable.
func DialLEAP(ctx context.Context, cfg LEAPDialConfig, events LEAPEvents) (*LEAPConn, error) {
	if cfg.Bundle == nil || !cfg.Bundle.HasTLS() {
		return nil, ErrNoCredentials
	}
	tlsCfg, err := cfg.Bundle.tlsConfig(cfg.SessionCache)
	if err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultLEAPPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultDialTimeout
	}
	tlsCfg.ServerName = cfg.Host

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 2 * time.Second},
		Config:    tlsCfg,
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	nc, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, err
	}
	tc, ok := nc.(*tls.Conn)
	if !ok {
		nc.Close()
		return nil, fmt.Errorf("%w: not a TLS connection", ErrProtocol)
	}

	c := &LEAPConn{
		conn:    tc,
		events:  events,
		logger:  cfg.Logger,
		done:    newCloseOnce(),
		resumed: tc.ConnectionState().DidResume,
	}
	go c.receiveLoop()
	return c, nil
}

// Resumed reports whether the handshake resumed a prior session.
func (c *LEAPConn) Resumed() bool { return c.resumed }

// RecordsReceived returns the number of records delivered so far.
func (c *LEAPConn) RecordsReceived() uint64 { return c.recordsRx.Load() }

func (c *LEAPConn) receiveLoop() {
	var framer jsonFramer
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			records, ferr := framer.Feed(buf[:n])
			for _, rec := range records {
				c.recordsRx.Add(1)
				if c.events.Record != nil {
					c.events.Record(rec)
				}
			}
			if ferr != nil && c.events.ProtocolError != nil {
				c.events.ProtocolError(ferr)
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

// Send writes one LEAP record.
func (c *LEAPConn) Send(payload []byte) error {
	if c.done.closed() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	n, err := c.conn.Write(payload)
	c.bytesTx.Add(uint64(n))
	return err
}

// Close shuts the connection down without reporting Closed. It does not
// wait for the reader, which may still be delivering a record.
func (c *LEAPConn) Close() error {
	c.done.Close()
	return c.conn.Close()
}
