package lutron

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// failureClass groups transport errors by how the engine recovers.
type failureClass int

const (
	failureOther failureClass = iota
	failureTransient
	failureAuth
)

func (c failureClass) String() string {
	switch c {
	case failureTransient:
		return "transient"
	case failureAuth:
		return "auth"
	default:
		return "other"
	}
}

// classifyError maps a dial, read or write error to a failure class.
func classifyError(err error) failureClass {
	if err == nil {
		return failureOther
	}
	switch {
	case errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrNetworkTransient):
		return failureTransient
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPROTO),
		errors.Is(err, ErrAuthRejected):
		return failureAuth
	}

	var alert tls.AlertError
	if errors.As(err, &alert) {
		return failureAuth
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return failureAuth
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTransient
	}
	if strings.Contains(err.Error(), "certificate") {
		return failureAuth
	}
	return failureOther
}

// Initialize connects to the bridge and runs topology discovery. It returns
// nil once discovery completes (for Pro bridges, once the Telnet session is
// up), or the error that ended the attempt. Calling it on an initialized
// engine returns nil at once; concurrent calls share one attempt.
func (e *Engine) Initialize(ctx context.Context) error {
	result := make(chan error, 1)
	err := e.call(ctx, func() {
		if e.initialized {
			result <- nil
			return
		}
		e.initWaiters = append(e.initWaiters, result)
		if len(e.initWaiters) > 1 {
			return
		}
		e.lastErr = nil
		e.authRetry = false
		e.tries = 0
		e.logInfo("initializing bridge", "bridge", e.opts.BridgeID, "type", e.cap.Type, "address", e.address)
		if e.cap.LEAP {
			e.connectLEAP(false, func(bool) { e.discoverLEAP() })
		} else {
			e.discoverStatic()
		}
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done.Done():
		return ErrClosed
	}
}

func (e *Engine) initializing() bool {
	return !e.initialized && len(e.initWaiters) > 0
}

// completeInit marks the bridge initialized and releases Initialize callers.
func (e *Engine) completeInit() {
	e.discovering = false
	e.awaitingTelnet = false
	e.initialized = true
	e.lastErr = nil
	e.setState(StateReady)
	if e.cap.LEAP {
		e.schedulePoll()
	}
	for _, w := range e.initWaiters {
		w <- nil
	}
	e.initWaiters = nil
	e.logInfo("bridge initialized", "bridge", e.opts.BridgeID, "pro", e.pro,
		"devices", len(e.dir.devices), "scenes", len(e.dir.scenes), "telnet", e.telnetUp)
}

func (e *Engine) failInit(err error) {
	for _, w := range e.initWaiters {
		w <- err
	}
	e.initWaiters = nil
}

// giveUp stops reconnecting and keeps err for the summary.
func (e *Engine) giveUp(err error) {
	e.logError("giving up on bridge", err)
	e.lastErr = err
	e.discovering = false
	e.awaitingTelnet = false
	e.corr.Reset()
	e.stopPing()
	e.disarm(slotBackoff)
	e.disarm(slotPoll)
	e.disarm(slotTelnetRetry)
	e.disarm(slotAuth)
	e.closeLEAP()
	e.closeLIP()
	e.leapGen++
	e.lipGen++
	e.leapDialing, e.lipDialing = false, false
	e.pendingLEAP = nil
	e.failInit(err)
	e.setState(StateDisconnected)
}

// connectLEAP dials the bridge over TLS. A fresh connect (resume false, or
// no session to resume) fetches credentials and starts a new session cache.
// onConnect runs on the loop once the connection is up.
func (e *Engine) connectLEAP(resume bool, onConnect func(resumed bool)) {
	resume = resume && e.haveSession && e.bundle != nil
	e.corr.Reset()
	e.pollDevices, e.pollScenes = false, false
	e.closeLEAP()
	if !resume {
		e.sessionCache = tls.NewLRUClientSessionCache(1)
		e.haveSession = false
	}
	e.leapGen++
	gen := e.leapGen
	e.leapDialing = true
	e.leapConnected = onConnect
	if e.state != StateReconnecting {
		e.setState(StateConnecting)
	}

	cfg := LEAPDialConfig{
		Host:         e.address,
		Port:         e.opts.LEAPPort,
		Bundle:       e.bundle,
		SessionCache: e.sessionCache,
		Logger:       e.getLogger(),
	}
	events := e.leapEvents(gen)
	bridgeType, bridgeID := e.cap.Type, e.opts.BridgeID
	e.logDebug("connecting to bridge", "bridge", bridgeID, "address", cfg.Host, "resume", resume)

	go func() {
		if !resume {
			bundle, err := e.creds.Credentials(e.ctx, bridgeType, bridgeID)
			if err == nil && (bundle == nil || !bundle.HasTLS()) {
				err = ErrNoCredentials
			}
			if err != nil {
				e.post(func() { e.leapDialed(gen, nil, nil, err) })
				return
			}
			cfg.Bundle = bundle
		}
		t, err := e.dialer.DialLEAP(e.ctx, cfg, events)
		e.post(func() { e.leapDialed(gen, cfg.Bundle, t, err) })
	}()
}

func (e *Engine) leapDialed(gen uint64, bundle *CredentialBundle, t Transport, err error) {
	if gen != e.leapGen {
		if t != nil {
			t.Close()
		}
		return
	}
	e.leapDialing = false
	if err != nil {
		e.pendingLEAP = nil
		if errors.Is(err, ErrNoCredentials) {
			e.haveSession = false
			e.giveUp(fmt.Errorf("connect %s: %w", e.opts.BridgeID, err))
			return
		}
		e.logError("bridge connect failed", err, "class", classifyError(err).String())
		e.leapFailure(err, true)
		return
	}

	resumed := false
	if r, ok := t.(interface{ Resumed() bool }); ok {
		resumed = r.Resumed()
	}
	e.leap = t
	e.bundle = bundle
	e.haveSession = true
	e.tries = 0
	e.authRetry = false
	e.logInfo("bridge connected", "bridge", e.opts.BridgeID, "address", e.address, "resumed", resumed)
	if !e.telnetUp {
		e.startPing()
	}
	e.publishSummary()

	pending := e.pendingLEAP
	e.pendingLEAP = nil
	for _, p := range pending {
		e.writeLEAP(p)
	}
	if cb := e.leapConnected; cb != nil {
		e.leapConnected = nil
		cb(resumed)
	}
}

func (e *Engine) leapEvents(gen uint64) LEAPEvents {
	return LEAPEvents{
		Record: func(raw []byte) {
			e.post(func() {
				if gen == e.leapGen {
					e.handleRecord(raw)
				}
			})
		},
		ProtocolError: func(err error) {
			e.post(func() {
				if gen == e.leapGen {
					e.logWarn("unframeable data from bridge dropped", "bridge", e.opts.BridgeID, "error", err)
					e.forgetOutstanding()
				}
			})
		},
		Closed: func(err error) {
			e.post(func() {
				if gen == e.leapGen {
					e.leapClosed(err)
				}
			})
		},
	}
}

func (e *Engine) leapClosed(err error) {
	e.leap = nil
	e.publishSummary()
	if err == nil {
		// the next write resumes the session
		e.logWarn("bridge closed the connection", "bridge", e.opts.BridgeID)
		return
	}
	e.logError("bridge connection lost", err, "class", classifyError(err).String())
	e.leapFailure(err, false)
}

// leapFailure recovers from a TLS error. dialing is set when no connection
// was established; unclassified dial errors then back off like transient ones.
func (e *Engine) leapFailure(err error, dialing bool) {
	switch classifyError(err) {
	case failureTransient:
		e.transientReconnect()
	case failureAuth:
		switch {
		case e.haveSession:
			e.authRetry = true
			e.reconnect(false, reconnectDelayAuthFail)
		case e.initializing():
			e.giveUp(fmt.Errorf("%w: %w", ErrAuthRejected, err))
		case !e.authRetry:
			e.authRetry = true
			e.reconnect(false, reconnectDelayAuthFail)
		default:
			e.giveUp(fmt.Errorf("%w: %w", ErrAuthRejected, err))
		}
	default:
		if dialing {
			e.transientReconnect()
		}
	}
}

func (e *Engine) transientReconnect() {
	d, advance := transientBackoff(e.tries)
	if advance {
		e.tries++
	}
	e.reconnect(true, d)
}

// reconnect tears the connection down and connects again after backoff,
// resuming the TLS session when asked and one exists.
func (e *Engine) reconnect(resume bool, backoff time.Duration) {
	e.logInfo("reconnecting to bridge", "bridge", e.opts.BridgeID, "resume", resume,
		"backoff", backoff.String(), "tries", e.tries)
	e.corr.Reset()
	e.stopPing()
	e.pendingLEAP = nil
	if e.cap.LEAP {
		e.closeLEAP()
		e.leapGen++
		e.leapDialing = false
	} else {
		e.dropLIP()
	}
	e.setState(StateReconnecting)
	e.arm(slotBackoff, backoff, func() {
		if e.cap.LEAP {
			e.connectLEAP(resume, e.afterReconnect)
		} else {
			e.connectLIP()
		}
	})
}

// afterReconnect restores the Telnet side and decides whether the topology
// must be fetched again. A resumed session only verifies it with a poll.
func (e *Engine) afterReconnect(resumed bool) {
	e.dropLIP()
	e.disarm(slotTelnetRetry)
	if !e.initialized || !resumed {
		e.discoverLEAP()
		return
	}
	if e.pro {
		e.connectLIP()
	}
	e.verifyPoll = true
	e.setState(StateReady)
	e.poll()
	e.schedulePoll()
}

// responseTimeout runs when the bridge stayed silent past the window.
func (e *Engine) responseTimeout() {
	e.logWarn("bridge response timeout", "bridge", e.opts.BridgeID, "state", e.state.String())
	e.reconnect(true, reconnectDelayShort)
}

// writeLEAP sends a record, resuming the session first when TLS is down.
func (e *Engine) writeLEAP(payload []byte) {
	if e.leap == nil {
		if len(e.pendingLEAP) >= maxPendingWrites {
			e.logWarn("dropping bridge write, connection pending", "bridge", e.opts.BridgeID)
			return
		}
		e.pendingLEAP = append(e.pendingLEAP, payload)
		if !e.leapDialing && !e.armed(slotBackoff) {
			e.connectLEAP(true, e.resumeConnected)
		}
		return
	}
	if err := e.leap.Send(payload); err != nil {
		e.logError("bridge write failed", err)
		e.closeLEAP()
		e.leapGen++
		e.publishSummary()
		e.leapFailure(err, true)
	}
}

// resumeConnected follows a connect started by a write.
func (e *Engine) resumeConnected(bool) {
	if !e.initialized {
		return
	}
	e.setState(StateReady)
	if !e.armed(slotPoll) {
		e.schedulePoll()
	}
}

// sendLEAP writes a request and counts its reply.
func (e *Engine) sendLEAP(payload []byte) {
	e.writeLEAP(payload)
	e.corr.Expect(1)
}

func (e *Engine) closeLEAP() {
	if e.leap != nil {
		if err := e.leap.Close(); err != nil {
			e.logDebug("close bridge connection", "bridge", e.opts.BridgeID, "error", err)
		}
		e.leap = nil
	}
}

// connectLIP dials the Telnet integration port. Credentials come from the
// bundle when it has them, otherwise from the bridge type's defaults.
func (e *Engine) connectLIP() {
	if e.lipDialing || e.lip != nil {
		return
	}
	login, password := e.cap.TelnetLogin, e.cap.TelnetPassword
	if e.bundle != nil && e.bundle.HasLogin() {
		login, password = e.bundle.Login, e.bundle.Password
	}
	if login == "" || password == "" {
		e.lipFailure(ErrNoCredentials)
		return
	}

	e.lipGen++
	gen := e.lipGen
	e.lipDialing = true
	cfg := LIPDialConfig{
		Host:     e.address,
		Port:     e.opts.LIPPort,
		Login:    login,
		Password: password,
		Logger:   e.getLogger(),
	}
	events := e.lipEvents(gen)
	e.logInfo("starting telnet session", "bridge", e.opts.BridgeID, "address", cfg.Host)
	if e.cap.AuthTimeout > 0 && e.initializing() {
		e.arm(slotAuth, e.cap.AuthTimeout, func() {
			e.giveUp(fmt.Errorf("%w: no telnet prompt after %s", ErrAuthRejected, e.cap.AuthTimeout))
		})
	}

	go func() {
		t, err := e.dialer.DialLIP(e.ctx, cfg, events)
		e.post(func() { e.lipDialed(gen, t, err) })
	}()
}

func (e *Engine) lipDialed(gen uint64, t Transport, err error) {
	if gen != e.lipGen {
		if t != nil {
			t.Close()
		}
		return
	}
	e.lipDialing = false
	if err != nil {
		e.logError("telnet connect failed", err, "class", classifyError(err).String())
		e.lipFailure(err)
		return
	}
	e.lip = t
}

func (e *Engine) lipEvents(gen uint64) LIPEvents {
	return LIPEvents{
		Session: func() {
			e.post(func() {
				if gen == e.lipGen {
					e.lipSession()
				}
			})
		},
		Keepalive: func() {
			e.post(func() {
				if gen == e.lipGen {
					e.corr.Satisfy(1)
					e.pingOutstanding = false
				}
			})
		},
		Line: func(line string) {
			e.post(func() {
				if gen == e.lipGen {
					e.handleLIPLine(line)
				}
			})
		},
		Closed: func(err error) {
			e.post(func() {
				if gen == e.lipGen {
					e.lipClosed(err)
				}
			})
		},
	}
}

func (e *Engine) lipSession() {
	e.telnetUp = true
	e.tries = 0
	e.disarm(slotAuth)
	e.disarm(slotTelnetRetry)
	e.logInfo("telnet session up", "bridge", e.opts.BridgeID)
	// Telnet prompts replace LEAP pings while the session lasts
	e.startPing()

	switch {
	case e.awaitingTelnet || (e.discovering && !e.cap.LEAP):
		e.completeInit()
	case !e.cap.LEAP && e.initialized:
		e.setState(StateReady)
	default:
		e.publishSummary()
	}
}

func (e *Engine) lipClosed(err error) {
	e.lip = nil
	e.telnetUp = false
	e.pingOutstanding = false
	if err != nil {
		e.logError("telnet connection lost", err, "class", classifyError(err).String())
		e.lipFailure(err)
		return
	}
	e.logWarn("telnet session closed by bridge", "bridge", e.opts.BridgeID)
	e.lipLost()
}

// lipFailure recovers from a Telnet error.
func (e *Engine) lipFailure(err error) {
	if errors.Is(err, ErrNoCredentials) {
		if e.cap.LEAP {
			e.logError("no telnet credentials, continuing without telnet", err)
			e.lipLost()
			return
		}
		e.giveUp(fmt.Errorf("connect %s: %w", e.opts.BridgeID, err))
		return
	}
	if e.awaitingTelnet {
		// a Pro bridge still works over LEAP; keep trying Telnet in the background
		e.completeInit()
		e.lipLost()
		return
	}
	switch classifyError(err) {
	case failureTransient:
		e.transientReconnect()
	case failureAuth:
		if !e.cap.LEAP && e.initializing() {
			e.giveUp(fmt.Errorf("%w: %w", ErrAuthRejected, err))
			return
		}
		e.reconnect(false, reconnectDelayAuthFail)
	default:
		e.lipLost()
	}
}

// lipLost handles a Telnet session that ended without a recovery plan.
// Hybrid bridges fall back to LEAP pings and retry Telnet periodically;
// Telnet-only bridges reconnect.
func (e *Engine) lipLost() {
	e.closeLIP()
	e.lipGen++
	e.lipDialing = false
	e.telnetUp = false
	e.publishSummary()
	if !e.cap.LEAP {
		e.transientReconnect()
		return
	}
	if e.leap != nil {
		e.startPing()
	}
	if e.pro {
		e.scheduleTelnetRetry()
	}
}

func (e *Engine) scheduleTelnetRetry() {
	e.arm(slotTelnetRetry, telnetRetryInterval, func() {
		e.connectLIP()
		e.scheduleTelnetRetry()
	})
}

// writeLIP sends a Telnet command and reports whether it was written.
// Commands while the session is down are dropped; the caller already chose
// Telnet because it was up.
func (e *Engine) writeLIP(cmd string) bool {
	if e.lip == nil {
		e.logWarn("telnet write dropped, not connected", "bridge", e.opts.BridgeID)
		return false
	}
	if err := e.lip.Send([]byte(cmd)); err != nil {
		e.logError("telnet write failed", err)
		e.dropLIP()
		e.pingOutstanding = false
		e.lipFailure(err)
		return false
	}
	return true
}

// sendLIP writes a Telnet command and counts its reply.
func (e *Engine) sendLIP(cmd string) {
	if e.writeLIP(cmd) {
		e.corr.Expect(1)
	}
}

// dropLIP closes the Telnet session and ignores its remaining events.
func (e *Engine) dropLIP() {
	e.closeLIP()
	e.lipGen++
	e.lipDialing = false
	e.telnetUp = false
}

func (e *Engine) closeLIP() {
	if e.lip != nil {
		if err := e.lip.Close(); err != nil {
			e.logDebug("close telnet connection", "bridge", e.opts.BridgeID, "error", err)
		}
		e.lip = nil
	}
}

func (e *Engine) startPing() {
	e.pingOutstanding = false
	e.arm(slotPing, pingInterval, e.pingTick)
}

func (e *Engine) stopPing() {
	e.pingOutstanding = false
	e.disarm(slotPing)
}

// pingTick keeps the active transport alive. Telnet pings while a session is
// up; an unanswered Telnet ping drops the session.
func (e *Engine) pingTick() {
	e.arm(slotPing, pingInterval, e.pingTick)
	if e.telnetUp {
		if e.pingOutstanding {
			e.logWarn("telnet ping unanswered, dropping session", "bridge", e.opts.BridgeID)
			e.lipLost()
			return
		}
		if e.corr.Pending() == 0 {
			e.corr.Expect(1)
			e.pingOutstanding = true
			e.writeLIP(lipPing)
		}
		return
	}
	if e.cap.LEAP && !e.pingOutstanding && e.corr.Pending() == 0 {
		e.corr.Expect(1)
		e.pingOutstanding = true
		e.writeLEAP(PingRequest())
	}
}

func (e *Engine) schedulePoll() {
	e.arm(slotPoll, pollInterval, func() {
		e.poll()
		e.schedulePoll()
	})
}

// poll re-reads the device and scene lists to detect topology changes.
// Poll replies only update digests.
func (e *Engine) poll() {
	if !e.pollDevices {
		e.logDebug("polling devices", "bridge", e.opts.BridgeID)
		e.pollDevices = true
		e.sendLEAP(DevicesRequest())
	}
	if !e.pollScenes {
		e.logDebug("polling scenes", "bridge", e.opts.BridgeID)
		e.pollScenes = true
		e.sendLEAP(ScenesRequest())
	}
}

// UpdateAddress points the engine at a new bridge address and reconnects
// with a fresh session after a pause.
func (e *Engine) UpdateAddress(address string) {
	e.post(func() {
		if address == "" || address == e.address {
			return
		}
		e.logInfo("bridge address changed", "bridge", e.opts.BridgeID, "from", e.address, "to", address)
		e.address = address
		e.tries = 0
		e.reconnect(false, reconnectDelayReset)
	})
}

// Disconnect logs out of Telnet and closes TLS. Every pending timer and
// in-flight gesture is cancelled. The engine stays usable: the next command
// resumes the session.
func (e *Engine) Disconnect() {
	e.post(func() {
		e.logInfo("disconnecting bridge", "bridge", e.opts.BridgeID)
		e.pingOutstanding = false
		e.disarmAll()
		e.corr.Reset()
		e.tracker.Reset()
		e.dropLIP()
		e.closeLEAP()
		e.leapGen++
		e.leapDialing = false
		e.pendingLEAP = nil
		e.setState(StateDisconnected)
	})
}
