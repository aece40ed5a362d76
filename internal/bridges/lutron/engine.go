package lutron

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// mailboxSize bounds queued loop work before posters block.
const mailboxSize = 256

// maxPendingWrites bounds LEAP writes held while a resumed connect runs.
const maxPendingWrites = 64

// State is the engine's connection state.
type State int

// Engine states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateDiscovery
	StateReady
	StateReconnecting
)

// String returns the state name used in logs and summaries.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateDiscovery:
		return "discovery"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Options configures an Engine.
type Options struct {
	// BridgeID is the bridge's stable identifier (eight hex digits of the
	// serial number). Required.
	BridgeID string

	// Type is the bridge type tag, TypeHybrid or TypeTelnet.
	Type string

	// Address is the bridge's host name or IP. Required.
	Address string

	// Model is reported in summaries until discovery learns the real one.
	Model string

	// Credentials supplies the bundle for fresh connections. Required.
	Credentials CredentialSource

	// Sink receives hub envelopes. Required.
	Sink HubSink

	// Dialer opens transports. Defaults to NetDialer.
	Dialer Dialer

	// Clock drives every engine and gesture timer. Defaults to SystemClock.
	Clock Clock

	Logger Logger

	// LEAPPort and LIPPort override the default bridge ports.
	LEAPPort int
	LIPPort  int
}

// timerSlot names one of the engine's single-instance timers.
type timerSlot int

const (
	slotBackoff timerSlot = iota
	slotPing
	slotPoll
	slotTelnetRetry
	slotAuth
)

type slotTimer struct {
	timer Timer
	seq   uint64
}

// waiter is a one-shot reply hook fired by a response or by its timeout,
// whichever comes first.
type waiter struct {
	fired bool
	timer Timer
	fire  func()
}

func (w *waiter) trigger() {
	if w.fired {
		return
	}
	w.fired = true
	w.timer = stopTimer(w.timer)
	w.fire()
}

func triggerAll(list []*waiter) {
	for _, w := range list {
		w.trigger()
	}
}

type zoneReply struct {
	status *ZoneStatus
	err    error
}

// zoneWaiter is a waiter whose reply carries a zone's status.
type zoneWaiter struct {
	waiter
	reply chan zoneReply
}

// deliver answers the waiter with status unless it already fired.
func (w *zoneWaiter) deliver(status ZoneStatus) {
	if w.fired {
		return
	}
	w.fired = true
	w.timer = stopTimer(w.timer)
	w.reply <- zoneReply{status: &status}
}

// Engine drives one bridge: connection lifecycle, topology discovery,
// command dispatch and event normalization.
//
// Thread Safety: public methods are safe for concurrent use. All protocol
// state is owned by a single loop goroutine; transport readers, timers and
// callers post closures into its mailbox.
type Engine struct {
	cap    Capability
	opts   Options
	clock  Clock
	dialer Dialer
	sink   HubSink
	creds  CredentialSource

	ctx      context.Context
	cancel   context.CancelFunc
	mailbox  chan func()
	done     *closeOnce
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	summary atomic.Pointer[Summary]

	// Everything below is owned by the loop goroutine.

	state     State
	since     time.Time
	address   string
	model     string
	dir       *Directory
	corr      *Correlator
	tracker   *Tracker
	timers    map[timerSlot]*slotTimer
	delayed   map[uint64]Timer
	timerSeq  uint64
	lastErr   error
	tries     int
	authRetry bool

	bundle       *CredentialBundle
	sessionCache tls.ClientSessionCache
	haveSession  bool

	leap          Transport
	leapGen       uint64
	leapDialing   bool
	leapConnected func(resumed bool)
	pendingLEAP   [][]byte

	lip            Transport
	lipGen         uint64
	lipDialing     bool
	telnetUp       bool
	awaitingTelnet bool

	pro       bool
	lipIDHref string

	initialized   bool
	discovering   bool
	initWaiters   []chan error
	pendingModels int
	verifyPoll    bool

	pingOutstanding bool
	pollDevices     bool
	pollScenes      bool

	deviceWaiters []*waiter
	sceneWaiters  []*waiter
	zoneWaiters   map[int][]*zoneWaiter
}

// NewEngine validates opts and starts the engine's loop. The engine is idle
// until Initialize is called.
func NewEngine(opts Options) (*Engine, error) {
	capability, err := CapabilityFor(opts.Type)
	if err != nil {
		return nil, err
	}
	var problems []error
	if opts.BridgeID == "" {
		problems = append(problems, errors.New("bridge id is required"))
	}
	if opts.Address == "" {
		problems = append(problems, errors.New("address is required"))
	}
	if opts.Credentials == nil {
		problems = append(problems, errors.New("credential source is required"))
	}
	if opts.Sink == nil {
		problems = append(problems, errors.New("hub sink is required"))
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("lutron: invalid engine options: %w", errors.Join(problems...))
	}
	if opts.Dialer == nil {
		opts.Dialer = NetDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cap:         capability,
		opts:        opts,
		clock:       opts.Clock,
		dialer:      opts.Dialer,
		sink:        opts.Sink,
		creds:       opts.Credentials,
		ctx:         ctx,
		cancel:      cancel,
		mailbox:     make(chan func(), mailboxSize),
		done:        newCloseOnce(),
		logger:      opts.Logger,
		address:     opts.Address,
		model:       opts.Model,
		dir:         NewDirectory(opts.BridgeID),
		timers:      make(map[timerSlot]*slotTimer),
		delayed:     make(map[uint64]Timer),
		zoneWaiters: make(map[int][]*zoneWaiter),
	}
	e.since = e.clock.Now()
	e.corr = NewCorrelator(capability.ResponseTimeout, e.after, e.responseTimeout)
	e.tracker = NewTracker(e.clock, e.emitGesture)
	e.tracker.SetLogger(opts.Logger)
	if !capability.LEAP {
		e.dir.UseDeviceIDsAsZones()
	}
	e.publishSummary()

	e.wg.Add(1)
	go e.run()
	return e, nil
}

// BridgeID returns the engine's bridge identifier.
func (e *Engine) BridgeID() string { return e.opts.BridgeID }

// Capability returns the engine's bridge descriptor.
func (e *Engine) Capability() Capability { return e.cap }

// SetLogger sets the logger for this engine and its gesture tracker.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
	e.tracker.SetLogger(logger)
}

// Stop shuts the engine down: every timer is cancelled, both transports
// are closed and pending callers get ErrClosed. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.done.Close()
		e.wg.Wait()
	})
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.mailbox:
			fn()
		case <-e.done.Done():
			e.teardown()
			return
		}
	}
}

func (e *Engine) teardown() {
	e.disarmAll()
	e.corr.Reset()
	e.tracker.Stop()
	e.closeLEAP()
	e.closeLIP()
	e.leapGen++
	e.lipGen++
	e.failInit(ErrClosed)
	triggerAll(e.deviceWaiters)
	triggerAll(e.sceneWaiters)
	for _, list := range e.zoneWaiters {
		for _, w := range list {
			w.trigger()
		}
	}
	e.setState(StateDisconnected)
	e.logInfo("bridge engine stopped", "bridge", e.opts.BridgeID)
}

// post queues fn on the loop. It reports false once the engine has stopped.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.done.Done():
		return false
	default:
	}
	select {
	case e.mailbox <- fn:
		return true
	case <-e.done.Done():
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (e *Engine) call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case e.mailbox <- func() { fn(); close(ran) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done.Done():
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done.Done():
		return ErrClosed
	}
}

// after schedules fn on the loop after d.
func (e *Engine) after(d time.Duration, fn func()) Timer {
	return e.clock.AfterFunc(d, func() { e.post(fn) })
}

// arm replaces the timer in slot. A callback that was already queued when
// its slot was replaced or disarmed does not run.
func (e *Engine) arm(slot timerSlot, d time.Duration, fn func()) {
	e.disarm(slot)
	e.timerSeq++
	seq := e.timerSeq
	st := &slotTimer{seq: seq}
	st.timer = e.after(d, func() {
		if cur, ok := e.timers[slot]; ok && cur.seq == seq {
			delete(e.timers, slot)
			fn()
		}
	})
	e.timers[slot] = st
}

func (e *Engine) disarm(slot timerSlot) {
	if st, ok := e.timers[slot]; ok {
		st.timer.Stop()
		delete(e.timers, slot)
	}
}

// delay schedules a one-off fn that Disconnect and Stop cancel.
func (e *Engine) delay(d time.Duration, fn func()) {
	e.timerSeq++
	seq := e.timerSeq
	e.delayed[seq] = e.after(d, func() {
		if _, ok := e.delayed[seq]; ok {
			delete(e.delayed, seq)
			fn()
		}
	})
}

// disarmAll cancels every slot timer and every delayed callback.
func (e *Engine) disarmAll() {
	for slot := range e.timers {
		e.disarm(slot)
	}
	for seq, t := range e.delayed {
		t.Stop()
		delete(e.delayed, seq)
	}
}

func (e *Engine) armed(slot timerSlot) bool {
	_, ok := e.timers[slot]
	return ok
}

func (e *Engine) setState(s State) {
	if e.state != s {
		e.logDebug("bridge state", "bridge", e.opts.BridgeID, "from", e.state.String(), "to", s.String())
		e.state = s
		e.since = e.clock.Now()
	}
	e.publishSummary()
}

// publishSummary refreshes the snapshot read by Summary.
func (e *Engine) publishSummary() {
	s := Summary{
		BridgeID:    e.opts.BridgeID,
		Connected:   e.leap != nil || e.telnetUp,
		Address:     e.address,
		Brand:       e.cap.Brand,
		Digest:      e.dir.Digest(),
		State:       e.state.String(),
		Initialized: e.initialized,
		TelnetUp:    e.telnetUp,
		Since:       e.since,
	}
	if s.Connected {
		s.Model = e.model
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	e.summary.Store(&s)
}

// Summary returns the bridge's current summary without waiting on the loop.
func (e *Engine) Summary() Summary {
	return *e.summary.Load()
}

// emitGesture runs on gesture timer goroutines as well as the loop; it only
// touches the sink.
func (e *Engine) emitGesture(ev GestureEvent) {
	e.sink.SendEvent(ButtonActionEnvelope(ev.Key.Bridge, ev.Serial, ev.Key.Device, ev.Key.Button, ev.Action))
}

func (e *Engine) getLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (e *Engine) logInfo(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (e *Engine) logError(msg string, err error, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		kv := append([]any{"bridge", e.opts.BridgeID, "error", err}, keysAndValues...)
		logger.Error(msg, kv...)
	}
}
