package lutron

import (
	"sync"
	"time"
)

// Gesture timing defaults.
const (
	// DefaultPushTime is the press duration separating "pushed" from "held".
	DefaultPushTime = 300 * time.Millisecond

	// DefaultRepeatTime is the hold-repeat interval and the debounce ceiling.
	DefaultRepeatTime = 750 * time.Millisecond

	// longReleaseTimeout is the forced release for remotes that stop
	// reporting after six seconds of hold.
	longReleaseTimeout = 6050 * time.Millisecond

	// SceneDevice is the device number the bridge uses for its own
	// virtual buttons (scenes).
	SceneDevice = 1
)

// ReleasePolicy selects how a press is force-released when the bridge
// never reports the release.
type ReleasePolicy int

const (
	// ReleaseNone waits for a real release.
	ReleaseNone ReleasePolicy = iota
	// ReleasePress forces a release at half the push time.
	ReleasePress
	// ReleaseHold forces a release at twice the push time.
	ReleaseHold
	// ReleaseLong forces a release after the fixed long timeout.
	ReleaseLong
)

// String returns the policy name used in logs.
func (p ReleasePolicy) String() string {
	switch p {
	case ReleasePress:
		return "press-release"
	case ReleaseHold:
		return "hold-release"
	case ReleaseLong:
		return "long-release"
	default:
		return "none"
	}
}

// ButtonMode is the behaviour applied to one button's gestures.
type ButtonMode struct {
	Policy     ReleasePolicy
	RampHold   bool
	PushTime   time.Duration
	RepeatTime time.Duration
}

// DefaultButtonMode returns the mode used for buttons nobody configured.
func DefaultButtonMode() ButtonMode {
	return ButtonMode{
		Policy:     ReleaseNone,
		PushTime:   DefaultPushTime,
		RepeatTime: DefaultRepeatTime,
	}
}

// forceTimeout returns the forced-release delay, or 0 for none.
func (m ButtonMode) forceTimeout() time.Duration {
	switch m.Policy {
	case ReleaseLong:
		return longReleaseTimeout
	case ReleaseHold:
		return 2 * m.PushTime
	case ReleasePress:
		return m.PushTime / 2
	default:
		return 0
	}
}

// Action is a gesture classification reported to the hub.
type Action string

// Gesture actions.
const (
	ActionClosed Action = "closed"
	ActionPushed Action = "pushed"
	ActionHeld   Action = "held"
	ActionOpen   Action = "open"
)

// GestureKey identifies one physical or virtual button on one bridge.
type GestureKey struct {
	Bridge string
	Device int
	Button int
}

// GestureEvent is emitted for every classified step of a gesture.
type GestureEvent struct {
	Key    GestureKey
	Serial string
	Action Action
}

// ActiveGesture is the in-flight state of one pressed button.
// Every timer it owns is cancelled as a set whenever it is superseded.
type ActiveGesture struct {
	key    GestureKey
	serial string
	mode   ButtonMode

	start    time.Time
	ramped   bool
	released bool

	// seq invalidates callbacks from timers that fired while being stopped.
	seq uint64

	forceTimer    Timer
	holdTimer     Timer
	rampTimer     Timer
	debounceTimer Timer
}

func (g *ActiveGesture) quash() {
	g.forceTimer = stopTimer(g.forceTimer)
	g.holdTimer = stopTimer(g.holdTimer)
	g.rampTimer = stopTimer(g.rampTimer)
	g.debounceTimer = stopTimer(g.debounceTimer)
	g.seq++
}

func (g *ActiveGesture) event(a Action) GestureEvent {
	return GestureEvent{Key: g.key, Serial: g.serial, Action: a}
}

// Tracker turns raw press and release codes into gesture events.
//
// Thread Safety: all methods are safe for concurrent use. Each key's timers
// run independently; the mutex only guards the map, gesture fields and the
// outbound queue. Events are queued under the mutex and emitted in that
// order, whichever goroutine ends up draining the queue.
type Tracker struct {
	clock Clock
	emit  func(GestureEvent)

	mu       sync.Mutex
	active   map[GestureKey]*ActiveGesture
	stopped  bool
	queue    []GestureEvent
	draining bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewTracker creates a tracker delivering events to emit.
// emit is called without the tracker lock held.
func NewTracker(clock Clock, emit func(GestureEvent)) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Tracker{
		clock:  clock,
		emit:   emit,
		active: make(map[GestureKey]*ActiveGesture),
	}
}

// SetLogger sets the logger for this tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// Press starts or restarts the gesture for key.
//
// Parameters:
//   - key: button identity
//   - serial: serial number reported with the gesture's events
//   - mode: behaviour captured when the gesture is created
func (t *Tracker) Press(key GestureKey, serial string, mode ButtonMode) {
	if key.Device == SceneDevice {
		mode.Policy = ReleasePress
		mode.RampHold = false
	}
	if mode.PushTime <= 0 {
		mode.PushTime = DefaultPushTime
	}
	if mode.RepeatTime <= 0 {
		mode.RepeatTime = DefaultRepeatTime
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	g, ok := t.active[key]
	if ok {
		// re-press without an intervening release
		g.quash()
	} else {
		g = &ActiveGesture{key: key, serial: serial, mode: mode}
		t.active[key] = g
	}
	g.start = t.clock.Now()
	g.ramped = false
	g.released = false
	seq := g.seq

	if d := g.mode.forceTimeout(); d > 0 {
		g.forceTimer = t.clock.AfterFunc(d, func() { t.release(key, seq, true) })
	}
	if g.mode.RampHold {
		g.holdTimer = t.clock.AfterFunc(g.mode.PushTime, func() { t.startRamp(key, seq) })
	}

	if key.Device > SceneDevice {
		t.enqueue(g.event(ActionClosed))
	}
	policy := g.mode.Policy
	t.mu.Unlock()

	t.logDebug("button pressed", "bridge", key.Bridge, "device", key.Device,
		"button", key.Button, "policy", policy.String(), "restart", ok)
	t.flush()
}

// Release completes the gesture for key. A release with no pressed gesture
// is logged and ignored.
func (t *Tracker) Release(key GestureKey) {
	t.release(key, 0, false)
}

func (t *Tracker) release(key GestureKey, seq uint64, forced bool) {
	t.mu.Lock()
	g, ok := t.active[key]
	if !ok || g.released || (forced && g.seq != seq) {
		t.mu.Unlock()
		if !forced {
			t.logDebug("release without active press ignored", "bridge", key.Bridge,
				"device", key.Device, "button", key.Button)
		}
		return
	}

	g.quash()
	g.released = true
	elapsed := t.clock.Now().Sub(g.start)

	action := ActionPushed
	if elapsed > g.mode.PushTime {
		action = ActionHeld
	}

	if !g.ramped {
		t.enqueue(g.event(action))
	}

	debounce := g.mode.RepeatTime - elapsed
	if debounce < 0 {
		debounce = 0
	}
	doneSeq := g.seq
	g.debounceTimer = t.clock.AfterFunc(debounce, func() { t.finish(key, doneSeq) })
	ramped := g.ramped
	t.mu.Unlock()

	t.logInfo("button released", "bridge", key.Bridge, "device", key.Device,
		"button", key.Button, "forced", forced, "elapsed_ms", elapsed.Milliseconds(),
		"action", string(action), "ramped", ramped)
	t.flush()
}

// finish emits the terminal open event and discards the gesture.
func (t *Tracker) finish(key GestureKey, seq uint64) {
	t.mu.Lock()
	g, ok := t.active[key]
	if !ok || g.seq != seq {
		t.mu.Unlock()
		return
	}
	delete(t.active, key)
	g.debounceTimer = nil

	if key.Device > SceneDevice {
		t.enqueue(g.event(ActionOpen))
	}
	t.mu.Unlock()

	t.flush()
}

func (t *Tracker) startRamp(key GestureKey, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.active[key]
	if !ok || g.seq != seq {
		return
	}
	g.holdTimer = nil
	t.scheduleRamp(g, seq)
}

// scheduleRamp must be called with t.mu held.
func (t *Tracker) scheduleRamp(g *ActiveGesture, seq uint64) {
	key := g.key
	g.rampTimer = t.clock.AfterFunc(g.mode.RepeatTime, func() { t.rampTick(key, seq) })
}

func (t *Tracker) rampTick(key GestureKey, seq uint64) {
	t.mu.Lock()
	g, ok := t.active[key]
	if !ok || g.seq != seq {
		t.mu.Unlock()
		return
	}
	g.ramped = true
	t.enqueue(g.event(ActionHeld))
	t.scheduleRamp(g, seq)
	t.mu.Unlock()

	t.flush()
}

// IsActive reports whether a gesture exists for key.
func (t *Tracker) IsActive(key GestureKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[key]
	return ok
}

// Len returns the number of active gestures.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Reset cancels every pending gesture timer and drops all gestures
// without emitting anything. The tracker keeps accepting presses.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clear()
}

// Stop is Reset followed by ignoring every later press.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.clear()
}

// clear must be called with t.mu held.
func (t *Tracker) clear() {
	for key, g := range t.active {
		g.quash()
		delete(t.active, key)
	}
	t.queue = nil
}

// enqueue must be called with t.mu held.
func (t *Tracker) enqueue(ev GestureEvent) {
	if t.emit != nil {
		t.queue = append(t.queue, ev)
	}
}

// flush emits queued events outside the lock. A caller that finds another
// goroutine already draining leaves its events to that goroutine.
func (t *Tracker) flush() {
	t.mu.Lock()
	if t.draining {
		t.mu.Unlock()
		return
	}
	t.draining = true
	for len(t.queue) > 0 {
		ev := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()
		t.emit(ev)
		t.mu.Lock()
	}
	t.draining = false
	t.mu.Unlock()
}

func (t *Tracker) logInfo(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (t *Tracker) logDebug(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
