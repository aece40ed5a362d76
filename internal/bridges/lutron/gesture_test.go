package lutron

import (
	"testing"
	"time"
)

func newTestTracker() (*Tracker, *fakeClock, *eventRecorder) {
	clock := newFakeClock()
	rec := &eventRecorder{}
	tr := NewTracker(clock, rec.record)
	tr.SetLogger(&testLogger{})
	return tr, clock, rec
}

func TestTracker_PressReleaseSequences(t *testing.T) {
	remote := GestureKey{Bridge: "0A1B2C3D", Device: 12, Button: 2}
	scene := GestureKey{Bridge: "0A1B2C3D", Device: SceneDevice, Button: 5}

	tests := []struct {
		name    string
		key     GestureKey
		mode    ButtonMode
		holdFor time.Duration // -1 means never released
		wait    time.Duration
		want    []Action
	}{
		{
			name:    "immediate release",
			key:     remote,
			mode:    DefaultButtonMode(),
			holdFor: 0,
			wait:    DefaultRepeatTime,
			want:    []Action{ActionClosed, ActionPushed, ActionOpen},
		},
		{
			name:    "release after push time is held",
			key:     remote,
			mode:    DefaultButtonMode(),
			holdFor: 400 * time.Millisecond,
			wait:    350 * time.Millisecond,
			want:    []Action{ActionClosed, ActionHeld, ActionOpen},
		},
		{
			name:    "long release forced",
			key:     remote,
			mode:    ButtonMode{Policy: ReleaseLong, PushTime: DefaultPushTime, RepeatTime: DefaultRepeatTime},
			holdFor: -1,
			wait:    10 * time.Second,
			want:    []Action{ActionClosed, ActionHeld, ActionOpen},
		},
		{
			name:    "hold release forced at twice push",
			key:     remote,
			mode:    ButtonMode{Policy: ReleaseHold, PushTime: DefaultPushTime, RepeatTime: DefaultRepeatTime},
			holdFor: -1,
			wait:    2 * time.Second,
			want:    []Action{ActionClosed, ActionHeld, ActionOpen},
		},
		{
			name:    "scene forced press release without contact events",
			key:     scene,
			mode:    ButtonMode{Policy: ReleaseNone, RampHold: true},
			holdFor: -1,
			wait:    2 * time.Second,
			want:    []Action{ActionPushed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, clock, rec := newTestTracker()

			tr.Press(tt.key, "serial", tt.mode)
			if tt.holdFor >= 0 {
				clock.Advance(tt.holdFor)
				tr.Release(tt.key)
			}
			clock.Advance(tt.wait)

			if got := rec.actions(); !equalActions(got, tt.want) {
				t.Errorf("actions = %v, want %v", got, tt.want)
			}
			if tr.Len() != 0 {
				t.Errorf("Len() = %d, want 0", tr.Len())
			}
			if clock.Pending() != 0 {
				t.Errorf("pending timers = %d, want 0", clock.Pending())
			}
		})
	}
}

func TestTracker_LongReleaseFiresOnce(t *testing.T) {
	tr, clock, rec := newTestTracker()
	key := GestureKey{Bridge: "B", Device: 7, Button: 4}
	tr.Press(key, "123", ButtonMode{Policy: ReleaseLong})

	clock.Advance(longReleaseTimeout - time.Millisecond)
	if got := rec.actions(); !equalActions(got, []Action{ActionClosed}) {
		t.Fatalf("before timeout actions = %v", got)
	}

	clock.Advance(time.Millisecond)
	want := []Action{ActionClosed, ActionHeld, ActionOpen}
	if got := rec.actions(); !equalActions(got, want) {
		t.Fatalf("after timeout actions = %v, want %v", got, want)
	}

	// a late real release must not classify again
	tr.Release(key)
	clock.Advance(time.Minute)
	if got := rec.actions(); !equalActions(got, want) {
		t.Errorf("after late release actions = %v, want %v", got, want)
	}
}

func TestTracker_RampSuppressesClassification(t *testing.T) {
	tr, clock, rec := newTestTracker()
	key := GestureKey{Bridge: "B", Device: 9, Button: 3}
	tr.Press(key, "555", ButtonMode{RampHold: true, PushTime: 300 * time.Millisecond, RepeatTime: 750 * time.Millisecond})

	clock.Advance(300 * time.Millisecond)
	clock.Advance(750 * time.Millisecond)
	clock.Advance(750 * time.Millisecond)
	tr.Release(key)
	clock.Advance(0)

	want := []Action{ActionClosed, ActionHeld, ActionHeld, ActionOpen}
	if got := rec.actions(); !equalActions(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
	if tr.IsActive(key) {
		t.Error("gesture still active after debounce")
	}
}

func TestTracker_RepressRestartsInPlace(t *testing.T) {
	tr, clock, rec := newTestTracker()
	key := GestureKey{Bridge: "B", Device: 4, Button: 1}

	tr.Press(key, "1", DefaultButtonMode())
	clock.Advance(200 * time.Millisecond)
	tr.Press(key, "1", DefaultButtonMode())
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}

	// elapsed restarts from the second press
	clock.Advance(200 * time.Millisecond)
	tr.Release(key)
	clock.Advance(time.Second)

	want := []Action{ActionClosed, ActionClosed, ActionPushed, ActionOpen}
	if got := rec.actions(); !equalActions(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
}

func TestTracker_IndependentKeys(t *testing.T) {
	tr, clock, rec := newTestTracker()
	a := GestureKey{Bridge: "B", Device: 5, Button: 2}
	b := GestureKey{Bridge: "B", Device: 6, Button: 2}

	tr.Press(a, "a", ButtonMode{Policy: ReleaseLong})
	tr.Press(b, "b", DefaultButtonMode())

	clock.Advance(100 * time.Millisecond)
	tr.Release(b)
	clock.Advance(DefaultRepeatTime)

	if got := rec.actionsFor(b); !equalActions(got, []Action{ActionClosed, ActionPushed, ActionOpen}) {
		t.Errorf("key b actions = %v", got)
	}
	if !tr.IsActive(a) {
		t.Fatal("key a was disturbed by key b")
	}

	clock.Advance(longReleaseTimeout)
	if got := rec.actionsFor(a); !equalActions(got, []Action{ActionClosed, ActionHeld, ActionOpen}) {
		t.Errorf("key a actions = %v", got)
	}
}

func TestTracker_SameButtonOnDifferentBridges(t *testing.T) {
	tr, clock, rec := newTestTracker()
	a := GestureKey{Bridge: "AAAA0001", Device: 5, Button: 2}
	b := GestureKey{Bridge: "BBBB0002", Device: 5, Button: 2}

	tr.Press(a, "a", DefaultButtonMode())
	tr.Press(b, "b", DefaultButtonMode())
	if tr.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tr.Len())
	}
	tr.Release(a)
	clock.Advance(DefaultRepeatTime)

	if !tr.IsActive(b) {
		t.Error("releasing bridge A's button ended bridge B's gesture")
	}
	if got := rec.actionsFor(b); !equalActions(got, []Action{ActionClosed}) {
		t.Errorf("key b actions = %v", got)
	}
}

func TestTracker_ReleaseWithoutPress(t *testing.T) {
	tr, clock, rec := newTestTracker()
	tr.Release(GestureKey{Bridge: "B", Device: 3, Button: 1})
	clock.Advance(time.Second)
	if got := rec.actions(); len(got) != 0 {
		t.Errorf("actions = %v, want none", got)
	}
}

func TestTracker_StopCancelsTimers(t *testing.T) {
	tr, clock, rec := newTestTracker()
	tr.Press(GestureKey{Bridge: "B", Device: 3, Button: 1}, "x", ButtonMode{Policy: ReleaseLong, RampHold: true})
	tr.Stop()

	if clock.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", clock.Pending())
	}
	clock.Advance(time.Minute)
	if got := rec.actions(); !equalActions(got, []Action{ActionClosed}) {
		t.Errorf("actions = %v, want [closed]", got)
	}

	tr.Press(GestureKey{Bridge: "B", Device: 3, Button: 2}, "x", DefaultButtonMode())
	if tr.Len() != 0 {
		t.Error("press accepted after Stop")
	}
}

// slowInfoLogger stalls the releasing goroutine between classification and
// delivery.
type slowInfoLogger struct {
	testLogger
	delay time.Duration
}

func (l *slowInfoLogger) Info(msg string, keysAndValues ...any) { time.Sleep(l.delay) }

func TestTracker_HeldPrecedesOpenOnSystemClock(t *testing.T) {
	rec := &eventRecorder{}
	tr := NewTracker(SystemClock{}, rec.record)
	tr.SetLogger(&slowInfoLogger{delay: 2 * time.Millisecond})
	defer tr.Stop()

	// held longer than the repeat time, so the debounce fires at once
	mode := ButtonMode{PushTime: time.Millisecond, RepeatTime: time.Millisecond}
	for i := 0; i < 20; i++ {
		key := GestureKey{Bridge: "B", Device: 8, Button: i}
		tr.Press(key, "8", mode)
		time.Sleep(5 * time.Millisecond)
		tr.Release(key)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tr.Len() > 0 || len(rec.actions()) < 60 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, actions = %v", rec.actions())
		}
		time.Sleep(time.Millisecond)
	}

	want := []Action{ActionClosed, ActionHeld, ActionOpen}
	for i := 0; i < 20; i++ {
		key := GestureKey{Bridge: "B", Device: 8, Button: i}
		if got := rec.actionsFor(key); !equalActions(got, want) {
			t.Errorf("button %d actions = %v, want %v", i, got, want)
		}
	}
}

func TestTracker_ResetKeepsAcceptingPresses(t *testing.T) {
	tr, clock, rec := newTestTracker()
	key := GestureKey{Bridge: "B", Device: 3, Button: 1}
	tr.Press(key, "x", ButtonMode{Policy: ReleaseLong, RampHold: true})
	tr.Reset()

	if clock.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", clock.Pending())
	}
	clock.Advance(time.Minute)
	if got := rec.actions(); !equalActions(got, []Action{ActionClosed}) {
		t.Errorf("actions = %v, want [closed]", got)
	}

	tr.Press(key, "x", DefaultButtonMode())
	tr.Release(key)
	clock.Advance(DefaultRepeatTime)
	want := []Action{ActionClosed, ActionClosed, ActionPushed, ActionOpen}
	if got := rec.actions(); !equalActions(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
}

func TestButtonMode_ForceTimeout(t *testing.T) {
	tests := []struct {
		policy ReleasePolicy
		want   time.Duration
	}{
		{ReleaseNone, 0},
		{ReleasePress, 150 * time.Millisecond},
		{ReleaseHold, 600 * time.Millisecond},
		{ReleaseLong, 6050 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			m := ButtonMode{Policy: tt.policy, PushTime: 300 * time.Millisecond}
			if got := m.forceTimeout(); got != tt.want {
				t.Errorf("forceTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}
