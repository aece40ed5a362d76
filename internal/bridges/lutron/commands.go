package lutron

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// command runs fn on the loop once the bridge is initialized.
func (e *Engine) command(ctx context.Context, fn func() error) error {
	var err error
	if cerr := e.call(ctx, func() {
		if !e.initialized {
			err = ErrNotInitialized
			return
		}
		err = fn()
	}); cerr != nil {
		return cerr
	}
	return err
}

// DeviceList returns the bridge's devices. On LEAP bridges the list is
// fetched again first; if the bridge does not answer within the request
// timeout the current list is returned. reset clears the updated flag.
// Before initialization the list is empty.
func (e *Engine) DeviceList(ctx context.Context, reset bool) (DeviceList, error) {
	reply := make(chan DeviceList, 1)
	err := e.call(ctx, func() {
		current := func() DeviceList {
			return DeviceList{Devices: e.dir.Devices(), Updated: e.dir.DevicesUpdated(reset)}
		}
		switch {
		case !e.initialized:
			reply <- DeviceList{Devices: []Device{}}
		case !e.cap.LEAP:
			reply <- current()
		default:
			w := &waiter{fire: func() { reply <- current() }}
			w.timer = e.after(e.cap.RequestTimeout, w.trigger)
			e.deviceWaiters = append(e.deviceWaiters, w)
			e.sendLEAP(DevicesRequest())
		}
	})
	if err != nil {
		return DeviceList{}, err
	}
	select {
	case list := <-reply:
		return list, nil
	case <-ctx.Done():
		return DeviceList{}, ctx.Err()
	case <-e.done.Done():
		return DeviceList{}, ErrClosed
	}
}

// SceneList returns the bridge's programmed scenes, refreshed the same way
// as DeviceList.
func (e *Engine) SceneList(ctx context.Context, reset bool) (SceneList, error) {
	reply := make(chan SceneList, 1)
	err := e.call(ctx, func() {
		current := func() SceneList {
			return SceneList{Scenes: e.dir.Scenes(), Updated: e.dir.ScenesUpdated(reset)}
		}
		switch {
		case !e.initialized:
			reply <- SceneList{Scenes: []Scene{}}
		case !e.cap.LEAP:
			reply <- current()
		default:
			w := &waiter{fire: func() { reply <- current() }}
			w.timer = e.after(e.cap.RequestTimeout, w.trigger)
			e.sceneWaiters = append(e.sceneWaiters, w)
			e.sendLEAP(ScenesRequest())
		}
	})
	if err != nil {
		return SceneList{}, err
	}
	select {
	case list := <-reply:
		return list, nil
	case <-ctx.Done():
		return SceneList{}, ctx.Err()
	case <-e.done.Done():
		return SceneList{}, ErrClosed
	}
}

// ZoneStatus requests a zone's level. zone is a number, "Name" or
// "Area:Name"; id is the integration ID when the caller knows it.
//
// Over Telnet the level arrives later as a hub event and the returned
// status is nil. Over LEAP the call waits for the bridge's reply.
func (e *Engine) ZoneStatus(ctx context.Context, zone string, id int) (*ZoneStatus, error) {
	reply := make(chan zoneReply, 1)
	err := e.command(ctx, func() error {
		z := e.dir.ZoneByName(zone)
		if e.telnetUp {
			if dev := e.dir.DeviceIDByZone(id, z); dev != 0 {
				e.sendLIP(LIPQueryLevel(dev))
				reply <- zoneReply{}
				return nil
			}
		}
		if !e.cap.LEAP {
			return e.telnetUnavailable(zone)
		}
		if z == 0 {
			return fmt.Errorf("%w: %q", ErrUnknownZone, zone)
		}
		w := &zoneWaiter{reply: reply}
		w.fire = func() { reply <- zoneReply{err: fmt.Errorf("%w: zone %d", ErrRequestTimeout, z)} }
		w.timer = e.after(e.cap.RequestTimeout, w.trigger)
		e.zoneWaiters[z] = append(e.zoneWaiters[z], w)
		e.sendLEAP(ZoneStatusRequest(z))
		return nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.status, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done.Done():
		return nil, ErrClosed
	}
}

// telnetUnavailable is the error for a Telnet-only command that cannot be sent.
func (e *Engine) telnetUnavailable(zone string) error {
	if !e.telnetUp {
		return ErrNotConnected
	}
	return fmt.Errorf("%w: %q", ErrUnknownZone, zone)
}

// SetZoneLevel sets a zone to level percent, clamped to [0,100], fading
// over fade seconds where the bridge supports it.
func (e *Engine) SetZoneLevel(ctx context.Context, zone string, id int, level float64, fade int) error {
	level = clampLevel(level)
	return e.command(ctx, func() error {
		z := e.dir.ZoneByName(zone)
		if e.telnetUp {
			if dev := e.dir.DeviceIDByZone(id, z); dev != 0 {
				e.sendLIP(LIPSetLevel(dev, level, fade))
				return nil
			}
		}
		if !e.cap.LEAP {
			return e.telnetUnavailable(zone)
		}
		if z == 0 {
			return fmt.Errorf("%w: %q", ErrUnknownZone, zone)
		}
		e.sendLEAP(ZoneLevelRequest(z, level))
		return nil
	})
}

// ChangeZoneLevel starts or stops a ramp. cmd is raise, lower or stop.
func (e *Engine) ChangeZoneLevel(ctx context.Context, zone string, id int, cmd string) error {
	change, err := ParseLevelChange(cmd)
	if err != nil {
		return err
	}
	return e.command(ctx, func() error {
		z := e.dir.ZoneByName(zone)
		if e.telnetUp {
			if dev := e.dir.DeviceIDByZone(id, z); dev != 0 {
				lip, err := LIPChangeLevel(dev, change)
				if err != nil {
					return err
				}
				e.sendLIP(lip)
				return nil
			}
		}
		if !e.cap.LEAP {
			return e.telnetUnavailable(zone)
		}
		if z == 0 {
			return fmt.Errorf("%w: %q", ErrUnknownZone, zone)
		}
		e.sendLEAP(ZoneChangeRequest(z, change.leapCommand()))
		return nil
	})
}

// Scene activates a scene given by number or name.
func (e *Engine) Scene(ctx context.Context, ref string) error {
	return e.command(ctx, func() error {
		var scene int
		if e.cap.LEAP {
			n, ok := e.dir.SceneByRef(ref)
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownScene, ref)
			}
			scene = n
		} else {
			// the processor cannot enumerate scenes; pass the number through
			n, err := strconv.Atoi(strings.TrimSpace(ref))
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: %q", ErrUnknownScene, ref)
			}
			scene = n
		}

		if e.telnetUp {
			e.sendLIP(LIPDevice(SceneDevice, scene, LIPPress))
			return nil
		}
		if !e.cap.LEAP {
			return ErrNotConnected
		}
		e.sendLEAP(VirtualButtonPressRequest(scene))
		return nil
	})
}

// RefreshZones asks the bridge for every known zone's level. Replies reach
// the hub as zone status events.
func (e *Engine) RefreshZones(ctx context.Context) error {
	return e.command(ctx, func() error {
		if !e.cap.LEAP {
			return nil
		}
		for _, z := range e.dir.Zones() {
			e.sendLEAP(ZoneStatusRequest(z))
		}
		return nil
	})
}

// buttonOp maps a hub action to a LIP operation and, for pushed and held,
// the delay before the matching release.
func buttonOp(action Action, push time.Duration) (op int, hold time.Duration, err error) {
	if push <= 0 {
		push = DefaultPushTime
	}
	switch action {
	case ActionClosed:
		return LIPPress, 0, nil
	case ActionPushed:
		return LIPPress, push / 2, nil
	case ActionHeld:
		return LIPPress, 2 * push, nil
	case ActionOpen:
		return LIPRelease, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: button action %q", ErrUnknownCommand, action)
	}
}

// leapButtonCommand picks the LEAP command for a remote button. Buttons
// that cannot be held only accept PressAndRelease; the second result is
// false when nothing should be sent.
func leapButtonCommand(action Action, pressAndHold bool) (Action, bool) {
	if pressAndHold {
		if action == ActionPushed {
			return ActionHeld, true
		}
		return action, true
	}
	switch action {
	case ActionClosed, ActionHeld:
		return ActionPushed, true
	case ActionOpen:
		return "", false
	default:
		return action, true
	}
}

// ButtonAction simulates a gesture on a remote's button. serial is the
// remote's serial number or name (hybrid) or integration ID (Telnet-only).
func (e *Engine) ButtonAction(ctx context.Context, serial string, button int, action Action) error {
	return e.command(ctx, func() error {
		var (
			deviceID int
			sn       Serial
		)
		if e.cap.LEAP {
			dev, ok := e.dir.DeviceByRef(serial)
			if !ok {
				return fmt.Errorf("%w: remote %q", ErrUnknownDevice, serial)
			}
			deviceID, sn = dev.ID, dev.SerialNumber
		} else {
			n, err := strconv.Atoi(strings.TrimSpace(serial))
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: remote %q", ErrUnknownDevice, serial)
			}
			deviceID, sn = n, Serial(strconv.Itoa(n))
		}

		mode := e.dir.ButtonMode(deviceID, button)
		op, hold, err := buttonOp(action, mode.PushTime)
		if err != nil {
			return err
		}

		if e.telnetUp {
			e.sendLIP(LIPDevice(deviceID, button, op))
			if hold > 0 {
				e.delay(hold, func() { e.sendLIP(LIPDevice(deviceID, button, LIPRelease)) })
			}
			return nil
		}
		if !e.cap.LEAP {
			return ErrNotConnected
		}

		leapButton, pressAndHold, mapped := e.dir.LEAPButton(sn, button)
		if !e.pro || !mapped {
			// a Standard bridge does not report app-driven presses; echo it
			e.sink.SendEvent(ButtonActionEnvelope(e.opts.BridgeID, string(sn), deviceID, button, action))
		}
		if !mapped {
			e.logWarn("no LEAP mapping for button, modes not set", "bridge", e.opts.BridgeID,
				"remote", string(sn), "button", button)
			return nil
		}

		leapAction, send := leapButtonCommand(action, pressAndHold)
		if !send {
			return nil
		}
		switch leapAction {
		case ActionOpen:
			e.sendLEAP(ButtonCommandRequest(leapButton, buttonCommandRelease))
		case ActionPushed:
			e.sendLEAP(ButtonCommandRequest(leapButton, buttonCommandPressRelease))
		default:
			e.sendLEAP(ButtonCommandRequest(leapButton, buttonCommandPressHold))
		}
		if leapAction == ActionHeld {
			e.delay(hold, func() { e.sendLEAP(ButtonCommandRequest(leapButton, buttonCommandRelease)) })
		}
		return nil
	})
}

// SetButtonMode installs the hub's behaviour for a remote's buttons. push
// and repeat of zero select the defaults. On Telnet-only bridges the remote
// is registered by integration ID on first use.
func (e *Engine) SetButtonMode(ctx context.Context, serial string, modes map[int]ButtonSetting, push, repeat time.Duration) error {
	if len(modes) == 0 {
		return fmt.Errorf("%w: empty mode map for %q", ErrUnknownCommand, serial)
	}
	var err error
	if cerr := e.call(ctx, func() {
		var p *ButtonGroupEntry
		if e.cap.LEAP {
			if !e.initialized {
				err = ErrNotInitialized
				return
			}
			found, ok := e.dir.Pico(Serial(serial))
			if !ok {
				err = fmt.Errorf("%w: remote %q", ErrUnknownDevice, serial)
				return
			}
			p = found
		} else {
			n, aerr := strconv.Atoi(strings.TrimSpace(serial))
			if aerr != nil || n <= 0 {
				err = fmt.Errorf("%w: remote %q", ErrUnknownDevice, serial)
				return
			}
			p = e.dir.EnsurePico(Serial(strconv.Itoa(n)), n)
		}
		e.dir.SetButtonModes(p, modes, push, repeat)
		e.logDebug("button modes set", "bridge", e.opts.BridgeID, "remote", serial, "buttons", len(modes))
	}); cerr != nil {
		return cerr
	}
	return err
}

// WriteCommunique sends a raw command. Strings starting with #, ? or ~ go
// to the Telnet session; JSON objects go to LEAP.
func (e *Engine) WriteCommunique(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCommunique)
	}
	return e.command(ctx, func() error {
		switch raw[0] {
		case '#', '?', '~':
			if !e.telnetUp {
				return ErrNotConnected
			}
			e.writeLIP(raw + lipEOL)
			return nil
		}
		if !e.cap.LEAP {
			return fmt.Errorf("%w: Telnet bridges accept LIP commands only", ErrInvalidCommunique)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCommunique, err)
		}
		e.writeLEAP([]byte(raw + "\n"))
		return nil
	})
}
