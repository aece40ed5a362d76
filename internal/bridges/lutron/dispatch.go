package lutron

import "fmt"

// discoverLEAP walks the bridge topology. Each step's reply issues the next
// request: servers, devices, LIP ids (Pro), button groups, buttons,
// programming models, then scenes.
func (e *Engine) discoverLEAP() {
	e.discovering = true
	e.awaitingTelnet = false
	e.pendingModels = 0
	e.verifyPoll = false
	e.setState(StateDiscovery)
	e.logInfo("requesting bridge servers", "bridge", e.opts.BridgeID)
	e.sendLEAP(ServersRequest())
}

// discoverStatic installs the bridge as its only device and opens the
// Telnet session; the first prompt completes initialization.
func (e *Engine) discoverStatic() {
	e.discovering = true
	e.setState(StateDiscovery)
	bridge := Device{
		Href:               leapURLDevice + "1",
		ID:                 1,
		Name:               "Lutron Telnet",
		FullyQualifiedName: []string{"Lutron Telnet"},
		SerialNumber:       Serial(e.opts.BridgeID),
		ModelNumber:        "Lutron Telnet",
		DeviceType:         "LIPTelnet",
		NoDeviceList:       true,
	}
	e.dir.ReplaceDevices([]Device{bridge}, false)
	e.model = bridge.ModelNumber

	bridgeType, bridgeID := e.cap.Type, e.opts.BridgeID
	go func() {
		bundle, err := e.creds.Credentials(e.ctx, bridgeType, bridgeID)
		if err == nil && (bundle == nil || !bundle.HasLogin()) {
			err = ErrNoCredentials
		}
		e.post(func() {
			if !e.discovering {
				return
			}
			if err != nil {
				e.giveUp(fmt.Errorf("connect %s: %w", bridgeID, err))
				return
			}
			e.bundle = bundle
			e.connectLIP()
		})
	}()
}

// forgetOutstanding drops every counted reply, a pending ping included. The
// connection stays up.
func (e *Engine) forgetOutstanding() {
	e.corr.Reset()
	e.pingOutstanding = false
}

// handleRecord dispatches one LEAP record by body type.
func (e *Engine) handleRecord(raw []byte) {
	c, err := ParseCommunique(raw)
	if err != nil {
		e.logWarn("undecodable record from bridge", "bridge", e.opts.BridgeID, "error", err)
		e.forgetOutstanding()
		return
	}

	switch c.Header.MessageBodyType {
	case BodyPingResponse:
		e.corr.Satisfy(1)
		e.pingOutstanding = false
	case BodyServers:
		e.onServers(c)
	case BodyServer:
		e.onServer(c)
	case BodyDevices:
		e.onDevices(c, raw)
	case BodyLIPIdList:
		e.onLIPIdList(c)
	case BodyButtonGroups:
		e.onButtonGroups(c)
	case BodyButtons:
		e.onButtons(c)
	case BodyProgrammingModel:
		e.onProgrammingModel(c)
	case BodyVirtualButtons:
		e.onScenes(c, raw)
	case BodyZoneStatus:
		e.onZoneStatus(c)
	default:
		switch {
		case c.Header.StatusCode == statusNoContent || c.Header.StatusCode == statusCreated:
			e.corr.Satisfy(1)
		case c.CommuniqueType == communiqueException:
			// nothing outstanding can be trusted after a rejected command
			e.logError("bridge rejected request", fmt.Errorf("%w: %s", ErrProtocol, c.Header.StatusCode),
				"url", c.Header.URL, "body", string(c.Body))
			e.forgetOutstanding()
		default:
			e.logWarn("record from bridge ignored", "bridge", e.opts.BridgeID,
				"type", c.CommuniqueType, "body_type", c.Header.MessageBodyType, "url", c.Header.URL)
		}
	}
}

func (e *Engine) onServers(c *Communique) {
	e.corr.Satisfy(1)
	var body serversBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("server list", err)
		return
	}

	e.pro = false
	for _, s := range body.Servers {
		if s.Type != serverTypeLIP {
			continue
		}
		if s.EnableState != serverEnabled || s.LIPProperties == nil {
			e.logWarn("telnet integration is turned off, enabling it", "bridge", e.opts.BridgeID)
			e.sendLEAP(EnableServerRequest(s.Href))
			return
		}
		e.pro = true
		e.lipIDHref = s.LIPProperties.IDs.Href
	}
	e.logInfo("bridge servers", "bridge", e.opts.BridgeID, "pro", e.pro)
	e.sendLEAP(DevicesRequest())
}

// onServer answers the enable request sent for a disabled LIP server.
func (e *Engine) onServer(c *Communique) {
	e.corr.Satisfy(1)
	var body serverBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("server definition", err)
		return
	}
	s := body.Server
	if s.Type == serverTypeLIP && s.EnableState == serverEnabled && s.LIPProperties != nil {
		e.pro = true
		e.lipIDHref = s.LIPProperties.IDs.Href
		e.logWarn("telnet integration has been turned on", "bridge", e.opts.BridgeID)
	}
	e.sendLEAP(DevicesRequest())
}

func (e *Engine) onDevices(c *Communique, raw []byte) {
	e.corr.Satisfy(1)
	changed := e.dir.NoteDeviceDigest(Digest(raw))
	if changed {
		e.logInfo("bridge device list changed", "bridge", e.opts.BridgeID, "digest", e.dir.Digest())
	}
	if e.pollDevices {
		e.pollDevices = false
		e.verifyTopology(changed)
		e.publishSummary()
		return
	}
	if e.initialized {
		e.schedulePoll()
	}

	var body devicesBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("device list", err)
		return
	}
	e.dir.ReplaceDevices(body.Devices, !e.pro)
	if bridge, ok := e.dir.BridgeDevice(); ok {
		e.model = bridge.ModelNumber
		if id := BridgeIDFromSerial(bridge.SerialNumber); id != e.opts.BridgeID {
			e.logWarn("bridge serial does not match configured id", "bridge", e.opts.BridgeID, "serial_id", id)
		}
	}
	e.logDebug("bridge devices", "bridge", e.opts.BridgeID, "devices", len(body.Devices), "zones", len(e.dir.zones))

	if e.pro && e.lipIDHref != "" {
		e.sendLEAP(LIPIdListRequest(e.lipIDHref))
		return
	}
	e.sendLEAP(ButtonGroupsRequest())
}

func (e *Engine) onLIPIdList(c *Communique) {
	e.corr.Satisfy(1)
	var body lipIDListBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("LIP id list", err)
	} else {
		report := e.dir.MergeLIP(body.LIPIdList)
		e.logInfo("merged LIP ids", "bridge", e.opts.BridgeID, "matched", report.Matched,
			"unmatched", report.Unmatched, "mismatched", report.Mismatched)
	}
	e.sendLEAP(ButtonGroupsRequest())
}

func (e *Engine) onButtonGroups(c *Communique) {
	e.corr.Satisfy(1)
	var body buttonGroupsBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("button groups", err)
	} else {
		e.dir.ApplyButtonGroups(body.ButtonGroups)
	}
	e.sendLEAP(ButtonsRequest())
}

func (e *Engine) onButtons(c *Communique) {
	e.corr.Satisfy(1)
	var body buttonsBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("buttons", err)
		e.devicesReady()
		return
	}
	models := e.dir.ApplyButtons(body.Buttons)
	e.pendingModels = len(models)
	for _, m := range models {
		e.sendLEAP(ProgrammingModelRequest(m))
	}
	if e.pendingModels == 0 {
		e.devicesReady()
	}
}

func (e *Engine) onProgrammingModel(c *Communique) {
	e.corr.Satisfy(1)
	var body programmingModelBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("programming model", err)
	} else {
		n := hrefNumber(c.Header.URL, leapURLProgrammingModel)
		if n == 0 {
			n = hrefNumber(body.ProgrammingModel.Href, leapURLProgrammingModel)
		}
		e.dir.ApplyProgrammingModel(n, body.ProgrammingModel.Type)
	}
	if e.pendingModels > 0 {
		e.pendingModels--
		if e.pendingModels == 0 {
			e.devicesReady()
		}
	}
}

// devicesReady runs once the device chain, programming models included,
// has been applied.
func (e *Engine) devicesReady() {
	e.logInfo("bridge devices ready", "bridge", e.opts.BridgeID,
		"devices", len(e.dir.devices), "remotes", len(e.dir.picos))
	waiters := e.deviceWaiters
	e.deviceWaiters = nil
	triggerAll(waiters)
	e.publishSummary()
	if e.discovering {
		e.sendLEAP(ScenesRequest())
	}
}

func (e *Engine) onScenes(c *Communique, raw []byte) {
	e.corr.Satisfy(1)
	changed := e.dir.NoteSceneDigest(Digest(raw))
	if changed {
		e.logInfo("bridge scene list changed", "bridge", e.opts.BridgeID, "digest", e.dir.Digest())
	}
	if e.pollScenes {
		e.pollScenes = false
		e.verifyTopology(changed)
		e.publishSummary()
		return
	}

	var body virtualButtonsBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("scene list", err)
	} else {
		e.dir.ReplaceScenes(body.VirtualButtons)
	}
	waiters := e.sceneWaiters
	e.sceneWaiters = nil
	triggerAll(waiters)
	e.publishSummary()

	if !e.discovering {
		return
	}
	if e.pro && !e.telnetUp {
		e.awaitingTelnet = true
		e.connectLIP()
		return
	}
	e.completeInit()
}

// verifyTopology rediscovers when a poll after a resumed reconnect shows the
// topology changed while the engine was away.
func (e *Engine) verifyTopology(changed bool) {
	if !e.verifyPoll {
		return
	}
	if changed {
		e.logInfo("topology changed while disconnected, rediscovering", "bridge", e.opts.BridgeID)
		e.discoverLEAP()
		return
	}
	if !e.pollDevices && !e.pollScenes {
		e.verifyPoll = false
	}
}

func (e *Engine) onZoneStatus(c *Communique) {
	var body zoneStatusBody
	if err := c.DecodeBody(&body); err != nil {
		e.logError("zone status", err)
		return
	}
	href := body.ZoneStatus.Zone.Href
	requested := c.Header.URL == href+leapURLZoneStatusSuffix || c.Header.URL == href+leapURLCommandProcessorSfx
	if requested {
		e.corr.Satisfy(1)
	}
	zone := hrefNumber(href, leapURLZone)
	status := ZoneStatus{Level: body.ZoneStatus.Level, Zone: body.ZoneStatus.Zone}
	e.logInfo("zone status", "bridge", e.opts.BridgeID, "zone", zone, "level", status.Level, "requested", requested)

	if waiters, ok := e.zoneWaiters[zone]; ok {
		delete(e.zoneWaiters, zone)
		delivered := false
		for _, w := range waiters {
			if !w.fired {
				w.deliver(status)
				delivered = true
			}
		}
		if delivered {
			return
		}
	}

	// a Pro bridge reports unsolicited changes over Telnet as well
	if requested || !e.telnetUp {
		env := ZoneStatusEnvelope(e.opts.BridgeID, zone, status.Level)
		env.Header.URL = c.Header.URL
		e.sink.SendEvent(env)
	}
}

// handleLIPLine dispatches one Telnet line.
func (e *Engine) handleLIPLine(line string) {
	ev, err := ParseLIPLine(line)
	if err != nil {
		e.logWarn("malformed telnet line ignored", "bridge", e.opts.BridgeID, "line", line, "error", err)
		return
	}

	switch ev.Kind {
	case LIPOutput:
		requested := e.corr.Pending() > 0
		if requested {
			e.corr.Satisfy(1)
		}
		zone := e.dir.ZoneByDeviceID(ev.DeviceID)
		if zone == 0 {
			e.logDebug("level report for device without zone", "bridge", e.opts.BridgeID, "device", ev.DeviceID)
			return
		}
		e.logInfo("zone level report", "bridge", e.opts.BridgeID, "zone", zone, "level", ev.Level, "requested", requested)
		e.sink.SendEvent(ZoneStatusEnvelope(e.opts.BridgeID, zone, float64(ev.Level)))

	case LIPDeviceEvent:
		e.handleButtonEvent(ev)

	default:
		e.logDebug("telnet line", "bridge", e.opts.BridgeID, "line", line)
	}
}

func (e *Engine) handleButtonEvent(ev LIPEvent) {
	key := GestureKey{Bridge: e.opts.BridgeID, Device: ev.DeviceID, Button: ev.Button}
	switch ev.Op {
	case LIPPress:
		serial := e.opts.BridgeID
		if ev.DeviceID != SceneDevice {
			serial = e.dir.SerialByDeviceID(ev.DeviceID)
		}
		e.tracker.Press(key, serial, e.dir.ButtonMode(ev.DeviceID, ev.Button))
	case LIPRelease:
		e.tracker.Release(key)
	default:
		e.logDebug("button operation ignored", "bridge", e.opts.BridgeID,
			"device", ev.DeviceID, "button", ev.Button, "op", ev.Op)
	}
}
