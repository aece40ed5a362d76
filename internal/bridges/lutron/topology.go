package lutron

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Device is one bridge device as reported to the hub.
type Device struct {
	Href               string   `json:"href"`
	ID                 int      `json:"ID,omitempty"`
	Name               string   `json:"Name"`
	FullyQualifiedName []string `json:"FullyQualifiedName,omitempty"`
	SerialNumber       Serial   `json:"SerialNumber,omitempty"`
	ModelNumber        string   `json:"ModelNumber,omitempty"`
	DeviceType         string   `json:"DeviceType,omitempty"`
	LocalZones         []Href   `json:"LocalZones,omitempty"`
	Bridge             string   `json:"Bridge,omitempty"`
	NoDeviceList       bool     `json:"NoDeviceList,omitempty"`
}

// Scene is one programmed virtual button.
type Scene struct {
	Href   string `json:"href"`
	Name   string `json:"Name"`
	Bridge string `json:"Bridge"`
	Scene  int    `json:"Scene"`
}

// ButtonSetting is the hub-supplied behaviour of one LIP button.
type ButtonSetting struct {
	Mode   string `json:"mode"`
	To6Sec bool   `json:"to6Sec"`

	// leapIndex is the LEAP button number this LIP button maps to, or -1.
	leapIndex int
}

// rampMode is the hub mode name for repeat-while-held buttons.
const rampMode = "Press/Repeat"

// ButtonGroupEntry holds one remote's button mapping and behaviour.
// Buttons, PushTime and RepeatTime come from the hub and survive
// topology rebuilds.
type ButtonGroupEntry struct {
	Href            string
	ButtonGroupHref string
	DeviceID        int

	leapOffset   int
	leapButtons  map[int]int // LEAP button number → /button/N
	progModels   map[int]int // LEAP button number → /programmingmodel/N
	pressAndHold map[int]bool
	Buttons      map[int]ButtonSetting
	PushTime     time.Duration
	RepeatTime   time.Duration
}

func newButtonGroupEntry() *ButtonGroupEntry {
	return &ButtonGroupEntry{
		leapOffset:   defaultLEAPButtonOffset,
		leapButtons:  make(map[int]int),
		progModels:   make(map[int]int),
		pressAndHold: make(map[int]bool),
		Buttons:      make(map[int]ButtonSetting),
		PushTime:     DefaultPushTime,
		RepeatTime:   DefaultRepeatTime,
	}
}

// zoneEntry maps a zone index back to its owning device.
type zoneEntry struct {
	device  int // index into Directory.devices
	isShade bool
}

// MergeReport summarises a LIP-to-LEAP identity merge.
type MergeReport struct {
	Matched    int
	Unmatched  int
	Mismatched int
}

// Directory is the in-memory topology of one bridge. It is owned by its
// engine and only touched from the engine's loop goroutine.
type Directory struct {
	bridgeID string

	devices []Device
	zones   map[int]zoneEntry
	scenes  []Scene
	picos   map[Serial]*ButtonGroupEntry

	// pico lookup by programming model number
	progModelOwner map[int]Serial

	deviceDigest   string
	sceneDigest    string
	devicesUpdated bool
	scenesUpdated  bool

	// zonesAreIDs makes zone N and integration ID N interchangeable when
	// the bridge reports no zone list.
	zonesAreIDs bool
}

// NewDirectory creates an empty directory for bridgeID.
func NewDirectory(bridgeID string) *Directory {
	return &Directory{
		bridgeID:       bridgeID,
		zones:          make(map[int]zoneEntry),
		picos:          make(map[Serial]*ButtonGroupEntry),
		progModelOwner: make(map[int]Serial),
	}
}

// UseDeviceIDsAsZones treats zone numbers as integration IDs.
func (d *Directory) UseDeviceIDsAsZones() { d.zonesAreIDs = true }

// SetBridgeID updates the bridge ID stamped on devices and scenes.
func (d *Directory) SetBridgeID(id string) { d.bridgeID = id }

// NoteDeviceDigest records a device-list digest and reports whether it changed.
func (d *Directory) NoteDeviceDigest(digest string) bool {
	if digest == d.deviceDigest {
		return false
	}
	d.deviceDigest = digest
	d.devicesUpdated = true
	return true
}

// NoteSceneDigest records a scene-list digest and reports whether it changed.
func (d *Directory) NoteSceneDigest(digest string) bool {
	if digest == d.sceneDigest {
		return false
	}
	d.sceneDigest = digest
	d.scenesUpdated = true
	return true
}

// Digest returns the combined topology digest.
func (d *Directory) Digest() string { return d.deviceDigest + d.sceneDigest }

// ReplaceDevices installs a fresh device list and rebuilds the zone map.
// When indexIDs is set (no LIP source) each device's ID is its /device/N index.
func (d *Directory) ReplaceDevices(devices []Device, indexIDs bool) {
	d.devices = devices
	d.zones = make(map[int]zoneEntry)
	for i := range d.devices {
		dev := &d.devices[i]
		dev.Bridge = d.bridgeID
		if indexIDs {
			dev.ID = hrefNumber(dev.Href, leapURLDevice)
		}
		for _, z := range dev.LocalZones {
			zone := hrefNumber(z.Href, leapURLZone)
			if zone <= 0 {
				continue
			}
			d.zones[zone] = zoneEntry{device: i, isShade: strings.HasSuffix(dev.DeviceType, "Shade")}
		}
	}
}

// BridgeDevice returns the bridge's own device entry (/device/1).
func (d *Directory) BridgeDevice() (Device, bool) {
	for _, dev := range d.devices {
		if dev.Href == leapURLDevice+"1" {
			return dev, true
		}
	}
	return Device{}, false
}

// MergeLIP assigns LIP integration IDs to LEAP devices matched by name and,
// when the LIP entry names an area, by the first element of the LEAP
// fully-qualified name. Unmatched entries are counted, not errors.
func (d *Directory) MergeLIP(list LIPIdList) MergeReport {
	return MergeLIP(list, d.devices)
}

// MergeLIP applies the LIP-to-LEAP merge to devices in place.
func MergeLIP(list LIPIdList, devices []Device) MergeReport {
	entries := make([]LIPEntry, 0, len(list.Devices)+len(list.Zones))
	entries = append(entries, list.Devices...)
	entries = append(entries, list.Zones...)

	var report MergeReport
	for _, lip := range entries {
		matched := false
		for j := range devices {
			dev := &devices[j]
			if dev.ID != 0 || dev.Name != lip.Name {
				continue
			}
			if lip.Area != nil && (len(dev.FullyQualifiedName) < 2 || dev.FullyQualifiedName[0] != lip.Area.Name) {
				continue
			}
			dev.ID = lip.ID
			matched = true
			if lip.ID != hrefNumber(dev.Href, leapURLDevice) {
				report.Mismatched++
			}
			break
		}
		if matched {
			report.Matched++
		} else {
			report.Unmatched++
		}
	}
	return report
}

// ApplyButtonGroups registers one remote per button group whose parent is a
// known device. Hub-supplied button settings on existing entries are kept.
func (d *Directory) ApplyButtonGroups(groups []ButtonGroupDefinition) {
	d.progModelOwner = make(map[int]Serial)
	for _, g := range groups {
		dev, ok := d.deviceByHref(g.Parent.Href)
		if !ok {
			continue
		}
		fresh := newButtonGroupEntry()
		if old, ok := d.picos[dev.SerialNumber]; ok {
			fresh.Buttons = old.Buttons
			fresh.PushTime = old.PushTime
			fresh.RepeatTime = old.RepeatTime
		}
		fresh.Href = dev.Href
		fresh.ButtonGroupHref = g.Href
		fresh.DeviceID = dev.ID
		d.picos[dev.SerialNumber] = fresh
	}
}

// ApplyButtons records LEAP button numbers for known button groups and
// returns the programming models to query, in order.
func (d *Directory) ApplyButtons(buttons []ButtonDefinition) []int {
	var models []int
	for _, b := range buttons {
		sn, pico := d.picoByButtonGroup(b.Parent.Href)
		if pico == nil {
			continue
		}
		if b.ButtonNumber < pico.leapOffset {
			pico.leapOffset = b.ButtonNumber
		}
		pico.leapButtons[b.ButtonNumber] = hrefNumber(b.Href, leapURLButton)
		pm := hrefNumber(b.ProgrammingModel.Href, leapURLProgrammingModel)
		pico.progModels[b.ButtonNumber] = pm
		d.progModelOwner[pm] = sn
		models = append(models, pm)
	}
	d.reindexButtons()
	return models
}

// ApplyProgrammingModel records whether the button behind model n accepts
// press-and-hold.
func (d *Directory) ApplyProgrammingModel(n int, modelType string) bool {
	sn, ok := d.progModelOwner[n]
	if !ok {
		return false
	}
	pico := d.picos[sn]
	for button, pm := range pico.progModels {
		if pm == n {
			pico.pressAndHold[button] = modelType != singleActionProgramming
			return true
		}
	}
	return false
}

// ReplaceScenes installs the programmed subset of virtual buttons.
func (d *Directory) ReplaceScenes(buttons []VirtualButtonDefinition) {
	scenes := make([]Scene, 0, len(buttons))
	for _, b := range buttons {
		if !b.IsProgrammed {
			continue
		}
		scenes = append(scenes, Scene{
			Href:   b.Href,
			Name:   b.Name,
			Bridge: d.bridgeID,
			Scene:  hrefNumber(b.Href, leapURLVirtualButton),
		})
	}
	d.scenes = scenes
}

// Devices returns a copy of the device list.
func (d *Directory) Devices() []Device {
	out := make([]Device, len(d.devices))
	copy(out, d.devices)
	return out
}

// Scenes returns a copy of the scene list.
func (d *Directory) Scenes() []Scene {
	out := make([]Scene, len(d.scenes))
	copy(out, d.scenes)
	return out
}

// DevicesUpdated reports the device change flag, clearing it when reset is set.
func (d *Directory) DevicesUpdated(reset bool) bool {
	u := d.devicesUpdated
	if reset {
		d.devicesUpdated = false
	}
	return u
}

// ScenesUpdated reports the scene change flag, clearing it when reset is set.
func (d *Directory) ScenesUpdated(reset bool) bool {
	u := d.scenesUpdated
	if reset {
		d.scenesUpdated = false
	}
	return u
}

// Zones returns the known zone indices in ascending order.
func (d *Directory) Zones() []int {
	out := make([]int, 0, len(d.zones))
	for z := range d.zones {
		out = append(out, z)
	}
	sort.Ints(out)
	return out
}

// HasZones reports whether any zone map was built.
func (d *Directory) HasZones() bool { return len(d.zones) > 0 }

// IsShade reports whether the zone is driven by a shade.
func (d *Directory) IsShade(zone int) bool { return d.zones[zone].isShade }

// ZoneByName resolves a zone given as a number, "Name" or "Area:Name".
// It returns 0 when nothing matches.
func (d *Directory) ZoneByName(ref string) int {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n <= 0 {
			return 0
		}
		return n
	}

	var parts []string
	for _, p := range strings.Split(ref, ":") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return 0
	}
	name := parts[len(parts)-1]

	for _, zone := range d.Zones() {
		dev := d.devices[d.zones[zone].device]
		if dev.Name != name {
			continue
		}
		if len(parts) >= 2 && (len(dev.FullyQualifiedName) == 0 || dev.FullyQualifiedName[0] != parts[0]) {
			continue
		}
		return zone
	}
	return 0
}

// DeviceIDByZone returns deviceID when set, otherwise the ID of the device
// owning zone, or 0.
func (d *Directory) DeviceIDByZone(deviceID, zone int) int {
	if deviceID != 0 || zone == 0 {
		return deviceID
	}
	if d.zonesAreIDs && len(d.zones) == 0 {
		return zone
	}
	if e, ok := d.zones[zone]; ok {
		return d.devices[e.device].ID
	}
	return 0
}

// ZoneByDeviceID returns the lowest zone owned by the device with deviceID,
// or 0.
func (d *Directory) ZoneByDeviceID(deviceID int) int {
	if d.zonesAreIDs && len(d.zones) == 0 {
		return deviceID
	}
	for _, zone := range d.Zones() {
		if d.devices[d.zones[zone].device].ID == deviceID {
			return zone
		}
	}
	return 0
}

// SceneByRef resolves a scene by number or case-insensitive name.
func (d *Directory) SceneByRef(ref string) (int, bool) {
	ref = strings.TrimSpace(ref)
	for _, s := range d.scenes {
		if s.Href == leapURLVirtualButton+ref {
			return s.Scene, true
		}
	}
	for _, s := range d.scenes {
		if strings.EqualFold(s.Name, ref) {
			return s.Scene, true
		}
	}
	return 0, false
}

// DeviceByRef finds a device by serial number or case-insensitive name.
func (d *Directory) DeviceByRef(ref string) (Device, bool) {
	for _, dev := range d.devices {
		if dev.SerialNumber != "" && string(dev.SerialNumber) == ref {
			return dev, true
		}
	}
	for _, dev := range d.devices {
		if dev.Name != "" && strings.EqualFold(dev.Name, ref) {
			return dev, true
		}
	}
	return Device{}, false
}

// SerialByDeviceID returns the serial of the remote whose device ID matches.
func (d *Directory) SerialByDeviceID(deviceID int) string {
	for sn, p := range d.picos {
		if p.DeviceID == deviceID {
			return string(sn)
		}
	}
	for _, dev := range d.devices {
		if dev.ID == deviceID {
			return string(dev.SerialNumber)
		}
	}
	return ""
}

// Pico returns the remote registered under serial.
func (d *Directory) Pico(serial Serial) (*ButtonGroupEntry, bool) {
	p, ok := d.picos[serial]
	return p, ok
}

// EnsurePico returns the remote under serial, creating an empty one. Used
// where the bridge cannot enumerate remotes.
func (d *Directory) EnsurePico(serial Serial, deviceID int) *ButtonGroupEntry {
	p, ok := d.picos[serial]
	if !ok {
		p = newButtonGroupEntry()
		p.DeviceID = deviceID
		d.picos[serial] = p
	}
	return p
}

// SetButtonModes installs hub-supplied button settings for a remote.
// LIP buttons map, in ascending order, onto consecutive LEAP buttons
// starting at the remote's lowest LEAP button number.
func (d *Directory) SetButtonModes(p *ButtonGroupEntry, modes map[int]ButtonSetting, push, repeat time.Duration) {
	p.Buttons = make(map[int]ButtonSetting, len(modes))
	for b, s := range modes {
		p.Buttons[b] = s
	}
	p.PushTime = push
	if p.PushTime <= 0 {
		p.PushTime = DefaultPushTime
	}
	p.RepeatTime = repeat
	if p.RepeatTime <= 0 {
		p.RepeatTime = DefaultRepeatTime
	}
	d.reindexButtons()
}

// reindexButtons recomputes LIP→LEAP button indices for every remote.
func (d *Directory) reindexButtons() {
	for _, p := range d.picos {
		lip := make([]int, 0, len(p.Buttons))
		for b := range p.Buttons {
			lip = append(lip, b)
		}
		sort.Ints(lip)
		for i, b := range lip {
			s := p.Buttons[b]
			s.leapIndex = p.leapOffset + i
			p.Buttons[b] = s
		}
	}
}

// ButtonMode returns the gesture behaviour of a device's button.
func (d *Directory) ButtonMode(deviceID, button int) ButtonMode {
	mode := DefaultButtonMode()
	if deviceID == SceneDevice {
		mode.Policy = ReleasePress
		return mode
	}
	p := d.picoByDeviceID(deviceID)
	if p == nil {
		return mode
	}
	s, ok := p.Buttons[button]
	if !ok {
		// a lone entry for button 0 covers every button
		s, ok = p.Buttons[0]
		if !ok || len(p.Buttons) != 1 {
			return mode
		}
	}
	if s.To6Sec {
		mode.Policy = ReleaseLong
	}
	mode.RampHold = s.Mode == rampMode
	mode.PushTime = p.PushTime
	mode.RepeatTime = p.RepeatTime
	return mode
}

// LEAPButton resolves a remote's LIP button to its LEAP /button/N number and
// press-and-hold capability.
func (d *Directory) LEAPButton(serial Serial, button int) (leapButton int, pressAndHold bool, ok bool) {
	p, found := d.picos[serial]
	if !found {
		return 0, false, false
	}
	s, found := p.Buttons[button]
	if !found {
		return 0, false, false
	}
	n, found := p.leapButtons[s.leapIndex]
	if !found {
		return 0, false, false
	}
	return n, p.pressAndHold[s.leapIndex], true
}

func (d *Directory) picoByDeviceID(deviceID int) *ButtonGroupEntry {
	for _, dev := range d.devices {
		if dev.ID == deviceID {
			if p, ok := d.picos[dev.SerialNumber]; ok {
				return p
			}
		}
	}
	// remotes registered without a device list are keyed by their ID
	if p, ok := d.picos[Serial(strconv.Itoa(deviceID))]; ok {
		return p
	}
	return nil
}

func (d *Directory) picoByButtonGroup(href string) (Serial, *ButtonGroupEntry) {
	for sn, p := range d.picos {
		if p.ButtonGroupHref == href {
			return sn, p
		}
	}
	return "", nil
}

func (d *Directory) deviceByHref(href string) (Device, bool) {
	for _, dev := range d.devices {
		if dev.Href == href {
			return dev, true
		}
	}
	return Device{}, false
}
