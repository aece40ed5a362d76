package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
)

// Defaults for the browse.
const (
	DefaultService = "_lutron._tcp"
	DefaultDomain  = "local."

	// restartDelay spaces browse restarts after a resolver failure.
	restartDelay = 30 * time.Second
)

// ErrDisabled is returned by New when discovery is switched off.
var ErrDisabled = errors.New("discovery: disabled in configuration")

// Callback receives a sighting. isUpdate is false the first time a bridge
// is seen and true when a known bridge reports a new address.
type Callback func(bridgeID, address string, isUpdate bool)

// Browser runs an mDNS browse, delivering entries until ctx is done.
// *zeroconf.Resolver satisfies it.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Logger is the logging surface used by the Discoverer.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Discoverer tracks the bridges seen on the network.
type Discoverer struct {
	service  string
	domain   string
	browser  Browser
	callback Callback
	logger   Logger

	mu     sync.Mutex
	roster map[string]string // bridge ID to address
}

// New returns a Discoverer for cfg. browser may be nil to use a zeroconf
// resolver on all interfaces.
func New(cfg config.DiscoveryConfig, browser Browser, callback Callback, logger Logger) (*Discoverer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if callback == nil {
		return nil, errors.New("discovery: callback is required")
	}
	if browser == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		browser = resolver
	}

	d := &Discoverer{
		service:  cfg.Service,
		domain:   cfg.Domain,
		browser:  browser,
		callback: callback,
		logger:   logger,
		roster:   make(map[string]string),
	}
	if d.service == "" {
		d.service = DefaultService
	}
	if d.domain == "" {
		d.domain = DefaultDomain
	}
	return d, nil
}

// Run browses until ctx is cancelled, restarting the browse if the
// resolver fails.
func (d *Discoverer) Run(ctx context.Context) {
	for {
		entries := make(chan *zeroconf.ServiceEntry)
		if err := d.browser.Browse(ctx, d.service, d.domain, entries); err != nil {
			d.warn("mDNS browse failed", "service", d.service, "error", err)
		} else {
			d.consume(ctx, entries)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

func (d *Discoverer) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			d.handle(entry)
		}
	}
}

// handle records one entry and calls back on a new bridge or address.
func (d *Discoverer) handle(entry *zeroconf.ServiceEntry) {
	if entry == nil {
		return
	}
	bridgeID := BridgeID(entry.HostName, entry.Instance)
	address := Address(entry.AddrIPv4, entry.AddrIPv6)
	if bridgeID == "" || address == "" {
		return
	}

	d.mu.Lock()
	previous, known := d.roster[bridgeID]
	if known && previous == address {
		d.mu.Unlock()
		return
	}
	d.roster[bridgeID] = address
	d.mu.Unlock()

	if known {
		d.info("bridge address changed", "bridge", bridgeID, "from", previous, "to", address)
	} else {
		d.info("bridge found", "bridge", bridgeID, "address", address, "host", entry.HostName)
	}
	d.callback(bridgeID, address, known)
}

// Roster returns a copy of the bridges seen so far.
func (d *Discoverer) Roster() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.roster))
	for id, addr := range d.roster {
		out[id] = addr
	}
	return out
}

// BridgeID derives the bridge ID from an advertised host name
// ("lutron-0a1b2c3d.local." gives "0A1B2C3D"), falling back to the
// instance name.
func BridgeID(hostName, instance string) string {
	name := hostName
	if name == "" {
		name = instance
	}
	name = strings.TrimSuffix(name, ".")
	name = strings.TrimSuffix(strings.ToLower(name), ".local")
	name = strings.TrimPrefix(name, "lutron-")
	return strings.ToUpper(strings.TrimSpace(name))
}

// Address picks the first IPv4 address, else the first IPv6 one.
func Address(v4, v6 []net.IP) string {
	for _, ip := range v4 {
		if ip != nil {
			return ip.String()
		}
	}
	for _, ip := range v6 {
		if ip != nil {
			return ip.String()
		}
	}
	return ""
}

func (d *Discoverer) info(msg string, kv ...any) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *Discoverer) warn(msg string, kv ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, kv...)
	}
}
