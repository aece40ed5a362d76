package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/mqtt"
)

const (
	// defaultInitRetryDelay is the wait before re-initializing a bridge
	// whose start failed.
	defaultInitRetryDelay = 30 * time.Second

	// defaultCommandTimeout bounds one MQTT command.
	defaultCommandTimeout = 30 * time.Second
)

// Engine is the per-bridge surface the gateway drives.
// Implemented by *lutron.Engine.
type Engine interface {
	BridgeID() string
	Initialize(ctx context.Context) error
	Stop()
	Summary() lutron.Summary
	UpdateAddress(address string)
	DeviceList(ctx context.Context, reset bool) (lutron.DeviceList, error)
	SceneList(ctx context.Context, reset bool) (lutron.SceneList, error)
	ZoneStatus(ctx context.Context, zone string, id int) (*lutron.ZoneStatus, error)
	SetZoneLevel(ctx context.Context, zone string, id int, level float64, fade int) error
	ChangeZoneLevel(ctx context.Context, zone string, id int, cmd string) error
	Scene(ctx context.Context, ref string) error
	RefreshZones(ctx context.Context) error
	ButtonAction(ctx context.Context, serial string, button int, action lutron.Action) error
	SetButtonMode(ctx context.Context, serial string, modes map[int]lutron.ButtonSetting, push, repeat time.Duration) error
	WriteCommunique(ctx context.Context, raw string) error
}

// EngineFactory builds the engine for one bridge.
type EngineFactory func(opts lutron.Options) (Engine, error)

// NewLutronEngine is the default EngineFactory.
func NewLutronEngine(opts lutron.Options) (Engine, error) {
	return lutron.NewEngine(opts)
}

// Options configures a Gateway.
type Options struct {
	// Config supplies the bridge list, gateway timings and MQTT prefix.
	// Required.
	Config *config.Config

	// Credentials supplies bundles to every engine. Required.
	Credentials lutron.CredentialSource

	// Publisher carries events, acks and health. Optional.
	Publisher Publisher

	// Recorder stores zone levels, button actions and bridge state. Optional.
	Recorder Recorder

	// Broadcaster feeds the live event stream. Optional.
	Broadcaster Broadcaster

	// Logger defaults to logging.Default().
	Logger *logging.Logger

	// Version is reported in health messages.
	Version string

	// NewEngine defaults to NewLutronEngine.
	NewEngine EngineFactory

	// InitRetryDelay defaults to 30 seconds.
	InitRetryDelay time.Duration
}

// bridge is one supervised engine.
type bridge struct {
	cfg     config.BridgeConfig
	engine  Engine
	devices atomic.Int64
}

// Gateway supervises one engine per configured bridge.
type Gateway struct {
	opts    Options
	topics  mqtt.Topics
	logger  *logging.Logger
	sink    *Sink
	health  *HealthReporter
	bridges map[string]*bridge
	order   []string

	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	stopping  bool
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	startTime time.Time
}

// New builds the gateway and one engine per configured bridge. Engines are
// not connected until Start.
func New(opts Options) (*Gateway, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("gateway: credential source is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.NewEngine == nil {
		opts.NewEngine = NewLutronEngine
	}
	if opts.InitRetryDelay <= 0 {
		opts.InitRetryDelay = defaultInitRetryDelay
	}

	g := &Gateway{
		opts:      opts,
		topics:    mqtt.NewTopics(opts.Config.MQTT.TopicPrefix),
		logger:    opts.Logger.With("component", "gateway"),
		bridges:   make(map[string]*bridge, len(opts.Config.Bridges)),
		startTime: time.Now(),
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.sink = NewSink(SinkConfig{
		Publisher:   opts.Publisher,
		Topics:      g.topics,
		Recorder:    opts.Recorder,
		Broadcaster: opts.Broadcaster,
		Logger:      g.logger,
	})

	for _, bc := range opts.Config.Bridges {
		id := strings.ToUpper(bc.ID)
		if _, dup := g.bridges[id]; dup {
			return nil, fmt.Errorf("gateway: bridge %s configured twice", id)
		}
		engine, err := opts.NewEngine(lutron.Options{
			BridgeID:    id,
			Type:        bc.Type,
			Address:     bc.Address,
			Model:       bc.Model,
			Credentials: opts.Credentials,
			Sink:        g.sink,
			Logger:      opts.Logger.ForBridge(id, bc.Type),
			LEAPPort:    bc.LEAPPort,
			LIPPort:     bc.LIPPort,
		})
		if err != nil {
			return nil, fmt.Errorf("gateway: bridge %s: %w", id, err)
		}
		g.bridges[id] = &bridge{cfg: bc, engine: engine}
		g.order = append(g.order, id)
	}

	g.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.Config.HealthInterval(),
		Publisher: opts.Publisher,
		Topics:    g.topics,
		Recorder:  opts.Recorder,
		Bridges:   g.healthSamples,
		StartTime: g.startTime,
		Logger:    g.logger,
	})
	return g, nil
}

// Start begins event delivery, subscribes to hub commands, starts health
// reporting and initializes every bridge in the background.
func (g *Gateway) Start(ctx context.Context) error {
	var err error
	g.startOnce.Do(func() {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		g.sink.Start()

		if g.opts.Publisher != nil {
			if serr := g.opts.Publisher.Subscribe(g.topics.AllCommands(), 1, g.HandleCommand); serr != nil {
				g.logger.Warn("command subscription failed, MQTT commands unavailable until reconnect",
					"topic", g.topics.AllCommands(), "error", serr)
			}
		}

		g.health.Start(g.ctx)

		for _, id := range g.order {
			b := g.bridges[id]
			g.goTracked(func() { g.initialize(b) })
		}
		g.logger.Info("gateway started", "bridges", len(g.order))
	})
	return err
}

// initialize brings one bridge up, retrying until it succeeds or the
// gateway stops.
func (g *Gateway) initialize(b *bridge) {
	id := b.engine.BridgeID()
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(g.ctx, g.opts.Config.InitTimeout())
		err := b.engine.Initialize(ctx)
		cancel()
		if err == nil {
			g.logger.Info("bridge initialized", "bridge", id, "attempt", attempt)
			g.refreshDeviceCount(b)
			return
		}
		if g.ctx.Err() != nil {
			return
		}
		g.logger.Warn("bridge initialization failed",
			"bridge", id,
			"attempt", attempt,
			"retry_in", g.opts.InitRetryDelay,
			"error", err)

		timer := time.NewTimer(g.opts.InitRetryDelay)
		select {
		case <-g.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// refreshDeviceCount samples the device list for health reporting.
func (g *Gateway) refreshDeviceCount(b *bridge) {
	ctx, cancel := context.WithTimeout(g.ctx, defaultCommandTimeout)
	defer cancel()
	list, err := b.engine.DeviceList(ctx, false)
	if err != nil {
		g.logger.Debug("device count unavailable", "bridge", b.engine.BridgeID(), "error", err)
		return
	}
	b.devices.Store(int64(len(list.Devices)))
}

// Stop halts health reporting, cancels pending starts, stops every engine and
// flushes queued events. Safe to call multiple times.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		g.mu.Lock()
		g.stopping = true
		g.mu.Unlock()
		g.cancel()
		g.wg.Wait()
		g.health.Stop(g.healthSamples())
		for _, id := range g.order {
			g.bridges[id].engine.Stop()
		}
		g.sink.Stop()
		delivered, dropped := g.sink.Stats()
		g.logger.Info("gateway stopped", "events_delivered", delivered, "events_dropped", dropped)
	})
}

// goTracked runs fn on a goroutine that Stop waits for. It reports false,
// without running fn, once Stop has begun.
func (g *Gateway) goTracked(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopping {
		return false
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
	return true
}

// Bridge returns the engine for id (case-insensitive).
func (g *Gateway) Bridge(id string) (Engine, bool) {
	b, ok := g.bridges[strings.ToUpper(id)]
	if !ok {
		return nil, false
	}
	return b.engine, true
}

// BridgeIDs returns the configured bridge IDs in configuration order.
func (g *Gateway) BridgeIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Summaries returns every bridge's summary in configuration order.
func (g *Gateway) Summaries() []lutron.Summary {
	out := make([]lutron.Summary, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.bridges[id].engine.Summary())
	}
	return out
}

// Discovered handles a discovery sighting. Known bridges get the new
// address; others are only logged.
func (g *Gateway) Discovered(bridgeID, address string, isUpdate bool) {
	b, ok := g.bridges[strings.ToUpper(bridgeID)]
	if !ok {
		g.logger.Info("unconfigured bridge discovered", "bridge", bridgeID, "address", address)
		return
	}
	if b.engine.Summary().Address == address {
		return
	}
	g.logger.Info("bridge address changed", "bridge", bridgeID, "address", address, "update", isUpdate)
	b.engine.UpdateAddress(address)
}

// Topics returns the MQTT topic builder in use.
func (g *Gateway) Topics() mqtt.Topics { return g.topics }

// healthSamples collects the summary and device count of every bridge.
func (g *Gateway) healthSamples() []BridgeSample {
	out := make([]BridgeSample, 0, len(g.order))
	for _, id := range g.order {
		b := g.bridges[id]
		out = append(out, BridgeSample{
			Summary: b.engine.Summary(),
			Devices: int(b.devices.Load()),
		})
	}
	return out
}
