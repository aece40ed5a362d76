package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/mqtt"
)

// BridgeSample is one bridge's state at a health tick.
type BridgeSample struct {
	Summary lutron.Summary
	Devices int
}

// HealthReporter publishes retained per-bridge health at a fixed interval
// and records bridge state samples.
type HealthReporter struct {
	version   string
	interval  time.Duration
	publisher Publisher
	topics    mqtt.Topics
	recorder  Recorder
	bridges   func() []BridgeSample
	startTime time.Time
	logger    Logger

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher Publisher
	Topics    mqtt.Topics
	Recorder  Recorder

	// Bridges samples every bridge. Required.
	Bridges func() []BridgeSample

	StartTime time.Time
	Logger    Logger
}

// NewHealthReporter creates a health reporter. Call Start to begin.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	start := cfg.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	topics := cfg.Topics
	if topics.Prefix == "" {
		topics = mqtt.NewTopics("")
	}
	bridges := cfg.Bridges
	if bridges == nil {
		bridges = func() []BridgeSample { return nil }
	}
	return &HealthReporter{
		version:   cfg.Version,
		interval:  interval,
		publisher: cfg.Publisher,
		topics:    topics,
		recorder:  cfg.Recorder,
		bridges:   bridges,
		startTime: start,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		h.wg.Add(1)
		go h.reportLoop(ctx)
	})
}

// Stop ends reporting and publishes a final stopping status for each of
// final. Safe to call multiple times.
func (h *HealthReporter) Stop(final []BridgeSample) {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		for _, s := range final {
			msg := NewHealthMessage(s.Summary, h.version, s.Devices, h.startTime)
			msg.Status = HealthStopping
			msg.Reason = "gateway shutting down"
			//nolint:errcheck // best-effort during shutdown
			h.publish(msg)
		}
	})
}

// PublishNow reports every bridge immediately.
func (h *HealthReporter) PublishNow() error {
	var firstErr error
	for _, s := range h.bridges() {
		msg := NewHealthMessage(s.Summary, h.version, s.Devices, h.startTime)
		if err := h.publish(msg); err != nil && firstErr == nil {
			firstErr = err
		}
		if h.recorder != nil {
			h.recorder.WriteBridgeState(s.Summary.BridgeID, s.Summary.State,
				s.Summary.Connected, s.Summary.TelnetUp, s.Devices)
		}
	}
	return firstErr
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logWarn("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logWarn("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling health: %w", err)
	}
	return h.publisher.Publish(h.topics.Health(msg.Bridge), payload, 1, true)
}

func (h *HealthReporter) logWarn(msg string, err error) {
	if h.logger != nil {
		h.logger.Warn(msg, "error", err)
	}
}
