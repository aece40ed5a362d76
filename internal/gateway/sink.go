package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/mqtt"
)

// sinkQueueSize is the buffer between engine loops and the delivery worker.
const sinkQueueSize = 256

// Publisher is the MQTT surface the gateway needs.
// Implemented by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Recorder stores time-series samples.
// Implemented by *influxdb.Client.
type Recorder interface {
	WriteZoneLevel(bridgeID string, zone int, level float64)
	WriteButtonAction(bridgeID, serial string, button int, action string)
	WriteBridgeState(bridgeID, state string, connected, telnet bool, devices int)
}

// Broadcaster pushes envelopes to live stream clients.
type Broadcaster interface {
	Broadcast(env lutron.Envelope)
}

// Logger is the logging surface used by the gateway.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Sink fans engine envelopes out to MQTT, stream clients and InfluxDB.
// SendEvent never blocks: envelopes are queued for one delivery worker, so
// per-bridge order is kept, and dropped when the queue is full.
type Sink struct {
	publisher   Publisher
	topics      mqtt.Topics
	recorder    Recorder
	broadcaster Broadcaster
	logger      Logger

	queue     chan lutron.Envelope
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// SinkConfig configures a Sink. Every collaborator is optional.
type SinkConfig struct {
	Publisher   Publisher
	Topics      mqtt.Topics
	Recorder    Recorder
	Broadcaster Broadcaster
	Logger      Logger
}

// NewSink creates a sink. Call Start before engines produce events.
func NewSink(cfg SinkConfig) *Sink {
	topics := cfg.Topics
	if topics.Prefix == "" {
		topics = mqtt.NewTopics("")
	}
	return &Sink{
		publisher:   cfg.Publisher,
		topics:      topics,
		recorder:    cfg.Recorder,
		broadcaster: cfg.Broadcaster,
		logger:      cfg.Logger,
		queue:       make(chan lutron.Envelope, sinkQueueSize),
		done:        make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (s *Sink) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.worker()
	})
}

// Stop delivers what is queued and stops the worker.
// Safe to call multiple times.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// SendEvent queues env for delivery. Implements lutron.HubSink.
func (s *Sink) SendEvent(env lutron.Envelope) {
	select {
	case <-s.done:
		s.dropped.Add(1)
		return
	default:
	}
	select {
	case s.queue <- env:
	default:
		s.dropped.Add(1)
		s.warn("event queue full, dropping envelope",
			"bridge", env.Header.Bridge,
			"type", env.Header.MessageBodyType)
	}
}

// Stats returns the delivered and dropped envelope counts.
func (s *Sink) Stats() (delivered, dropped uint64) {
	return s.delivered.Load(), s.dropped.Load()
}

func (s *Sink) worker() {
	defer s.wg.Done()
	for {
		select {
		case env := <-s.queue:
			s.deliver(env)
		case <-s.done:
			for {
				select {
				case env := <-s.queue:
					s.deliver(env)
				default:
					return
				}
			}
		}
	}
}

// deliver sends one envelope to every configured output.
func (s *Sink) deliver(env lutron.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.warn("envelope delivery panic recovered", "panic", fmt.Sprint(r))
		}
	}()

	bridgeID := env.Header.Bridge
	bodyType := env.Header.MessageBodyType

	payload, err := json.Marshal(env)
	if err != nil {
		s.warn("failed to marshal envelope", "bridge", bridgeID, "error", err)
		return
	}

	s.publish(s.topics.Event(bridgeID, bodyType), payload, false)

	switch bodyType {
	case lutron.EventZoneStatus:
		status, err := env.DecodeZoneStatus()
		if err != nil {
			s.warn("undecodable zone status", "bridge", bridgeID, "error", err)
			break
		}
		if zone := status.ZoneNumber(); zone > 0 {
			s.publish(s.topics.ZoneState(bridgeID, zone), payload, true)
			if s.recorder != nil {
				s.recorder.WriteZoneLevel(bridgeID, zone, status.Level)
			}
		}
	case lutron.EventButtonAction:
		action, err := env.DecodeButtonAction()
		if err != nil {
			s.warn("undecodable button action", "bridge", bridgeID, "error", err)
			break
		}
		if s.recorder != nil {
			s.recorder.WriteButtonAction(bridgeID, action.SerialNumber, action.Button, string(action.Action))
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(env)
	}
	s.delivered.Add(1)
}

func (s *Sink) publish(topic string, payload []byte, retained bool) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(topic, payload, 1, retained); err != nil {
		s.warn("failed to publish envelope", "topic", topic, "error", err)
	}
}

func (s *Sink) warn(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, keysAndValues...)
	}
}
