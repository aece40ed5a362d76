package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
)

// Execute runs op against bridgeID. Query operations return their reply;
// the others return nil on success.
func (g *Gateway) Execute(ctx context.Context, bridgeID, op string, cmd CommandMessage) (any, error) {
	b, ok := g.bridges[strings.ToUpper(bridgeID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBridge, bridgeID)
	}
	op = strings.ToLower(op)
	result, err := execute(ctx, b.engine, op, cmd)
	if err == nil && op == OpDevices {
		if list, ok := result.(lutron.DeviceList); ok {
			b.devices.Store(int64(len(list.Devices)))
		}
	}
	return result, err
}

// execute dispatches one operation to an engine.
func execute(ctx context.Context, e Engine, op string, cmd CommandMessage) (any, error) {
	switch op {
	case OpSetLevel:
		if err := requireZone(cmd); err != nil {
			return nil, err
		}
		return nil, e.SetZoneLevel(ctx, cmd.Zone, cmd.DeviceID, cmd.Level, cmd.Fade)

	case OpRaise, OpLower, OpStop:
		if err := requireZone(cmd); err != nil {
			return nil, err
		}
		return nil, e.ChangeZoneLevel(ctx, cmd.Zone, cmd.DeviceID, op)

	case OpStatus:
		if err := requireZone(cmd); err != nil {
			return nil, err
		}
		status, err := e.ZoneStatus(ctx, cmd.Zone, cmd.DeviceID)
		if err != nil {
			return nil, err
		}
		// Telnet replies arrive as OneZoneStatus events, not here.
		if status == nil {
			return nil, nil
		}
		return status, nil

	case OpScene:
		if strings.TrimSpace(cmd.Scene) == "" {
			return nil, fmt.Errorf("%w: scene is required", ErrInvalidParameters)
		}
		return nil, e.Scene(ctx, cmd.Scene)

	case OpButton:
		action, err := parseAction(cmd.Action)
		if err != nil {
			return nil, err
		}
		if cmd.Serial == "" || cmd.Button <= 0 {
			return nil, fmt.Errorf("%w: serial and button are required", ErrInvalidParameters)
		}
		return nil, e.ButtonAction(ctx, cmd.Serial, cmd.Button, action)

	case OpButtonMode:
		if cmd.Serial == "" || len(cmd.Modes) == 0 {
			return nil, fmt.Errorf("%w: serial and modes are required", ErrInvalidParameters)
		}
		push := time.Duration(cmd.PushMS) * time.Millisecond
		repeat := time.Duration(cmd.RepeatMS) * time.Millisecond
		return nil, e.SetButtonMode(ctx, cmd.Serial, cmd.Modes, push, repeat)

	case OpCommunique:
		if strings.TrimSpace(cmd.Communique) == "" {
			return nil, fmt.Errorf("%w: communique is required", ErrInvalidParameters)
		}
		return nil, e.WriteCommunique(ctx, cmd.Communique)

	case OpRefresh:
		return nil, e.RefreshZones(ctx)

	case OpDevices:
		return e.DeviceList(ctx, cmd.Reset)

	case OpScenes:
		return e.SceneList(ctx, cmd.Reset)

	case OpSummary:
		return e.Summary(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

func requireZone(cmd CommandMessage) error {
	if strings.TrimSpace(cmd.Zone) == "" && cmd.DeviceID == 0 {
		return fmt.Errorf("%w: zone or device_id is required", ErrInvalidParameters)
	}
	return nil
}

// parseAction accepts the gesture names case-insensitively.
func parseAction(a lutron.Action) (lutron.Action, error) {
	switch act := lutron.Action(strings.ToLower(string(a))); act {
	case lutron.ActionClosed, lutron.ActionPushed, lutron.ActionHeld, lutron.ActionOpen:
		return act, nil
	default:
		return "", fmt.Errorf("%w: action %q", ErrInvalidParameters, a)
	}
}

// HandleCommand is the MQTT handler for lutron/command/{bridge}/{op}. The
// command runs on its own goroutine and is acknowledged on
// lutron/ack/{bridge}/{id}.
func (g *Gateway) HandleCommand(topic string, payload []byte) error {
	bridgeID, op, ok := g.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrUnknownOperation, topic)
	}

	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			cmd.ID = uuid.NewString()
			g.publishAck(bridgeID, op, cmd, nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err))
			return nil
		}
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	g.logger.Info("received command", "command_id", cmd.ID, "bridge", bridgeID, "op", op)

	started := g.goTracked(func() {
		ctx, cancel := context.WithTimeout(g.ctx, defaultCommandTimeout)
		defer cancel()
		result, err := g.Execute(ctx, bridgeID, op, cmd)
		if err != nil {
			g.logger.Warn("command failed",
				"command_id", cmd.ID, "bridge", bridgeID, "op", op, "error", err)
		}
		g.publishAck(bridgeID, op, cmd, result, err)
	})
	if !started {
		g.publishAck(bridgeID, op, cmd, nil, ErrStopped)
	}
	return nil
}

func (g *Gateway) publishAck(bridgeID, op string, cmd CommandMessage, result any, err error) {
	if g.opts.Publisher == nil {
		return
	}
	ack := NewAck(bridgeID, op, cmd, result, err)
	payload, merr := json.Marshal(ack)
	if merr != nil {
		g.logger.Error("failed to marshal ack", "command_id", cmd.ID, "error", merr)
		return
	}
	if perr := g.opts.Publisher.Publish(g.topics.Ack(bridgeID, cmd.ID), payload, 1, false); perr != nil {
		g.logger.Warn("failed to publish ack", "command_id", cmd.ID, "error", perr)
	}
}
