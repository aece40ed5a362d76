package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lutron-gateway/internal/gateway"
)

// acceptedResponse is the body of a command that reached the bridge.
type acceptedResponse struct {
	Status string `json:"status"`
	Op     string `json:"op"`
	Bridge string `json:"bridge"`
}

// handleListBridges returns every bridge's summary.
func (s *Server) handleListBridges(w http.ResponseWriter, _ *http.Request) {
	summaries := s.gateway.Summaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"bridges": summaries,
		"count":   len(summaries),
	})
}

// handleGetBridge returns one bridge's summary.
func (s *Server) handleGetBridge(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, gateway.OpSummary, gateway.CommandMessage{})
}

// handleDevices returns the bridge's device list. ?reset=1 clears the
// updated flag.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, gateway.OpDevices, gateway.CommandMessage{Reset: queryBool(r, "reset")})
}

// handleScenes returns the bridge's scene list.
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, gateway.OpScenes, gateway.CommandMessage{Reset: queryBool(r, "reset")})
}

// handleZoneStatus requests a zone's level. Telnet-only bridges answer with
// an event rather than a reply, so those requests return 202.
func (s *Server) handleZoneStatus(w http.ResponseWriter, r *http.Request) {
	cmd := gateway.CommandMessage{Zone: zoneParam(r)}
	id, err := queryInt(r, "id")
	if err != nil {
		writeBadRequest(w, "id must be an integer")
		return
	}
	cmd.DeviceID = id
	s.query(w, r, gateway.OpStatus, cmd)
}

// handleSetLevel sets a zone's level. Body: {"level": 0-100, "fade": seconds}.
func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	cmd, ok := zoneCommand(w, r)
	if !ok {
		return
	}
	s.command(w, r, gateway.OpSetLevel, cmd)
}

// handleChangeLevel starts or stops a raise or lower on a zone.
func (s *Server) handleChangeLevel(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "cmd")
	switch op {
	case gateway.OpRaise, gateway.OpLower, gateway.OpStop:
	default:
		writeBadRequest(w, "unknown zone command: "+op)
		return
	}
	cmd, ok := zoneCommand(w, r)
	if !ok {
		return
	}
	s.command(w, r, op, cmd)
}

// handleScene activates a scene. Body: {"scene": "name or number"}.
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	if cmd, ok := decodeCommand(w, r); ok {
		s.command(w, r, gateway.OpScene, cmd)
	}
}

// handleButton injects a remote button action.
// Body: {"serial": "...", "button": 2, "action": "pushed"}.
func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	if cmd, ok := decodeCommand(w, r); ok {
		s.command(w, r, gateway.OpButton, cmd)
	}
}

// handleButtonMode configures a remote's buttons.
// Body: {"serial": "...", "modes": {"2": {"mode": "repeat"}}, "push_ms": 500}.
func (s *Server) handleButtonMode(w http.ResponseWriter, r *http.Request) {
	if cmd, ok := decodeCommand(w, r); ok {
		s.command(w, r, gateway.OpButtonMode, cmd)
	}
}

// handleCommunique writes a raw LEAP communique. Body: {"communique": "..."}.
func (s *Server) handleCommunique(w http.ResponseWriter, r *http.Request) {
	if cmd, ok := decodeCommand(w, r); ok {
		s.command(w, r, gateway.OpCommunique, cmd)
	}
}

// handleRefresh asks the bridge to report every zone's level.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, gateway.OpRefresh, gateway.CommandMessage{})
}

// command runs a write operation and answers 202 on success.
func (s *Server) command(w http.ResponseWriter, r *http.Request, op string, cmd gateway.CommandMessage) {
	id := chi.URLParam(r, "id")
	cmd.ID = requestID(r)
	if _, err := s.gateway.Execute(r.Context(), id, op, cmd); err != nil {
		s.logger.Debug("bridge command failed", "bridge", id, "op", op, "error", err)
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Op: op, Bridge: id})
}

// query runs a read operation and answers with its result, or 202 when the
// result arrives later as an event.
func (s *Server) query(w http.ResponseWriter, r *http.Request, op string, cmd gateway.CommandMessage) {
	id := chi.URLParam(r, "id")
	cmd.ID = requestID(r)
	result, err := s.gateway.Execute(r.Context(), id, op, cmd)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Op: op, Bridge: id})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeCommand reads an optional JSON body into a command. It writes the
// error response and reports false on failure.
func decodeCommand(w http.ResponseWriter, r *http.Request) (gateway.CommandMessage, bool) {
	var cmd gateway.CommandMessage
	if r.Body == nil {
		return cmd, true
	}
	err := json.NewDecoder(r.Body).Decode(&cmd)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return cmd, true
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return cmd, false
		}
		writeBadRequest(w, "invalid JSON body")
		return cmd, false
	}
}

// zoneCommand decodes the body of a zone request and fills in the zone from
// the path and the integration ID from ?id=.
func zoneCommand(w http.ResponseWriter, r *http.Request) (gateway.CommandMessage, bool) {
	cmd, ok := decodeCommand(w, r)
	if !ok {
		return cmd, false
	}
	cmd.Zone = zoneParam(r)
	id, err := queryInt(r, "id")
	if err != nil {
		writeBadRequest(w, "id must be an integer")
		return cmd, false
	}
	if id != 0 {
		cmd.DeviceID = id
	}
	return cmd, true
}

// zoneParam returns the zone path segment, unescaped so names may carry
// spaces or slashes.
func zoneParam(r *http.Request) string {
	raw := chi.URLParam(r, "zone")
	if zone, err := url.PathUnescape(raw); err == nil {
		return zone
	}
	return raw
}

// queryInt parses an optional integer query parameter. Absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// queryBool reports whether a query flag is set to a true value.
func queryBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && b
}

// requestID returns the ID assigned by requestIDMiddleware.
func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyRequestID).(string) //nolint:errcheck // empty when absent
	return id
}
