package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/auth"
	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/gateway"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/logging"
)

// shutdownTimeout bounds how long Close waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// BridgeService is the gateway surface the API drives.
// Implemented by *gateway.Gateway.
type BridgeService interface {
	Summaries() []lutron.Summary
	Execute(ctx context.Context, bridgeID, op string, cmd gateway.CommandMessage) (any, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Gateway  BridgeService

	// Hub streams events to WebSocket clients. When nil the server creates
	// its own, which then receives no gateway events.
	Hub *Hub

	Version string
}

// Server is the gateway's front door: REST routes under /api/v1 and the
// WebSocket event stream. Create with New, then Start and Close.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	tokenCfg auth.TokenConfig
	logger   *logging.Logger
	gateway  BridgeService
	hub      *Hub
	tickets  *ticketStore
	version  string

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New validates deps and builds a server that is not yet listening.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Gateway == nil:
		return nil, errors.New("api: gateway is required")
	case deps.Security.JWT.Secret == "":
		return nil, errors.New("api: jwt secret is required")
	}
	if deps.WS.Path == "" {
		deps.WS.Path = "/ws"
	}

	s := &Server{
		cfg:   deps.Config,
		wsCfg: deps.WS,
		tokenCfg: auth.TokenConfig{
			Secret:     deps.Security.JWT.Secret,
			Issuer:     deps.Security.JWT.Issuer,
			TTLMinutes: deps.Security.JWT.AccessTokenTTL,
		},
		logger:  deps.Logger.With("component", "api"),
		gateway: deps.Gateway,
		hub:     deps.Hub,
		tickets: newTicketStore(),
		version: deps.Version,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start binds the listener, so an address in use is reported here, then
// serves in the background together with the hub and ticket cleanup.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	read := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	tlsOn := s.cfg.TLS.Enabled
	s.logger.Info("API server listening", "address", ln.Addr().String(), "tls", tlsOn)
	go func() {
		var err error
		if tlsOn {
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the hub and waits up to shutdownTimeout for in-flight
// requests before closing their connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// HealthCheck fails before Start or once ctx is done.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api: server not started")
	}
	return nil
}
