package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/lutron-gateway/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		middleware.RequestSize(s.maxBodyBytes()),
	)

	r.Get("/health", s.handleHealth)

	// Event stream (auth via ticket or bearer, validated in handler)
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/auth/me", s.handleWhoAmI)

			r.With(requirePermission(auth.PermBridgeRead)).Get("/bridges", s.handleListBridges)

			r.Route("/bridges/{id}", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(requirePermission(auth.PermBridgeRead))
					r.Get("/", s.handleGetBridge)
					r.Get("/devices", s.handleDevices)
					r.Get("/scenes", s.handleScenes)
					r.Get("/zones/{zone}", s.handleZoneStatus)
				})

				r.Group(func(r chi.Router) {
					r.Use(requirePermission(auth.PermZoneOperate))
					r.Post("/zones/{zone}/level", s.handleSetLevel)
					r.Post("/zones/{zone}/{cmd}", s.handleChangeLevel)
					r.Post("/refresh", s.handleRefresh)
				})

				r.With(requirePermission(auth.PermSceneExecute)).Post("/scene", s.handleScene)
				r.With(requirePermission(auth.PermButtonOperate)).Post("/buttons", s.handleButton)
				r.With(requirePermission(auth.PermBridgeManage)).Put("/buttonmode", s.handleButtonMode)
				r.With(requirePermission(auth.PermRawCommand)).Post("/communique", s.handleCommunique)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"bridges": len(s.gateway.Summaries()),
		"clients": s.hub.ClientCount(),
	})
}
