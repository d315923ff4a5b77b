package handlers

import (
	"trigon_server/internal/config"
	"trigon_server/internal/limiter"
	"trigon_server/internal/room"
	"trigon_server/internal/ws"
)

// Handler bundles the server's long-lived components for the route funcs.
type Handler struct {
	Gateway *ws.Gateway
	Manager *room.Manager
	Limits  *limiter.Limiter
	Cfg     *config.Config
}

func New(gw *ws.Gateway, m *room.Manager, l *limiter.Limiter, cfg *config.Config) *Handler {
	return &Handler{Gateway: gw, Manager: m, Limits: l, Cfg: cfg}
}
