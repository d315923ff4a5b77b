package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trigon_active_rooms",
		Help: "Number of live game rooms.",
	})

	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trigon_open_connections",
		Help: "Number of open websocket connections.",
	})

	// MovesTotal counts rule-checked moves by outcome:
	// applied, warned, blocked, forfeit, auto.
	MovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trigon_moves_total",
		Help: "Moves processed by outcome.",
	}, []string{"outcome"})

	CommandRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trigon_command_rejects_total",
		Help: "Client commands rejected, by error code.",
	}, []string{"code"})

	RoomsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trigon_rooms_swept_total",
		Help: "Stale rooms removed by the periodic sweep.",
	})
)
