package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"trigon_server/internal/config"
	"trigon_server/internal/http/handlers"
	"trigon_server/internal/limiter"
	"trigon_server/internal/logger"
	"trigon_server/internal/metrics"
	"trigon_server/internal/room"
	"trigon_server/internal/ws"
)

var Version = "dev"

func main() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Init(logLevel, os.Getenv("LOG_FORMAT") == "json")
	log := logger.Get()

	cfg := config.Load()

	manager := room.NewManager(room.Config{
		MaxRooms:    cfg.MaxRooms,
		GracePeriod: cfg.GracePeriod,
		DefaultSettings: room.Settings{
			Rules:        room.DefaultRules(),
			BlitzEnabled: false,
			BlitzSeconds: cfg.BlitzDefaultSeconds,
		},
	})

	limits := limiter.New(limiter.Config{
		MaxConnections:  cfg.MaxConnectionsPerOrigin,
		RoomCooldown:    cfg.RoomCreateCooldown,
		MovesPerMinute:  cfg.MovesPerMinute,
		EventsPerMinute: cfg.EventsPerMinute,
	})

	gateway := ws.NewGateway(manager, limits)

	r := gin.Default()

	// CORS so a frontend on a different domain can reach the API.
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	h := handlers.New(gateway, manager, limits, cfg)
	h.RegisterRoutes(r)

	// Background sweeps: stale rooms and idle limiter buckets.
	stopSweeps := make(chan struct{})
	go func() {
		roomTicker := time.NewTicker(cfg.RoomSweepInterval)
		limiterTicker := time.NewTicker(cfg.LimiterSweepInterval)
		defer roomTicker.Stop()
		defer limiterTicker.Stop()
		for {
			select {
			case <-stopSweeps:
				return
			case <-roomTicker.C:
				if n := manager.CleanupStaleRooms(cfg.RoomMaxAge); n > 0 {
					metrics.RoomsSwept.Add(float64(n))
					metrics.ActiveRooms.Set(float64(manager.RoomCount()))
					log.Info("stale rooms swept", "count", n)
				}
			case <-limiterTicker.C:
				if n := limits.Sweep(); n > 0 {
					log.Debug("idle limiter buckets swept", "count", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	close(stopSweeps)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
