package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/consultly/call-signaling/config"
	"github.com/consultly/call-signaling/internal/handlers"
	"github.com/consultly/call-signaling/internal/metrics"
	"github.com/consultly/call-signaling/internal/middleware"
	"github.com/consultly/call-signaling/internal/redis"
	"github.com/consultly/call-signaling/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg)
	zlog.Logger = log

	// Connect to Redis (call-session records)
	if err := redis.Connect(cfg.Redis); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redis.Close()
	log.Info().Msg("Redis connection established")

	m := metrics.New()
	rel := relay.New(log, m)
	m.RegisterRoomsGauge(func() float64 {
		rooms, _ := rel.Registry().Stats()
		return float64(rooms)
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Call-session API (the booking subsystem's record surface)
	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Create call session (requires JWT)
		apiGroup.POST("/sessions", middleware.JWTAuth(cfg.JWTSecret), handlers.CreateSession)

		// Get call session (public)
		apiGroup.GET("/sessions/:roomId", handlers.GetSession)

		// Persist recording artifact (requires JWT, consultant only)
		apiGroup.PATCH("/sessions/:roomId/recording", middleware.JWTAuth(cfg.JWTSecret), handlers.UpdateRecording)
	}

	// WebSocket signaling endpoint; rooms are joined in-band
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/call", handlers.HandleSignaling(rel, m, log))
	}

	log.Info().Str("port", cfg.Port).Msg("starting call-signaling server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.New(os.Stderr)
	if cfg.Environment == "development" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	return out.Level(level).With().Timestamp().Logger()
}
