package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/config"
	"github.com/smartcity/trafficops/internal/delivery/http"
	"github.com/smartcity/trafficops/internal/repository/postgres"
	"github.com/smartcity/trafficops/internal/service"
	"github.com/smartcity/trafficops/internal/transport"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log := config.NewLogger(cfg)
	entry := log.WithFields(logrus.Fields{"service": "trafficops", "env": cfg.Env})

	// Camera registry
	var cameras service.CameraRepository
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err == nil {
			err = pool.Ping(ctx)
		}
		cancel()
		if err != nil {
			entry.WithError(err).Warn("Could not connect to database, using demo camera registry")
			if pool != nil {
				pool.Close()
			}
			cameras = postgres.NewMockRepository()
		} else {
			defer pool.Close()
			entry.Info("Connected to PostgreSQL")
			cameras = postgres.NewPostgresRepository(pool)
		}
	} else {
		entry.Info("No DATABASE_URL, using demo camera registry")
		cameras = postgres.NewMockRepository()
	}

	// Backend sources
	backend := service.NewBackendClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendTimeout, cfg.BackendRetryMax)
	if cfg.BackendAPIKey == "" {
		entry.Warn("BACKEND_API_KEY is empty, backend fetches will fail until it is set")
	}

	var density service.DensitySource = backend
	if cfg.DensitySource == "simulated" {
		entry.Warn("Using simulated traffic density, snapshots are marked as mock")
		density = service.NewSimulatedSource(time.Now().UnixNano())
	}

	alerts, closeAlerts := newAlertTransport(cfg, entry)
	defer closeAlerts()

	dash := service.NewDashboard(density, backend, alerts, cameras, service.DashboardOptions{
		DensityInterval:  cfg.DensityInterval,
		RiskCutoff:       cfg.DensityRiskCutoff,
		ClosureInterval:  cfg.ClosureInterval,
		CameraInterval:   cfg.CameraInterval,
		StaleAfterFactor: cfg.StaleAfterFactor,
		MatchTolerance:   cfg.MatchTolerance,
		AlertBufferSize:  cfg.AlertBufferSize,
	}, entry)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "Traffic Ops API v1.0",
		ReadTimeout:  10 * time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
		Output: log.Writer(),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	http.SetupRoutes(app, dash, entry)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	dash.Start(ctx)

	go func() {
		entry.WithField("port", cfg.Port).Info("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			entry.WithError(err).Fatal("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	entry.Info("Shutting down server...")
	dash.Stop()
	stop()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		entry.WithError(err).Warn("Server forced to shutdown")
	}
	entry.Info("Server exited gracefully")
}

// newAlertTransport builds the configured push transport and its cleanup
func newAlertTransport(cfg *config.Config, log *logrus.Entry) (service.AlertTransport, func()) {
	switch cfg.AlertTransport {
	case "websocket":
		return transport.NewWebSocketTransport(cfg.AlertWSURL, cfg.BackendAPIKey, log), func() {}
	case "redis":
		t, err := transport.NewRedisTransport(cfg.AlertRedisURL, cfg.AlertRedisChannel, log)
		if err != nil {
			log.WithError(err).Error("Redis alert transport unavailable, push alerts disabled")
			return nil, func() {}
		}
		return t, func() { _ = t.Close() }
	default:
		return nil, func() {}
	}
}
