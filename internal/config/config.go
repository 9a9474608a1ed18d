// Package config loads process configuration from .env, the environment and flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every runtime setting. Flags override environment variables,
// which override defaults.
type Config struct {
	Port     string `name:"port" env:"PORT" default:"8080" help:"HTTP listen port."`
	Env      string `name:"env" env:"GO_ENV" default:"development" help:"Deployment environment; anything but development logs JSON."`
	LogLevel string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"trace,debug,info,warn,error" help:"Log level."`

	DatabaseURL string `name:"database-url" env:"DATABASE_URL" help:"Camera registry database; empty uses the demo registry."`

	BackendURL      string        `name:"backend-url" env:"BACKEND_URL" default:"http://localhost:3000" help:"Traffic operations backend base URL."`
	BackendAPIKey   string        `name:"backend-api-key" env:"BACKEND_API_KEY" help:"API key sent as X-API-Key."`
	BackendTimeout  time.Duration `name:"backend-timeout" env:"BACKEND_TIMEOUT" default:"10s" help:"Per request timeout."`
	BackendRetryMax int           `name:"backend-retry-max" env:"BACKEND_RETRY_MAX" default:"2" help:"Transport retries inside one fetch."`

	DensitySource     string        `name:"density-source" env:"DENSITY_SOURCE" default:"backend" enum:"backend,simulated" help:"Where density samples come from."`
	DensityInterval   time.Duration `name:"density-interval" env:"DENSITY_INTERVAL" default:"30s" help:"Density refresh interval."`
	DensityRiskCutoff float64       `name:"density-risk-cutoff" env:"DENSITY_RISK_CUTOFF" default:"0.7" help:"Intensity above which a point is a risk area."`
	ClosureInterval   time.Duration `name:"closure-interval" env:"CLOSURE_INTERVAL" default:"5m" help:"Lane closure refresh interval."`
	CameraInterval    time.Duration `name:"camera-interval" env:"CAMERA_INTERVAL" default:"2m" help:"Camera registry reload interval."`
	StaleAfterFactor  int           `name:"stale-after-factor" env:"STALE_AFTER_FACTOR" default:"3" help:"Snapshots are stale after this many missed intervals."`
	MatchTolerance    float64       `name:"match-tolerance" env:"MATCH_TOLERANCE" default:"0.001" help:"Camera to density point tolerance in degrees."`

	AlertTransport    string `name:"alert-transport" env:"ALERT_TRANSPORT" default:"websocket" enum:"websocket,redis,none" help:"Push alert transport."`
	AlertWSURL        string `name:"alert-ws-url" env:"ALERT_WS_URL" default:"ws://localhost:3000/ws/alerts" help:"Alert websocket endpoint."`
	AlertRedisURL     string `name:"alert-redis-url" env:"ALERT_REDIS_URL" default:"redis://localhost:6379/0" help:"Alert redis URL."`
	AlertRedisChannel string `name:"alert-redis-channel" env:"ALERT_REDIS_CHANNEL" default:"traffic:alerts" help:"Alert pub/sub channel."`
	AlertBufferSize   int    `name:"alert-buffer-size" env:"ALERT_BUFFER_SIZE" default:"200" help:"Alerts kept in memory."`
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	switch {
	case c.DensityInterval <= 0:
		return fmt.Errorf("density-interval must be positive")
	case c.ClosureInterval <= 0:
		return fmt.Errorf("closure-interval must be positive")
	case c.CameraInterval <= 0:
		return fmt.Errorf("camera-interval must be positive")
	case c.StaleAfterFactor < 1:
		return fmt.Errorf("stale-after-factor must be at least 1")
	case c.MatchTolerance <= 0:
		return fmt.Errorf("match-tolerance must be positive")
	case c.BackendRetryMax < 0:
		return fmt.Errorf("backend-retry-max must not be negative")
	case c.AlertBufferSize < 1:
		return fmt.Errorf("alert-buffer-size must be at least 1")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads .env when present, then parses args against the environment
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: failed to read .env: %w", err)
	}

	var cfg Config
	parser, err := kong.New(&cfg,
		kong.Name("trafficops"),
		kong.Description("Live traffic operations dashboard backend."),
	)
	if err != nil {
		return nil, fmt.Errorf("config: failed to build parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds the process logger: text in development, JSON elsewhere
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.IsDevelopment() {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
