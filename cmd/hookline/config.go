package main

import (
	"log/slog"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
)

type appConfig struct {
	DatabaseURL      string `arg:"--database-url,env:DATABASE_URL" help:"Store connection string. postgres:// DSN or a SQLite file path. Empty runs the in-memory store."`
	RedisURL         string `arg:"--redis-url,env:REDIS_URL" help:"Queue broker URL (redis:// or rediss://). Empty runs the in-process queue."`
	Port             int    `arg:"-p,--port,env:PORT" default:"3000"`
	DevMode          bool   `arg:"--dev,env:DEV_MODE" default:"false"`
	LogLevel         string `arg:"--log-level,env:LOG_LEVEL" default:"default" help:"Log level: debug, info, or warn/warning. Default is info, or debug in dev mode."`
	MaxRetryAttempts int    `arg:"--max-retry-attempts,env:MAX_RETRY_ATTEMPTS" default:"3" help:"Delivery attempts per subscription, including the first."`
	Concurrency      int    `arg:"--webhook-concurrency,env:WEBHOOK_CONCURRENCY" default:"5" help:"Parallel delivery workers."`
	WebhookTimeout   int    `arg:"--webhook-timeout,env:WEBHOOK_TIMEOUT" default:"30000" help:"Per-attempt HTTP timeout in milliseconds."`
	ShutdownTimeout  int    `arg:"--shutdown-timeout,env:SHUTDOWN_TIMEOUT" default:"30" help:"Graceful shutdown window in seconds."`
}

func (appConfig) Description() string {
	return "hookline: durable event relay with signed webhook delivery"
}

func loadConfig() *appConfig {
	var cfg appConfig
	arg.MustParse(&cfg)

	if cfg.DevMode {
		if err := godotenv.Load(".env"); err == nil {
			// re-parse to pick up env vars from .env
			slog.Info("Loaded .env")
			arg.MustParse(&cfg)
		}
	}

	if cfg.LogLevel == "default" {
		if cfg.DevMode {
			logLevel.Set(slog.LevelDebug)
		} else {
			logLevel.Set(slog.LevelInfo)
		}
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			logLevel.Set(slog.LevelDebug)
		case "info":
			logLevel.Set(slog.LevelInfo)
		case "warn", "warning":
			logLevel.Set(slog.LevelWarn)
		default:
			slog.Error("Unable to configure log level", "level", cfg.LogLevel)
		}
	}

	return &cfg
}
