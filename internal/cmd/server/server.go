// Package server parses scoring server flags and composes the process
// entrypoint.
package server

import (
	"context"
	"flag"
	"fmt"
	"time"

	app "github.com/louisbranch/crease/internal/app/server"
	entrypoint "github.com/louisbranch/crease/internal/platform/cmd"
)

// Config holds scoring server command configuration.
type Config struct {
	HTTPAddr  string `env:"CREASE_HTTP_ADDR" envDefault:":8080"`
	DBPath    string `env:"CREASE_DB_PATH"   envDefault:"crease.db"`
	JWTSecret string `env:"CREASE_JWT_SECRET"`

	ReadHeaderTimeout time.Duration `env:"CREASE_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `env:"CREASE_SHUTDOWN_TIMEOUT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC secret for access tokens")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the scoring app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(context.Context) error {
		if err := app.Run(ctx, app.Config{
			HTTPAddr:          cfg.HTTPAddr,
			DBPath:            cfg.DBPath,
			JWTSecret:         cfg.JWTSecret,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ShutdownTimeout:   cfg.ShutdownTimeout,
		}); err != nil {
			return fmt.Errorf("serve scoring: %w", err)
		}
		return nil
	})
}
