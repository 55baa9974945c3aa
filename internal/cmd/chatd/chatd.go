// Package chatd parses chat server flags and composes the server entrypoint.
package chatd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/critterchat/critterchat/internal/platform/cmd"
	server "github.com/critterchat/critterchat/internal/services/chat/app"
)

// Config holds chat server configuration.
type Config struct {
	HTTPAddr        string        `env:"CRITTERCHAT_HTTP_ADDR"        envDefault:":8080"`
	StoragePath     string        `env:"CRITTERCHAT_STORAGE_PATH"     envDefault:"critterchat.sqlite"`
	SessionSecret   string        `env:"CRITTERCHAT_SESSION_SECRET"`
	AccountBase     string        `env:"CRITTERCHAT_ACCOUNT_BASE"`
	ShutdownTimeout time.Duration `env:"CRITTERCHAT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "chat HTTP listen address")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "sqlite database path")
	fs.StringVar(&cfg.SessionSecret, "session-secret", cfg.SessionSecret, "session token signing secret")
	fs.StringVar(&cfg.AccountBase, "account-base", cfg.AccountBase, "host for federated @user@host handles")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the chat app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.SessionSecret == "" {
		return errors.New("session secret is required")
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceChatd, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:        cfg.HTTPAddr,
			StoragePath:     cfg.StoragePath,
			SessionSecret:   cfg.SessionSecret,
			AccountBase:     cfg.AccountBase,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}); err != nil {
			return fmt.Errorf("serve chat: %w", err)
		}
		return nil
	})
}
