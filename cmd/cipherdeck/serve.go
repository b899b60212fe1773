package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/server"
	"github.com/cipherdeck/cipherdeck/internal/table"
)

// ServeCmd runs the server.
type ServeCmd struct {
	Config      string `short:"c" env:"CIPHERDECK_CONFIG" default:"cipherdeck.hcl" help:"Path to HCL configuration file"`
	Addr        string `short:"a" env:"CIPHERDECK_ADDR" help:"Listen address (overrides config)"`
	LogLevel    string `short:"l" env:"CIPHERDECK_LOG_LEVEL" help:"Log level (overrides config)"`
	Seed        *int64 `help:"Deterministic shuffle seed (optional)"`
	FakeBackend bool   `env:"CIPHERDECK_FAKE_BACKEND" help:"Use the plaintext test backend instead of ElGamal"`

	// SweepInterval controls how often overdue tables are timed out.
	SweepInterval time.Duration `default:"5s" help:"How often to check tables for overdue actions"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		host, port, splitErr := splitHostPort(c.Addr)
		if splitErr != nil {
			return splitErr
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	var backend confidential.Backend
	if c.FakeBackend {
		logger.Warn("using plaintext fake backend, values are NOT confidential")
		backend = confidential.NewFakeBackend()
	} else {
		backend = confidential.NewElGamalBackend()
	}

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info("using deterministic seed", "seed", seed)
	}

	registry := table.NewRegistry(table.RegistryConfig{
		Backend:       backend,
		Logger:        logger,
		ActionTimeout: cfg.Timeout(),
		Seed:          seed,
	})

	srv := server.New(cfg, registry, logger)
	if err := srv.Bootstrap(); err != nil {
		return err
	}

	logger.Info("starting cipherdeck server",
		"addr", cfg.ListenAddr(),
		"tables", len(cfg.Tables),
		"action_timeout", cfg.Timeout())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		return sweepTimeouts(ctx, registry, c.SweepInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// sweepTimeouts periodically folds or forfeits seats that sat past the
// action timeout. Tables with nothing overdue report an invalid state,
// which the sweep ignores.
func sweepTimeouts(ctx context.Context, registry *table.Registry, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, sum := range registry.Summaries() {
				err := registry.ForceTimeout(sum.ID)
				if err != nil && !errors.Is(err, table.ErrInvalidState) {
					return err
				}
			}
		}
	}
}
