package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/simcore/internal/config"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/injector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "simd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		addr       = flag.String("addr", "", "listen address, overrides the config")
		agents     = flag.Int("agents", 16, "number of wandering agents in the demo scenario, 0 for an empty world")
		seed       = flag.Uint64("seed", 1, "demo scenario seed")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return err
		}
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if *agents > 0 {
		d, err := newDemo(app.World, *agents, *seed, app.Logger)
		if err != nil {
			return fmt.Errorf("demo scenario: %w", err)
		}
		defer d.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Logger.Info("starting simd", log.String("addr", cfg.Server.ListenAddr), log.Int("agents", *agents))
	return app.Server.Run(ctx)
}
