// Package main implements fleetd, the fleetbus node daemon. It loads the
// configuration, bootstraps the providers, connects to the messaging fabric and
// serves requests until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/c360/fleetbus/bootstrap"
	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "fleetd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		cliCfg.usage()
		return nil
	}

	snap, err := config.NewLoader(slog.Default()).LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := setupLogger(snap, cliCfg.LogFormat)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("Starting fleetd",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"identity", snap.Identity())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, snap, bootstrap.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid", "providers", rt.Registry.Categories())
		return nil
	}

	return serve(ctx, rt, cliCfg)
}

// serve runs the daemon until ctx is done, then shuts down within the
// configured timeout.
func serve(ctx context.Context, rt *bootstrap.Runtime, cliCfg *CLIConfig) error {
	d, err := newDaemon(rt, cliCfg.Workers)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		if err := d.pool.Stop(cliCfg.ShutdownTimeout); err != nil {
			slog.Error("Worker pool did not drain", "error", err)
		}
		if err := rt.Close(shutdownCtx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
		slog.Info("fleetd shutdown complete")
	}()

	if err := d.subscribe(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := d.pool.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error { return d.receiveLoop(gctx) })
	g.Go(func() error { return d.registrationLoop(gctx) })

	if cliCfg.MetricsPort > 0 {
		server := metric.NewServer(cliCfg.MetricsPort, "/metrics", rt.Metrics)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			return server.Stop()
		})
		slog.Info("Serving metrics", "address", server.Address())
	}

	slog.Info("fleetd started", "topics", d.topics())
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Received shutdown signal")
	return nil
}
