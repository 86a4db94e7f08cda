// Copyright 2025 The indexer-kadena Authors
// This file is part of indexer-kadena.
//
// indexer-kadena is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// indexer-kadena is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with indexer-kadena. If not, see <http://www.gnu.org/licenses/>.

// indexerd is the Kadena chain indexer daemon. It backfills the block
// archive, follows the node's tip stream, repairs height gaps and keeps the
// account guard snapshot current, publishing every indexed block on an
// in-process bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/config"
	"github.com/0xneves/indexer-kadena/internal/dispatch"
	"github.com/0xneves/indexer-kadena/internal/hook"
	"github.com/0xneves/indexer-kadena/internal/objstore"
	"github.com/0xneves/indexer-kadena/internal/storage"
	syncer "github.com/0xneves/indexer-kadena/internal/sync"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Prometheus listen address, empty disables the endpoint",
		Value: "",
	}
)

func main() {
	app := &cli.App{
		Name:   "indexerd",
		Usage:  "Kadena chain indexer daemon",
		Flags:  []cli.Flag{verbosityFlag, metricsAddrFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := setupLogging(c.Int(verbosityFlag.Name)); err != nil {
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	client := chainweb.NewClient(cfg.BaseURL, cfg.Network)

	var objects *objstore.Store
	if cfg.Bucket != "" {
		if objects, err = objstore.New(ctx, cfg.Bucket); err != nil {
			return fmt.Errorf("open object store: %w", err)
		}
	}

	bus := dispatch.NewBus()
	service := syncer.NewService(cfg, store, client, objects, bus)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(ctx) })

	if cfg.HookURL != "" {
		notifier := hook.NewNotifier(bus, cfg.HookURL)
		g.Go(func() error { return notifier.Run(ctx) })
	}
	if cfg.HookListen != "" {
		server := hook.NewServer(cfg.HookListen, nil)
		g.Go(func() error { return server.Run(ctx) })
	}
	if addr := c.String(metricsAddrFlag.Name); addr != "" {
		g.Go(func() error { return serveMetrics(ctx, addr) })
	}

	log.Info("Indexer started", "network", cfg.Network, "node", cfg.BaseURL)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("Indexer stopped")
		return nil
	}
	return err
}

func setupLogging(verbosity int) error {
	if verbosity < 0 || verbosity > 5 {
		return fmt.Errorf("invalid verbosity %d, want 0-5", verbosity)
	}
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), false)
	log.SetDefault(log.NewLogger(handler))
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("Metrics listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
