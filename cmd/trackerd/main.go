// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Trackerd is the authoritative backend of the resource tracker. It
// hosts the queue-fabric broker the web and bot processes attach to,
// routes their packets, validates every mutation through the
// gatekeeper, and owns the SQLite database through the executor.
//
// Configuration comes from TRACKER_* environment variables; see
// lib/config. The process stops cleanly on SIGINT/SIGTERM. A
// gatekeeper hydration failure is fatal: the process exits rather than
// serving with empty caches.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gladiatordan/ResourceTracker/lib/config"
	"github.com/gladiatordan/ResourceTracker/lib/dbexec"
	"github.com/gladiatordan/ResourceTracker/lib/gatekeeper"
	"github.com/gladiatordan/ResourceTracker/lib/queue"
	"github.com/gladiatordan/ResourceTracker/lib/router"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// queueDepth buffers the in-process channels between the router and
// the two actors. The fabric queues are unbounded; these only need to
// absorb scheduling jitter.
const queueDepth = 256

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	broker, err := queue.NewBroker(queue.BrokerConfig{
		Address:    cfg.BrokerAddress,
		Secret:     []byte(cfg.BrokerSecret),
		Logger:     logger.With("component", "broker"),
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	pool, err := dbexec.OpenPool(dbexec.PoolConfig{
		Path:     cfg.DatabasePath,
		PoolSize: cfg.DatabasePoolSize,
		Logger:   logger.With("component", "dbpool"),
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	errCh := make(chan error, 8)
	serve := func(name string, fn func(context.Context) error) {
		go func() {
			if err := fn(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	serve("broker", broker.Serve)
	select {
	case <-broker.Ready():
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}

	client := queue.NewClient(broker.Addr().String(), []byte(cfg.BrokerSecret))
	defer client.Close()

	dbCommands := make(chan dbexec.Command, queueDepth)
	validation := make(chan wire.Packet, queueDepth)

	executor, err := dbexec.NewExecutor(dbexec.ExecutorConfig{
		Pool:       pool,
		Commands:   dbCommands,
		Logger:     logger.With("component", "executor"),
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	ingress, err := router.New(router.Config{
		Client:     client,
		Validation: validation,
		DB:         dbCommands,
		Logger:     logger.With("component", "router"),
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	keeper, err := gatekeeper.New(gatekeeper.Config{
		Commands:         validation,
		DB:               dbCommands,
		Client:           client,
		Logger:           logger.With("component", "gatekeeper"),
		RefreshInterval:  cfg.RefreshInterval,
		HydrationTimeout: cfg.HydrationTimeout,
		Registerer:       registry,
	})
	if err != nil {
		return err
	}

	serve("executor", executor.Serve)
	serve("gatekeeper", keeper.Serve)
	serve("router", ingress.Serve)

	if cfg.MetricsAddress != "" {
		metrics := &http.Server{
			Addr: cfg.MetricsAddress,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{
				ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
			}),
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metrics.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
		logger.Info("metrics listening", "address", cfg.MetricsAddress)
	}

	select {
	case <-keeper.Ready():
		logger.Info("tracker backend ready", "broker", broker.Addr().String())
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	}
}
