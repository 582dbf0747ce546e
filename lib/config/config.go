// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the backend's environment configuration. The
// tracker is configured exclusively through TRACKER_* variables so the
// same binary runs unchanged under systemd, a container, or a test
// harness.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the backend process configuration.
type Config struct {
	// BrokerAddress is the local TCP address the queue-fabric broker
	// binds and clients attach to.
	BrokerAddress string `env:"TRACKER_BROKER_ADDRESS" envDefault:"127.0.0.1:7474"`

	// BrokerSecret is the shared secret gating broker attachment.
	BrokerSecret string `env:"TRACKER_BROKER_SECRET,required,notEmpty"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `env:"TRACKER_DB_PATH" envDefault:"tracker.db"`

	// DatabasePoolSize caps the connection pool. Zero means the
	// pool's own default.
	DatabasePoolSize int `env:"TRACKER_DB_POOL_SIZE"`

	// RefreshInterval is the gatekeeper's permission refresh period.
	RefreshInterval time.Duration `env:"TRACKER_REFRESH_INTERVAL" envDefault:"30s"`

	// HydrationTimeout bounds each gatekeeper hydration dataset.
	HydrationTimeout time.Duration `env:"TRACKER_HYDRATION_TIMEOUT" envDefault:"30s"`

	// MetricsAddress is the Prometheus listen address. Empty
	// disables the metrics endpoint.
	MetricsAddress string `env:"TRACKER_METRICS_ADDRESS"`

	// LogLevel is the slog level for the process logger.
	LogLevel slog.Level `env:"TRACKER_LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
