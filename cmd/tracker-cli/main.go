// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Tracker-cli is the administrative client for a running trackerd. It
// attaches to the broker, sends one command through the correlation
// layer, and prints the reply as JSON. Because it holds the broker
// secret it may address the database executor directly with --target
// db, which no end-user surface can.
//
//	TRACKER_BROKER_SECRET=... tracker-cli --action get_taxonomy_data
//	tracker-cli --action add_resource --server core \
//	    --payload '{"type":"Desh Copper","name":"kovah","res_oq":512,...}' \
//	    --user-id 42 --role ADMIN
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/spf13/pflag"

	"github.com/gladiatordan/ResourceTracker/lib/correlate"
	"github.com/gladiatordan/ResourceTracker/lib/queue"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		brokerAddress string
		secret        string
		target        string
		action        string
		serverID      string
		payloadJSON   string
		userID        string
		username      string
		globalRole    string
		timeout       time.Duration
		verbose       bool
	)

	pflag.StringVar(&brokerAddress, "broker", "127.0.0.1:7474", "broker address")
	pflag.StringVar(&secret, "secret", os.Getenv("TRACKER_BROKER_SECRET"), "broker shared secret (default $TRACKER_BROKER_SECRET)")
	pflag.StringVar(&target, "target", wire.TargetValidation, "packet target (validation or db)")
	pflag.StringVar(&action, "action", "", "action to invoke (required)")
	pflag.StringVar(&serverID, "server", wire.DefaultServerID, "tenant server id")
	pflag.StringVar(&payloadJSON, "payload", "{}", "action payload as a JSON object")
	pflag.StringVar(&userID, "user-id", "", "acting user id")
	pflag.StringVar(&username, "username", "", "acting username")
	pflag.StringVar(&globalRole, "role", "", "acting user's global role")
	pflag.DurationVar(&timeout, "timeout", 10*time.Second, "reply wait before giving up")
	pflag.BoolVar(&verbose, "verbose", false, "log transport details to stderr")
	pflag.Parse()

	if action == "" {
		return fmt.Errorf("--action is required")
	}
	if secret == "" {
		return fmt.Errorf("--secret or TRACKER_BROKER_SECRET is required")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing --payload: %w", err)
	}

	var userCtx *wire.UserContext
	if userID != "" {
		userCtx = &wire.UserContext{
			UserID:     userID,
			Username:   username,
			GlobalRole: globalRole,
		}
	}

	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := queue.NewClient(brokerAddress, []byte(secret))
	defer client.Close()

	// Each invocation drains its own throwaway egress channel; the
	// broker creates it on first use and nothing else consumes it.
	mailbox, err := correlate.New(correlate.Config{
		Client: client,
		Egress: "cli-" + wire.NewID(),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	go mailbox.Serve(ctx)

	packet := wire.NewPacket(target, action, serverID, userCtx, payload)
	reply, err := mailbox.Send(ctx, packet, timeout)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}
	fmt.Println(string(out))

	if !reply.OK() {
		os.Exit(1)
	}
	return nil
}
