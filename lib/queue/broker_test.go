// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gladiatordan/ResourceTracker/lib/testutil"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

var testSecret = []byte("test-shared-secret")

// startBroker runs a broker on an ephemeral port and returns a client
// attached to it. Both are torn down with the test.
func startBroker(t *testing.T) (*Broker, *Client) {
	t.Helper()

	broker, err := NewBroker(BrokerConfig{
		Address: "127.0.0.1:0",
		Secret:  testSecret,
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		broker.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "broker shutdown")
	})
	testutil.RequireClosed(t, broker.Ready(), 5*time.Second, "broker ready")

	client := NewClient(broker.Addr().String(), testSecret)
	t.Cleanup(client.Close)
	return broker, client
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	_, client := startBroker(t)
	ctx := context.Background()

	sent := wire.NewPacket(wire.TargetValidation, "get_resource_data", "core", nil, nil)
	if err := client.Publish(ctx, wire.ChannelIngress, sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, ok, err := client.ConsumePacket(ctx, wire.ChannelIngress, 5*time.Second)
	if err != nil {
		t.Fatalf("ConsumePacket: %v", err)
	}
	if !ok {
		t.Fatal("consume came back empty")
	}
	if got.ID != sent.ID || got.Action != sent.Action {
		t.Errorf("got packet %+v, want id=%q action=%q", got, sent.ID, sent.Action)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	broker, client := startBroker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		pkt := wire.NewPacket(wire.TargetValidation, fmt.Sprintf("action-%d", i), "core", nil, nil)
		if err := client.Publish(ctx, wire.ChannelIngress, pkt); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	reply := wire.SuccessReply(wire.NewID(), nil)
	if err := client.Publish(ctx, wire.ChannelWebEgress, reply); err != nil {
		t.Fatalf("Publish reply: %v", err)
	}

	if got := broker.Depth(wire.ChannelIngress); got != 3 {
		t.Errorf("ingress depth = %d, want 3", got)
	}
	if got := broker.Depth(wire.ChannelWebEgress); got != 1 {
		t.Errorf("web-egress depth = %d, want 1", got)
	}
	if got := broker.Depth("never-used"); got != 0 {
		t.Errorf("unknown channel depth = %d, want 0", got)
	}

	// Order within a channel is strict FIFO.
	for i := 0; i < 3; i++ {
		pkt, ok, err := client.ConsumePacket(ctx, wire.ChannelIngress, 5*time.Second)
		if err != nil || !ok {
			t.Fatalf("consume %d: ok=%v err=%v", i, ok, err)
		}
		if want := fmt.Sprintf("action-%d", i); pkt.Action != want {
			t.Errorf("consume %d = %q, want %q", i, pkt.Action, want)
		}
	}
}

func TestConsumeEmptyTimeout(t *testing.T) {
	_, client := startBroker(t)

	start := time.Now()
	_, ok, err := client.Consume(context.Background(), "idle-channel", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if ok {
		t.Fatal("consume from an empty channel returned a message")
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("consume returned after %v, before the wait expired", elapsed)
	}
}

func TestBadSecretRejected(t *testing.T) {
	broker, _ := startBroker(t)

	impostor := NewClient(broker.Addr().String(), []byte("wrong-secret"))
	defer impostor.Close()

	err := impostor.Publish(context.Background(), wire.ChannelIngress, wire.Packet{ID: "x"})
	if !errors.Is(err, ErrBadSecret) {
		t.Fatalf("Publish with wrong secret: err = %v, want ErrBadSecret", err)
	}
}

func TestUnreachableBrokerReportsUnavailable(t *testing.T) {
	client := NewClient("127.0.0.1:1", testSecret)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Publish(ctx, wire.ChannelIngress, wire.Packet{ID: "x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Publish to dead broker: err = %v, want ErrUnavailable", err)
	}
}

func TestConsumerWaitingBeforePublish(t *testing.T) {
	_, client := startBroker(t)
	ctx := context.Background()

	got := make(chan wire.Packet, 1)
	go func() {
		pkt, ok, err := client.ConsumePacket(ctx, wire.ChannelIngress, 10*time.Second)
		if err == nil && ok {
			got <- pkt
		}
	}()

	// Give the consumer time to be parked broker-side, then publish
	// on a second connection from the pool.
	time.Sleep(50 * time.Millisecond)
	sent := wire.NewPacket(wire.TargetDB, "query", "core", nil, nil)
	if err := client.Publish(ctx, wire.ChannelIngress, sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	pkt := testutil.RequireReceive(t, got, 10*time.Second, "parked consumer")
	if pkt.ID != sent.ID {
		t.Errorf("consumed packet id = %q, want %q", pkt.ID, sent.ID)
	}
}

func TestFrameCapAppliesPerFrame(t *testing.T) {
	_, client := startBroker(t)
	ctx := context.Background()

	// Well past maxFrameSize in cumulative traffic over the single
	// pooled connection, in both directions. Every frame is small, so
	// none may be refused.
	padding := strings.Repeat("x", 1024)
	const frames = 1200
	for i := 0; i < frames; i++ {
		pkt := wire.NewPacket(wire.TargetValidation, fmt.Sprintf("frame-%d", i), "core", nil,
			map[string]any{"padding": padding})
		if err := client.Publish(ctx, wire.ChannelIngress, pkt); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	for i := 0; i < frames; i++ {
		pkt, ok, err := client.ConsumePacket(ctx, wire.ChannelIngress, 5*time.Second)
		if err != nil || !ok {
			t.Fatalf("consume %d: ok=%v err=%v", i, ok, err)
		}
		if want := fmt.Sprintf("frame-%d", i); pkt.Action != want {
			t.Fatalf("consume %d = %q, want %q", i, pkt.Action, want)
		}
	}
}

func TestAnswerChallengeIsKeyed(t *testing.T) {
	nonce := []byte("0123456789abcdef0123456789abcdef")
	a := answerChallenge([]byte("secret-a"), nonce)
	b := answerChallenge([]byte("secret-b"), nonce)
	if string(a) == string(b) {
		t.Error("different secrets produced the same digest")
	}
	if string(a) != string(answerChallenge([]byte("secret-a"), nonce)) {
		t.Error("digest is not deterministic")
	}
}
