// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

func TestFIFOOrdering(t *testing.T) {
	q := newFIFO()
	for i := 0; i < 5; i++ {
		q.push(wire.RawMessage(fmt.Sprintf("%d", i)))
	}
	for i := 0; i < 5; i++ {
		m, ok := q.pop(time.Second)
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		if got, want := string(m), fmt.Sprintf("%d", i); got != want {
			t.Errorf("pop %d = %q, want %q", i, got, want)
		}
	}
	if q.depth() != 0 {
		t.Errorf("depth = %d after draining, want 0", q.depth())
	}
}

func TestFIFOPopTimeout(t *testing.T) {
	q := newFIFO()
	start := time.Now()
	_, ok := q.pop(20 * time.Millisecond)
	if ok {
		t.Fatal("pop returned a message from an empty queue")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("pop returned after %v, before the timeout", elapsed)
	}
}

func TestFIFOPopWakesOnPush(t *testing.T) {
	q := newFIFO()
	done := make(chan string, 1)
	go func() {
		m, ok := q.pop(5 * time.Second)
		if !ok {
			done <- ""
			return
		}
		done <- string(m)
	}()

	time.Sleep(10 * time.Millisecond)
	q.push(wire.RawMessage(`"hello"`))

	select {
	case got := <-done:
		if got != `"hello"` {
			t.Errorf("pop = %q, want %q", got, `"hello"`)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pop never woke up after push")
	}
}

func TestFIFOConcurrentConsumers(t *testing.T) {
	q := newFIFO()
	const n = 20
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			m, ok := q.pop(5 * time.Second)
			if ok {
				results <- string(m)
			}
		}()
	}
	for i := 0; i < n; i++ {
		q.push(wire.RawMessage(fmt.Sprintf("%d", i)))
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		select {
		case m := <-results:
			if seen[m] {
				t.Fatalf("message %q delivered twice", m)
			}
			seen[m] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d messages delivered", i, n)
		}
	}
}
