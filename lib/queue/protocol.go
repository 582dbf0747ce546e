// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// Frame operations. One frame per request, one response frame back.
const (
	opPublish = "publish"
	opConsume = "consume"
)

// request is the client→broker frame.
type request struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`

	// Message accompanies publish requests: the encoded packet or
	// reply, opaque to the broker.
	Message wire.RawMessage `json:"message,omitempty"`

	// TimeoutMillis bounds a consume request's wait. The broker
	// clamps it to maxConsumeWait.
	TimeoutMillis int64 `json:"timeout_ms,omitempty"`
}

// response is the broker→client frame. Empty distinguishes "no
// message within the wait" from an actual error: a consume timeout is
// a normal outcome, never a failure.
type response struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Message wire.RawMessage `json:"message,omitempty"`
	Empty   bool            `json:"empty,omitempty"`
}

// challenge is the broker's opening handshake frame.
type challenge struct {
	Nonce []byte `json:"nonce"`
}

// challengeAnswer is the client's handshake response: the
// HMAC-SHA256 of the nonce under the shared secret.
type challengeAnswer struct {
	Digest []byte `json:"digest"`
}

// challengeResult closes the handshake.
type challengeResult struct {
	OK bool `json:"ok"`
}

// answerChallenge computes the keyed digest for a handshake nonce.
func answerChallenge(secret, nonce []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(nonce)
	return mac.Sum(nil)
}

// frameDecoder decodes protocol frames from a connection, re-arming
// the size cap before every frame so maxFrameSize bounds each frame
// rather than the connection's total traffic.
type frameDecoder struct {
	limited *io.LimitedReader
	dec     *wire.Decoder
}

func newFrameDecoder(r io.Reader) *frameDecoder {
	limited := &io.LimitedReader{R: r, N: maxFrameSize}
	return &frameDecoder{limited: limited, dec: wire.NewDecoder(limited)}
}

func (d *frameDecoder) Decode(v any) error {
	d.limited.N = maxFrameSize
	return d.dec.Decode(v)
}
