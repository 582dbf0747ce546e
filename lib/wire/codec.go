// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"io"
	"strconv"
)

// Marshal encodes v as compact JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v. Numbers decoding into any-typed
// targets follow encoding/json defaults (float64), which is acceptable
// for the payload maps: handlers coerce through the helpers below.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Encoder is a JSON stream encoder. Type alias so consumers import
// only lib/wire, not encoding/json directly.
type Encoder = json.Encoder

// Decoder is a JSON stream decoder.
type Decoder = json.Decoder

// RawMessage is a raw encoded JSON value, used to delay decoding of
// action-specific payloads.
type RawMessage = json.RawMessage

// NewEncoder returns a JSON encoder writing self-delimiting values to
// w. One value per frame; no extra framing protocol is needed because
// the decoder consumes exactly one value per Decode call.
func NewEncoder(w io.Writer) *Encoder {
	return json.NewEncoder(w)
}

// NewDecoder returns a JSON decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return json.NewDecoder(r)
}

// PayloadString extracts a string field from a payload map. Returns
// "" when the field is absent or not a string.
func PayloadString(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

// PayloadInt extracts an integer field from a payload map. JSON
// decoding turns numbers into float64; callers also submit numeric
// strings from form fields, so both are accepted. The second return
// is false when the field is absent, empty, or not numeric.
func PayloadInt(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		if v == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
