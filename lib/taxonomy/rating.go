// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package taxonomy

import "math"

// Ratings holds the normalized quality of one spawn: a 0..1 rating
// per submitted stat and the arithmetic mean across them. All values
// are rounded to three decimals so recomputation from stored values
// is bit-identical.
type Ratings struct {
	// PerStat maps stat code → rating for every stat that was
	// submitted with a non-zero value.
	PerStat map[string]float64

	// Aggregate is the mean of PerStat, or 0 when nothing was
	// submitted.
	Aggregate float64
}

// ComputeRatings normalizes submitted stat values against the node's
// slot maxima. Values without a defined slot, zero values, and absent
// stats contribute nothing. The computation is deterministic: the
// same node and values always produce the same ratings, which is what
// makes stored ratings safe to recompute.
func ComputeRatings(node Node, values map[string]int64) Ratings {
	ratings := Ratings{PerStat: make(map[string]float64)}

	var sum float64
	for _, code := range StatCodes {
		value, ok := values[code]
		if !ok || value == 0 {
			continue
		}
		slot, ok := node.Slot(code)
		if !ok {
			continue
		}
		var r float64
		if slot.Max > 0 {
			r = round3(float64(value) / float64(slot.Max))
		}
		ratings.PerStat[code] = r
		sum += r
	}

	if len(ratings.PerStat) > 0 {
		ratings.Aggregate = round3(sum / float64(len(ratings.PerStat)))
	}
	return ratings
}

// round3 rounds to three decimal places, half to even, matching the
// rounding already baked into stored ratings.
func round3(v float64) float64 {
	return math.RoundToEven(v*1000) / 1000
}
