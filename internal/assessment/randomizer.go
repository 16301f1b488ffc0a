package assessment

import (
	"math/rand"
	"unicode/utf16"
)

// RNG yields floats in [0,1).
type RNG func() float64

const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
	twoPow32      = 4294967296.0
)

// Seeded returns a generator that is a pure function of seed. An empty seed
// asks for a non-deterministic source instead.
func Seeded(seed string) RNG {
	if seed == "" {
		return rand.Float64
	}
	state := HashSeed(seed)
	return func() float64 {
		state = state*lcgMultiplier + lcgIncrement
		return float64(state) / twoPow32
	}
}

// HashSeed folds a string into 32 bits with hash = hash*31 + code unit. Code
// units are UTF-16 so the value matches browser-side implementations.
func HashSeed(seed string) uint32 {
	var h uint32
	for _, u := range utf16.Encode([]rune(seed)) {
		h = h*31 + uint32(u)
	}
	return h
}

// Shuffle returns a Fisher-Yates permutation of items. The input is not modified.
func Shuffle[T any](items []T, rng RNG) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := pick(rng, i+1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// pick maps one draw onto [0,n).
func pick(rng RNG, n int) int {
	j := int(rng() * float64(n))
	if j >= n {
		j = n - 1
	}
	if j < 0 {
		j = 0
	}
	return j
}
