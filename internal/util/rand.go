package util

import (
	crand "crypto/rand"
	"math/rand/v2"
)

// NewRand returns a generator seeded from crypto/rand. Callers own it; it is
// not safe for concurrent use.
func NewRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand.Read never fails on supported platforms
		panic(err)
	}
	return rand.New(rand.NewChaCha8(seed))
}

// NewSeededRand returns a deterministic generator for tests
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
