package utils

import (
	"hash/fnv"
	"math/rand"
)

func NewSeededRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// FightSeed derives a stable seed from a challenge id, so the optional
// score modifiers replay identically for the same challenge.
func FightSeed(challengeID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(challengeID))
	return int64(h.Sum64())
}
