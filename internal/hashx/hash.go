// Package hashx is the simulator's hash oracle: every piece of randomness
// (delay jitter, leader selection, transaction creation, block ids) derives
// from SHA-256 over a domain-separated concatenation of byte parts. There is
// no other entropy source; the wall clock is never consulted.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

// Hex hashes the concatenation of parts and returns the 64-char lowercase
// hex digest. Callers must pass the config seed as parts[0] and a short
// domain tag as parts[1] to keep runs reproducible and separated by use;
// the one exception is the block id / PoW hash, whose preimage is the
// block header followed by the 8-byte nonce.
func Hex(parts ...[]byte) string {
	return hex.EncodeToString(sum(parts))
}

// Int hashes the concatenation of parts and interprets the digest as a
// big-endian unsigned 256-bit integer.
func Int(parts ...[]byte) *big.Int {
	return new(big.Int).SetBytes(sum(parts))
}

func sum(parts [][]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// BE8 encodes v as 8 big-endian bytes, the nonce/timestamp encoding spec.md
// uses throughout (PoW nonce, tick/delay/tx timestamps, leader height).
func BE8(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}

// BE4 encodes v as 4 big-endian bytes (the hybrid leader slot encoding).
func BE4(v int64) []byte {
	b := make([]byte, 4)
	u := uint32(v)
	for i := 3; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}

// two256 is 2**256, the modulus every probability and difficulty
// computation in the simulator is defined against. Callers needing it
// should use TwoPow256, which returns a fresh copy — big.Int is mutated
// in place by Div/Mod and must never be shared.
var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// TwoPow256 returns a fresh 2**256, safe to mutate.
func TwoPow256() *big.Int {
	return new(big.Int).Set(two256)
}

