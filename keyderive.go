package pqlog

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// epochInfoPrefix namespaces the HKDF info parameter so epoch seeds can
// never collide with seeds derived for some other purpose from the same
// master seed.
const epochInfoPrefix = "pq-log/epoch/"

// deriveEpochSeed runs HKDF-SHA256 over masterSeed with an empty salt and
// info = "pq-log/epoch/" + epochID, producing a 32-byte seed for
// DeriveKeypair. The derivation is memoryless: identical inputs always
// produce identical outputs.
func deriveEpochSeed(masterSeed [SeedSize]byte, epochID string) [SeedSize]byte {
	info := append([]byte(epochInfoPrefix), epochID...)
	r := hkdf.New(sha256.New, masterSeed[:], nil, info)

	var out [SeedSize]byte
	// hkdf.New's Reader never returns a short read for L <= 255*hash.Size,
	// so the only possible error is an L too large for the hash; SeedSize
	// is a compile-time constant well under that limit.
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic("pqlog: hkdf expand failed for fixed-size epoch seed: " + err.Error())
	}
	return out
}

// LoadMasterSeed decodes a 64-hex-character, 32-byte master seed from the
// value returned by lookup("MASTER_SEED"). It is the only sanctioned way to
// obtain the process-wide master seed; callers hold the result as an
// immutable value for the lifetime of the process, never as a mutable
// singleton.
func LoadMasterSeed(lookup func(key string) (string, bool)) ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	raw, ok := lookup("MASTER_SEED")
	if !ok || raw == "" {
		return seed, fmt.Errorf("%w: MASTER_SEED is not set", ErrInvalidInput)
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return seed, fmt.Errorf("%w: MASTER_SEED is not valid hex: %v", ErrInvalidInput, err)
	}
	if len(decoded) != SeedSize {
		return seed, fmt.Errorf("%w: MASTER_SEED must decode to %d bytes, got %d", ErrInvalidInput, SeedSize, len(decoded))
	}
	copy(seed[:], decoded)
	return seed, nil
}

// GenerateDevMasterSeed produces a random master seed for development-mode
// bootstrap when MASTER_SEED is absent. Callers MUST log a conspicuous
// warning when using this path; pqlog never calls it implicitly.
func GenerateDevMasterSeed() ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("pqlog: generate dev master seed: %w", err)
	}
	return seed, nil
}
