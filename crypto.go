package pqlog

import (
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/sha3"
)

// HashSize is the width in bytes of every chain hash, payload hash, and
// Merkle node produced by this package.
const HashSize = 32

// SeedSize is the width in bytes of both the master seed and every
// per-epoch derived seed fed to DeriveKeypair.
const SeedSize = mldsa65.SeedSize

// PublicKeySize and SignatureSize describe the wire sizes of the
// post-quantum signing keys and signatures this package produces.
const (
	PublicKeySize  = mldsa65.PublicKeySize
	SignatureSize  = mldsa65.SignatureSize
	PrivateKeySize = mldsa65.PrivateKeySize
)

// PublicKey and PrivateKey alias the ML-DSA-65 (NIST level 3, the FIPS 204
// successor to Dilithium-3) key types. ML-DSA-65 is the module-lattice
// signature scheme named in the system specification.
type PublicKey = mldsa65.PublicKey
type PrivateKey = mldsa65.PrivateKey

// Hash computes SHA3-256 over the concatenation of parts.
func Hash(parts ...[]byte) [HashSize]byte {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// genesisHash is the constant chain anchor for an empty log: SHA3-256("GENESIS").
var genesisHash = Hash([]byte("GENESIS"))

// DeriveKeypair deterministically derives an ML-DSA-65 keypair from a
// 32-byte seed. Equal seeds always yield equal keys, across invocations
// and hosts — the property the forward-security model depends on.
func DeriveKeypair(seed [SeedSize]byte) (*PublicKey, *PrivateKey) {
	return mldsa65.NewKeyFromSeed(&seed)
}

// Sign produces an ML-DSA-65 signature over msg under sk.
func Sign(sk *PrivateKey, msg []byte) []byte {
	sig := make([]byte, SignatureSize)
	mldsa65.SignTo(sk, msg, sig)
	return sig
}

// Verify reports whether sig is a valid ML-DSA-65 signature over msg under pk.
func Verify(pk *PublicKey, msg, sig []byte) bool {
	return mldsa65.Verify(pk, msg, sig)
}

// MarshalPublicKey packs pk into its fixed-size wire form for storage in an
// EpochKeyRecord.
func MarshalPublicKey(pk *PublicKey) []byte {
	var buf [PublicKeySize]byte
	pk.Pack(&buf)
	return buf[:]
}

// UnmarshalPublicKey unpacks a public key previously produced by MarshalPublicKey.
func UnmarshalPublicKey(data []byte) (*PublicKey, error) {
	if len(data) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidInput, PublicKeySize, len(data))
	}
	var buf [PublicKeySize]byte
	copy(buf[:], data)
	pk := new(PublicKey)
	pk.Unpack(&buf)
	return pk, nil
}

// zeroPrivateKey clears sk in place so the private key does not linger in
// memory after a signing call returns. Private keys are never persisted and
// never shared between callers; the caller that derived sk discards the
// pointer immediately after this call.
func zeroPrivateKey(sk *PrivateKey) {
	*sk = PrivateKey{}
}
