package pqlog

import (
	"bytes"
	"reflect"
	"testing"
)

func TestDeriveKeypairDeterministic(t *testing.T) {
	var seed [SeedSize]byte
	for i := range seed {
		seed[i] = byte(i)
	}

	pk1, sk1 := DeriveKeypair(seed)
	pk2, sk2 := DeriveKeypair(seed)

	if !bytes.Equal(MarshalPublicKey(pk1), MarshalPublicKey(pk2)) {
		t.Fatal("same seed produced different public keys")
	}

	msg := []byte("claim.filed")
	sig1 := Sign(sk1, msg)
	if !Verify(pk2, msg, sig1) {
		t.Fatal("signature from sk1 did not verify under pk2 derived from the same seed")
	}
	_ = sk2
}

func TestSignVerifyRoundTrip(t *testing.T) {
	var seed [SeedSize]byte
	seed[0] = 0x42
	pk, sk := DeriveKeypair(seed)

	msg := []byte("payload bytes")
	sig := Sign(sk, msg)
	if !Verify(pk, msg, sig) {
		t.Fatal("valid signature failed to verify")
	}
	if Verify(pk, []byte("different payload"), sig) {
		t.Fatal("signature verified against a different message")
	}
}

func TestMarshalUnmarshalPublicKey(t *testing.T) {
	var seed [SeedSize]byte
	seed[3] = 7
	pk, _ := DeriveKeypair(seed)

	raw := MarshalPublicKey(pk)
	if len(raw) != PublicKeySize {
		t.Fatalf("marshaled public key length = %d, want %d", len(raw), PublicKeySize)
	}

	pk2, err := UnmarshalPublicKey(raw)
	if err != nil {
		t.Fatalf("UnmarshalPublicKey: %v", err)
	}
	if !bytes.Equal(MarshalPublicKey(pk2), raw) {
		t.Fatal("round-tripped public key does not match original")
	}
}

func TestUnmarshalPublicKeyWrongLength(t *testing.T) {
	if _, err := UnmarshalPublicKey([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for undersized public key bytes")
	}
}

func TestHashConcatenatesParts(t *testing.T) {
	a := Hash([]byte("a"), []byte("b"))
	b := Hash([]byte("ab"))
	if a != b {
		t.Fatal("Hash should treat multiple parts as a single concatenated input")
	}
}

func TestZeroPrivateKeyClearsValue(t *testing.T) {
	var seed [SeedSize]byte
	seed[1] = 9
	_, sk := DeriveKeypair(seed)
	zeroPrivateKey(sk)
	if !reflect.DeepEqual(*sk, PrivateKey{}) {
		t.Fatal("zeroPrivateKey did not clear the private key")
	}
}
