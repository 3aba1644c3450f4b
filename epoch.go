package pqlog

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// EpochManager is the forward-secure epoch key manager (C3). It derives
// per-epoch keypairs from a long-lived master seed, publishes only public
// keys through its Store, and refuses to sign once an epoch is retired.
type EpochManager struct {
	masterSeed [SeedSize]byte
	store      EpochStore
	clock      func() string
	log        zerolog.Logger
}

// EpochManagerOption configures an EpochManager at construction time.
type EpochManagerOption func(*EpochManager)

// WithEpochClock overrides the default UTC-date epoch labeling policy.
// The core treats the epoch label as opaque and only requires it be
// monotone across time; callers may supply finer-grained rotation.
func WithEpochClock(clock func() string) EpochManagerOption {
	return func(m *EpochManager) { m.clock = clock }
}

// WithEpochLogger attaches a structured logger; the zero value logs nothing.
func WithEpochLogger(l zerolog.Logger) EpochManagerOption {
	return func(m *EpochManager) { m.log = l }
}

// NewEpochManager binds an EpochManager to masterSeed and store. masterSeed
// is held as an immutable value for the manager's lifetime, never mutated
// and never logged.
func NewEpochManager(masterSeed [SeedSize]byte, store EpochStore, opts ...EpochManagerOption) *EpochManager {
	m := &EpochManager{
		masterSeed: masterSeed,
		store:      store,
		clock:      defaultEpochClock,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultEpochClock() string {
	return time.Now().UTC().Format("2006-01-02")
}

// CurrentEpochID returns the label for "now" under the manager's epoch
// clock policy.
func (m *EpochManager) CurrentEpochID() string {
	return m.clock()
}

// GetOrCreatePublicKey returns the stored public key for epochID. If none
// exists yet, it derives a fresh keypair, persists the public half, and
// discards the private half immediately.
func (m *EpochManager) GetOrCreatePublicKey(ctx context.Context, epochID string) ([]byte, error) {
	rec, ok, err := m.store.GetEpoch(ctx, epochID)
	if err != nil {
		m.log.Error().Err(err).Str("epoch_id", epochID).Msg("epoch lookup failed")
		return nil, wrapStorage("get epoch", err)
	}
	if ok {
		return rec.PublicKey, nil
	}

	seed := deriveEpochSeed(m.masterSeed, epochID)
	pk, sk := DeriveKeypair(seed)
	zeroPrivateKey(sk)

	rec = EpochKeyRecord{
		EpochID:   epochID,
		PublicKey: MarshalPublicKey(pk),
		CreatedAt: time.Now().UTC(),
		Retired:   false,
	}
	if err := m.store.PutEpoch(ctx, rec); err != nil {
		m.log.Error().Err(err).Str("epoch_id", epochID).Msg("persist epoch public key failed")
		return nil, wrapStorage("put epoch", err)
	}
	return rec.PublicKey, nil
}

// SignWithEpoch derives epochID's keypair, verifies the derived public key
// still matches the stored record, signs message, zeroes the private key,
// and returns the signature. It fails with ErrEpochRetired if the epoch has
// been retired, and with ErrKeyMismatch if derivation disagrees with the
// stored public key (seed or derivation corruption).
func (m *EpochManager) SignWithEpoch(ctx context.Context, epochID string, message []byte) ([]byte, error) {
	rec, ok, err := m.store.GetEpoch(ctx, epochID)
	if err != nil {
		return nil, wrapStorage("get epoch", err)
	}
	if !ok {
		// First use: create the record so future verifiers can resolve the key.
		if _, err := m.GetOrCreatePublicKey(ctx, epochID); err != nil {
			return nil, err
		}
		rec, _, err = m.store.GetEpoch(ctx, epochID)
		if err != nil {
			return nil, wrapStorage("get epoch", err)
		}
	}
	if rec.Retired {
		m.log.Warn().Str("epoch_id", epochID).Msg("sign requested against retired epoch")
		return nil, fmt.Errorf("%w: epoch %q", ErrEpochRetired, epochID)
	}

	seed := deriveEpochSeed(m.masterSeed, epochID)
	pk, sk := DeriveKeypair(seed)
	defer zeroPrivateKey(sk)

	if !bytes.Equal(MarshalPublicKey(pk), rec.PublicKey) {
		m.log.Error().Str("epoch_id", epochID).Msg("derived public key mismatch")
		return nil, fmt.Errorf("%w: epoch %q", ErrKeyMismatch, epochID)
	}

	return Sign(sk, message), nil
}

// VerifyWithEpoch verifies sig over message under epochID's stored public
// key, failing with ErrUnknownEpoch if no record exists.
func (m *EpochManager) VerifyWithEpoch(ctx context.Context, epochID string, message, sig []byte) (bool, error) {
	rec, ok, err := m.store.GetEpoch(ctx, epochID)
	if err != nil {
		return false, wrapStorage("get epoch", err)
	}
	if !ok {
		return false, fmt.Errorf("%w: epoch %q", ErrUnknownEpoch, epochID)
	}
	pk, err := UnmarshalPublicKey(rec.PublicKey)
	if err != nil {
		return false, err
	}
	return Verify(pk, message, sig), nil
}

// Retire marks epochID retired. Idempotent; after this call, every
// SignWithEpoch against epochID fails permanently, while past signatures
// verified through VerifyWithEpoch remain valid forever.
func (m *EpochManager) Retire(ctx context.Context, epochID string) error {
	if err := m.store.RetireEpoch(ctx, epochID); err != nil {
		m.log.Error().Err(err).Str("epoch_id", epochID).Msg("retire epoch failed")
		return wrapStorage("retire epoch", err)
	}
	m.log.Info().Str("epoch_id", epochID).Msg("epoch retired")
	return nil
}

