package pqlog

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the single collaborator-facing entry point a claims-handling
// caller should hold: it binds the Log, CheckpointEngine, EpochManager, and
// Verifier together over one shared Store, mirroring the single coordinating
// façade the teacher library's server type presents over its own store and
// chain state.
type Service struct {
	store      Store
	log        *Log
	epochs     *EpochManager
	chkpts     *CheckpointEngine
	verifier   *Verifier
	logger     zerolog.Logger
	epochClock func() string
}

// ServiceOption configures a Service at construction time.
type ServiceOption func(*Service)

// WithServiceLogger attaches a structured logger shared by every collaborator.
func WithServiceLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithEpochClockOption overrides the epoch labeling policy used by the
// Service's EpochManager. Exposed for tests that need deterministic epoch
// boundaries instead of the real UTC-date clock.
func WithEpochClockOption(clock func() string) ServiceOption {
	return func(s *Service) { s.epochClock = clock }
}

// NewService wires a Service over store, deriving all epoch keys from
// masterSeed. masterSeed should come from LoadMasterSeed in production and
// GenerateDevMasterSeed only in development.
func NewService(store Store, masterSeed [SeedSize]byte, opts ...ServiceOption) *Service {
	s := &Service{store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	epochOpts := []EpochManagerOption{WithEpochLogger(s.logger)}
	if s.epochClock != nil {
		epochOpts = append(epochOpts, WithEpochClock(s.epochClock))
	}
	s.epochs = NewEpochManager(masterSeed, store, epochOpts...)
	s.log = NewLog(store, WithLogLogger(s.logger))
	s.chkpts = NewCheckpointEngine(store, store, s.epochs, WithCheckpointLogger(s.logger))
	s.verifier = NewVerifier(store, store, s.epochs, WithVerifierLogger(s.logger))

	return s
}

// SubmitClaimEvent appends one event to the log under the current epoch and
// returns its assigned id and resulting chain hash.
func (s *Service) SubmitClaimEvent(ctx context.Context, claimID, eventType string, payload any) (uint64, [HashSize]byte, error) {
	epochID := s.epochs.CurrentEpochID()
	if _, err := s.epochs.GetOrCreatePublicKey(ctx, epochID); err != nil {
		return 0, [HashSize]byte{}, err
	}
	return s.log.Append(ctx, claimID, eventType, payload, epochID)
}

// RequestCheckpoint generates and persists the next checkpoint over all
// entries appended since the previous one.
func (s *Service) RequestCheckpoint(ctx context.Context) (CheckpointSummary, error) {
	return s.chkpts.Generate(ctx, nil)
}

// Audit runs a full chain-and-checkpoint verification pass over the log.
func (s *Service) Audit(ctx context.Context) (AggregateReport, error) {
	return s.verifier.FullVerification(ctx)
}

// TreeLevels returns the Merkle reduction over [lo, hi], for inspection and
// proof construction tooling.
func (s *Service) TreeLevels(ctx context.Context, lo, hi uint64) ([][][HashSize]byte, error) {
	return s.chkpts.ListLevels(ctx, lo, hi)
}

// InclusionProof builds a proof that entryID is covered by its checkpoint's
// Merkle root.
func (s *Service) InclusionProof(ctx context.Context, entryID uint64) (InclusionProof, error) {
	return s.chkpts.InclusionProof(ctx, entryID)
}

// RetireEpoch marks epochID retired, permanently disabling future signing
// under it while leaving past signatures verifiable.
func (s *Service) RetireEpoch(ctx context.Context, epochID string) error {
	return s.epochs.Retire(ctx, epochID)
}

// Entry fetches a single entry by id.
func (s *Service) Entry(ctx context.Context, id uint64) (LogEntry, error) {
	return s.log.Get(ctx, id)
}

// Entries fetches entries with id in [lo, hi], ascending.
func (s *Service) Entries(ctx context.Context, lo, hi uint64) ([]LogEntry, error) {
	return s.log.Range(ctx, lo, hi)
}

// Tail fetches the last n entries, ascending.
func (s *Service) Tail(ctx context.Context, n uint64) ([]LogEntry, error) {
	return s.log.Tail(ctx, n)
}
