// Package pqlog implements a tamper-evident, post-quantum-signed, append-only
// event log for insurance claim workflows.
//
// Entries are hash-chained with SHA3-256 so any edit to a past entry, or any
// deletion from the middle of the log, changes every subsequent
// entry's chain hash. Periodic checkpoints commit a signed Merkle root over a
// contiguous entry range; checkpoints themselves chain to one another so a
// checkpoint cannot be silently dropped or reordered. Checkpoint signatures
// use ML-DSA-65 (the FIPS 204 successor to Dilithium-3), with signing keys
// rotated per epoch and derived deterministically via HKDF-SHA256 from a
// single master seed, so compromising one epoch's private key never exposes
// another epoch's key or invalidates past signatures (forward security).
//
// Usage:
//
//	store := pqlog.NewMemStore() // or pqlog.OpenSQLiteStore("pqlog.db")
//	seed, _ := pqlog.GenerateDevMasterSeed()
//	svc := pqlog.NewService(store, seed)
//
//	id, _, _ := svc.SubmitClaimEvent(ctx, "claim-42", "claim.filed", payload)
//	summary, _ := svc.RequestCheckpoint(ctx)
//	report, _ := svc.Audit(ctx)
package pqlog
