// Package crypto implements the envelope encryption and attestation
// primitives used by the ScoreVault capability gateway.
//
// Risk scores travel as sealed envelopes: ML-KEM-768 key encapsulation,
// HKDF-SHA-512 key derivation, and AES-256-GCM over a fixed-width plaintext.
// Validity and reveal attestations are ML-DSA-65 signatures over canonical
// transcripts. The ledger itself never imports this package; it sees only
// opaque handles and binary accept/reject verdicts.
package crypto
