package scorevault

import "context"

// Handle is an opaque reference to an encrypted value held by the
// capability provider. The ledger stores handles and passes them back to
// the provider; it never inspects them.
type Handle string

// Provider is the cryptographic capability the ledger delegates to. All
// semantic operations on ciphertexts happen behind this interface; the
// ledger only consumes binary accept/reject verdicts.
//
// Every method is a synchronous validation step: it either accepts or
// rejects before the ledger mutates any state, so a rejection never
// requires rollback.
type Provider interface {
	// ImportCiphertext validates an externally produced ciphertext against
	// its validity proof and registers it, returning a ledger-local handle.
	ImportCiphertext(ctx context.Context, external, validityProof []byte) (Handle, error)

	// AuthorizePublicDecryption marks an imported ciphertext as eligible
	// for later verifiable reveal. The ledger calls this exactly once per
	// policy, immediately after import. Skipping it would leave the policy
	// permanently non-decryptable, so a failure aborts the creation.
	AuthorizePublicDecryption(ctx context.Context, handle Handle) error

	// VerifyDecryptionProof checks that proof binds the claimed plaintext
	// to the specific ciphertext handles. A proof issued for any other
	// handle must be rejected.
	VerifyDecryptionProof(ctx context.Context, handles []Handle, claimed, proof []byte) error
}

// Encryptor produces external ciphertexts accepted by a Provider. It is the
// off-ledger half of the protocol, used by the orchestrator before
// submission.
type Encryptor interface {
	// Encrypt seals a plaintext value for the given encryption context and
	// recipient, returning the external ciphertext and its validity proof.
	Encrypt(ctx context.Context, contextID, recipient string, value uint64) (external, validityProof []byte, err error)
}

// Revealer performs verifiable public decryption of authorized ciphertexts.
// The orchestrator calls it off-ledger and submits the result to the ledger.
type Revealer interface {
	// RequestPublicDecryption decrypts the value behind an authorized
	// handle and returns the claimed plaintext together with a proof
	// binding it to that handle.
	RequestPublicDecryption(ctx context.Context, handle Handle) (claimed, proof []byte, err error)
}
