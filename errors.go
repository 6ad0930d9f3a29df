package scorevault

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrNilProvider is returned when a ledger is constructed without a
	// capability provider.
	ErrNilProvider = errors.New("capability provider is required")

	// ErrLedgerClosed is returned when operations are attempted on a closed ledger.
	ErrLedgerClosed = errors.New("ledger has been closed")

	// ErrPolicyExists is returned when creating a policy whose identifier
	// is already registered.
	ErrPolicyExists = errors.New("policy already exists")

	// ErrPolicyNotFound is returned when a policy identifier is unknown.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrInvalidEncryptionProof is returned when the capability provider
	// rejects a submitted ciphertext's validity proof.
	ErrInvalidEncryptionProof = errors.New("encryption validity proof rejected")

	// ErrAuthorizationFailed is returned when the provider refuses to
	// authorize public decryption of a freshly imported ciphertext.
	// The creation is aborted; nothing is committed.
	ErrAuthorizationFailed = errors.New("public decryption authorization failed")

	// ErrAlreadyDecrypted is returned when decrypting a policy whose score
	// has already been revealed. The committed score is unchanged.
	ErrAlreadyDecrypted = errors.New("score already decrypted")

	// ErrDecryptionProofInvalid is returned when the capability provider
	// rejects a decryption proof. The caller may retry with a corrected proof.
	ErrDecryptionProofInvalid = errors.New("decryption proof rejected")

	// ErrScoreOutOfRange is returned when a verified plaintext decodes to a
	// score outside [0,100]. The policy stays undecrypted.
	ErrScoreOutOfRange = errors.New("decrypted score out of range")

	// ErrScoreNotDecrypted is returned when pricing a policy whose score
	// has not been revealed yet.
	ErrScoreNotDecrypted = errors.New("score not decrypted")

	// ErrInvalidImportData is returned when an imported ledger snapshot is invalid.
	ErrInvalidImportData = errors.New("invalid import data")
)

// LedgerError is implemented by all typed errors of this package.
type LedgerError interface {
	error
	LedgerError() // marker method
}

// Proof stages reported by ProofError.
const (
	// StageImport is ciphertext import and validity proof verification.
	StageImport = "import"
	// StageAuthorize is the public decryption authorization step.
	StageAuthorize = "authorize"
	// StageVerify is decryption proof verification.
	StageVerify = "verify"
	// StageDecode is plaintext decoding after a verified proof.
	StageDecode = "decode"
)

// ProofError reports a rejected cryptographic step during policy creation
// or score decryption. Rejection is an expected, non-fatal outcome; the
// ledger state is unchanged.
type ProofError struct {
	Stage    string // "import", "authorize", "verify", "decode"
	PolicyID string
	Err      error
}

func (e *ProofError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy %s: %s rejected: %v", e.PolicyID, e.Stage, e.Err)
	}
	return fmt.Sprintf("policy %s: %s rejected", e.PolicyID, e.Stage)
}

// Unwrap returns the underlying error.
func (e *ProofError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *ProofError) Is(target error) bool {
	switch e.Stage {
	case StageImport:
		return target == ErrInvalidEncryptionProof
	case StageAuthorize:
		return target == ErrAuthorizationFailed
	case StageVerify, StageDecode:
		return target == ErrDecryptionProofInvalid
	}
	return false
}

// LedgerError implements the LedgerError interface.
func (e *ProofError) LedgerError() {}

// ValidationError contains one or more parameter validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Errors)
}

// LedgerError implements the LedgerError interface.
func (e *ValidationError) LedgerError() {}
