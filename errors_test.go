package scorevault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProofErrorIs(t *testing.T) {
	tests := []struct {
		stage    string
		match    error
		mismatch error
	}{
		{StageImport, ErrInvalidEncryptionProof, ErrDecryptionProofInvalid},
		{StageAuthorize, ErrAuthorizationFailed, ErrInvalidEncryptionProof},
		{StageVerify, ErrDecryptionProofInvalid, ErrInvalidEncryptionProof},
		{StageDecode, ErrDecryptionProofInvalid, ErrAuthorizationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			err := &ProofError{Stage: tt.stage, PolicyID: "p1"}
			if !errors.Is(err, tt.match) {
				t.Errorf("errors.Is(%v, %v) = false, want true", err, tt.match)
			}
			if errors.Is(err, tt.mismatch) {
				t.Errorf("errors.Is(%v, %v) = true, want false", err, tt.mismatch)
			}
		})
	}
}

func TestProofErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("signature mismatch")
	err := &ProofError{Stage: StageVerify, PolicyID: "p1", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is does not reach the wrapped cause")
	}
	if got := err.Error(); !strings.Contains(got, "p1") || !strings.Contains(got, "verify") {
		t.Errorf("Error() = %q, want policy id and stage", got)
	}

	// Without a cause the message still names policy and stage.
	bare := &ProofError{Stage: StageImport, PolicyID: "p2"}
	if got := bare.Error(); !strings.Contains(got, "p2") || !strings.Contains(got, "import") {
		t.Errorf("Error() = %q, want policy id and stage", got)
	}
}

func TestProofErrorAs(t *testing.T) {
	var wrapped error = fmt.Errorf("create: %w", &ProofError{Stage: StageAuthorize, PolicyID: "p1"})

	var perr *ProofError
	if !errors.As(wrapped, &perr) {
		t.Fatal("errors.As failed to extract ProofError")
	}
	if perr.Stage != StageAuthorize || perr.PolicyID != "p1" {
		t.Errorf("extracted = %+v, want stage=authorize policyID=p1", perr)
	}
}

func TestTypedErrorsImplementLedgerError(t *testing.T) {
	typed := []error{
		&ProofError{Stage: StageVerify, PolicyID: "p1"},
		&ValidationError{Errors: []string{"policyID is required"}},
	}

	for _, err := range typed {
		if _, ok := err.(LedgerError); !ok {
			t.Errorf("%T does not implement LedgerError", err)
		}
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Errors: []string{"policyID is required", "ciphertext is required"}}
	if got := err.Error(); !strings.Contains(got, "policyID is required") {
		t.Errorf("Error() = %q, want contained field message", got)
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNilProvider,
		ErrLedgerClosed,
		ErrPolicyExists,
		ErrPolicyNotFound,
		ErrInvalidEncryptionProof,
		ErrAuthorizationFailed,
		ErrAlreadyDecrypted,
		ErrDecryptionProofInvalid,
		ErrScoreOutOfRange,
		ErrScoreNotDecrypted,
		ErrInvalidImportData,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v matches %v", a, b)
			}
		}
	}
}
