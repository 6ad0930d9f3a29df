// Package oracle implements the ScoreVault capability provider as a trusted
// attestation gateway.
//
// The gateway holds an ML-KEM-768 encryption keypair that risk scores are
// sealed to, and an ML-DSA-65 attestation key. Validity proofs and
// decryption proofs are attestation signatures over canonical transcripts:
// the validity transcript covers the sealed envelope, the reveal transcript
// binds a claimed plaintext to the specific ciphertext handles it was
// decrypted from. Verification is a pure signature check, so a proof issued
// for one handle can never be replayed against another.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	scorevault "github.com/scorevault/ledger-go"
	"github.com/scorevault/ledger-go/internal/crypto"
)

var (
	// ErrUnknownHandle is returned when a handle was never imported into
	// this gateway.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")

	// ErrNotAuthorized is returned when public decryption is requested for
	// a handle that was never authorized.
	ErrNotAuthorized = errors.New("handle not authorized for public decryption")

	// ErrWrongContext is returned when a ciphertext was sealed for a
	// different encryption context than the gateway's.
	ErrWrongContext = errors.New("ciphertext sealed for different context")

	// ErrProofInvalid is returned when a validity or decryption proof
	// fails the attestation signature check.
	ErrProofInvalid = errors.New("attestation signature invalid")
)

// Gateway is a concrete scorevault.Provider, scorevault.Encryptor and
// scorevault.Revealer backed by local key material. In production the same
// contract would be fulfilled by a remote key-management service; the
// ledger cannot tell the difference.
type Gateway struct {
	contextID string
	sig       *crypto.SigningKey
	kem       *crypto.Keypair

	mu         sync.RWMutex
	envelopes  map[scorevault.Handle]*crypto.Envelope
	authorized map[scorevault.Handle]bool
}

var (
	_ scorevault.Provider  = (*Gateway)(nil)
	_ scorevault.Encryptor = (*Gateway)(nil)
	_ scorevault.Revealer  = (*Gateway)(nil)
)

// NewGateway creates a gateway with fresh key material for the given
// encryption context.
func NewGateway(contextID string) (*Gateway, error) {
	if contextID == "" {
		return nil, fmt.Errorf("contextID is required")
	}

	sig, err := crypto.GenerateSigningKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	kem, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate encryption keypair: %w", err)
	}

	return &Gateway{
		contextID:  contextID,
		sig:        sig,
		kem:        kem,
		envelopes:  make(map[scorevault.Handle]*crypto.Envelope),
		authorized: make(map[scorevault.Handle]bool),
	}, nil
}

// ContextID returns the gateway's encryption context identifier.
func (g *Gateway) ContextID() string {
	return g.contextID
}

// AttestationKey returns the gateway's public attestation key bytes.
// Verifiers outside this process can use it to check proofs independently.
func (g *Gateway) AttestationKey() []byte {
	key := make([]byte, len(g.sig.PublicKey))
	copy(key, g.sig.PublicKey)
	return key
}

// aad builds the additional authenticated data binding an envelope to the
// gateway's context and the recipient identity.
func (g *Gateway) aad(recipient string) []byte {
	return []byte(g.contextID + "|" + recipient)
}

// Encrypt seals a plaintext value to the gateway's encryption key and signs
// the envelope transcript as a validity proof. This is the off-ledger step
// a client performs before submitting a policy.
func (g *Gateway) Encrypt(ctx context.Context, contextID, recipient string, value uint64) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if contextID != g.contextID {
		return nil, nil, fmt.Errorf("%w: got %q, want %q", ErrWrongContext, contextID, g.contextID)
	}

	env, err := crypto.Seal(g.kem.PublicKey, g.aad(recipient), crypto.EncodeScore(value))
	if err != nil {
		return nil, nil, fmt.Errorf("seal: %w", err)
	}

	transcript, err := env.ValidityTranscript()
	if err != nil {
		return nil, nil, fmt.Errorf("build transcript: %w", err)
	}

	proof, err := g.sig.Sign(transcript)
	if err != nil {
		return nil, nil, fmt.Errorf("sign transcript: %w", err)
	}

	return env.Marshal(), proof, nil
}

// ImportCiphertext validates an external ciphertext against its validity
// proof and registers it under its digest handle. Importing the same
// envelope twice yields the same handle.
func (g *Gateway) ImportCiphertext(ctx context.Context, external, validityProof []byte) (scorevault.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	env, err := crypto.ParseEnvelope(external)
	if err != nil {
		return "", err
	}

	aad, err := crypto.FromBase64URL(env.AAD)
	if err != nil {
		return "", fmt.Errorf("%w: bad aad encoding", crypto.ErrInvalidEnvelope)
	}
	if !strings.HasPrefix(string(aad), g.contextID+"|") {
		return "", ErrWrongContext
	}

	transcript, err := env.ValidityTranscript()
	if err != nil {
		return "", err
	}

	if err := crypto.Verify(g.sig.PublicKey, transcript, validityProof); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	handle := scorevault.Handle(env.Digest())

	g.mu.Lock()
	g.envelopes[handle] = env
	g.mu.Unlock()

	return handle, nil
}

// AuthorizePublicDecryption marks an imported ciphertext as eligible for
// verifiable reveal. Reveal requests for unauthorized handles are refused.
func (g *Gateway) AuthorizePublicDecryption(ctx context.Context, handle scorevault.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.envelopes[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}

	g.authorized[handle] = true
	return nil
}

// RequestPublicDecryption decrypts the value behind an authorized handle
// and signs a reveal transcript binding the claimed plaintext to the
// handle. This is the off-ledger step the orchestrator performs before
// submitting a decryption to the ledger.
func (g *Gateway) RequestPublicDecryption(ctx context.Context, handle scorevault.Handle) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	g.mu.RLock()
	env, ok := g.envelopes[handle]
	authorized := g.authorized[handle]
	g.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	if !authorized {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotAuthorized, handle)
	}

	claimed, err := crypto.Open(env, g.kem)
	if err != nil {
		return nil, nil, fmt.Errorf("open envelope: %w", err)
	}

	transcript := crypto.RevealTranscript([]string{string(handle)}, claimed)
	proof, err := g.sig.Sign(transcript)
	if err != nil {
		return nil, nil, fmt.Errorf("sign transcript: %w", err)
	}

	return claimed, proof, nil
}

// VerifyDecryptionProof checks that proof is a valid attestation binding
// the claimed plaintext to exactly the given handles. A proof issued for
// different handles, or for a different plaintext, is rejected.
func (g *Gateway) VerifyDecryptionProof(ctx context.Context, handles []scorevault.Handle, claimed, proof []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(handles) == 0 {
		return fmt.Errorf("%w: no handles", ErrProofInvalid)
	}

	g.mu.RLock()
	for _, h := range handles {
		if _, ok := g.envelopes[h]; !ok {
			g.mu.RUnlock()
			return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
		}
	}
	g.mu.RUnlock()

	raw := make([]string, len(handles))
	for i, h := range handles {
		raw[i] = string(h)
	}

	transcript := crypto.RevealTranscript(raw, claimed)
	if err := crypto.Verify(g.sig.PublicKey, transcript, proof); err != nil {
		return fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	return nil
}
