package oracle

import (
	"encoding/json"
	"fmt"
	"os"

	scorevault "github.com/scorevault/ledger-go"
	"github.com/scorevault/ledger-go/internal/crypto"
)

// ExportVersion is the current gateway export format version.
const ExportVersion = 1

// ExportedGateway contains all state needed to restore a gateway.
// WARNING: this contains private key material - handle securely.
type ExportedGateway struct {
	// Version is the export format version. MUST be 1.
	Version int `json:"version"`
	// ContextID is the gateway's encryption context identifier. Non-empty.
	ContextID string `json:"contextId"`
	// SigSecretKey is the ML-DSA-65 attestation secret key (base64url).
	SigSecretKey string `json:"sigSecretKey"`
	// KemSecretKey is the ML-KEM-768 encryption secret key (base64url).
	KemSecretKey string `json:"kemSecretKey"`
	// Envelopes maps ciphertext handles to their canonical envelope JSON.
	Envelopes map[string]json.RawMessage `json:"envelopes"`
	// Authorized lists the handles eligible for public decryption.
	Authorized []string `json:"authorized"`
}

// Validate checks that the exported data is structurally sound.
func (e *ExportedGateway) Validate() error {
	if e.Version != ExportVersion {
		return fmt.Errorf("unsupported version %d, expected %d", e.Version, ExportVersion)
	}
	if e.ContextID == "" {
		return fmt.Errorf("contextId is required")
	}
	if e.SigSecretKey == "" {
		return fmt.Errorf("sigSecretKey is required")
	}
	if e.KemSecretKey == "" {
		return fmt.Errorf("kemSecretKey is required")
	}
	return nil
}

// Export returns the gateway's full restorable state, including private
// key material.
func (g *Gateway) Export() *ExportedGateway {
	g.mu.RLock()
	defer g.mu.RUnlock()

	envelopes := make(map[string]json.RawMessage, len(g.envelopes))
	for handle, env := range g.envelopes {
		envelopes[string(handle)] = env.Marshal()
	}

	authorized := make([]string, 0, len(g.authorized))
	for handle, ok := range g.authorized {
		if ok {
			authorized = append(authorized, string(handle))
		}
	}

	return &ExportedGateway{
		Version:      ExportVersion,
		ContextID:    g.contextID,
		SigSecretKey: crypto.ToBase64URL(g.sig.SecretKey),
		KemSecretKey: crypto.ToBase64URL(g.kem.SecretKey),
		Envelopes:    envelopes,
		Authorized:   authorized,
	}
}

// FromExport reconstructs a gateway from exported state.
func FromExport(data *ExportedGateway) (*Gateway, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	sigSecret, err := crypto.FromBase64URL(data.SigSecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode sigSecretKey: %w", err)
	}
	sig, err := crypto.SigningKeyFromSecretKey(sigSecret)
	if err != nil {
		return nil, fmt.Errorf("restore signing key: %w", err)
	}

	kemSecret, err := crypto.FromBase64URL(data.KemSecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode kemSecretKey: %w", err)
	}
	kem, err := crypto.KeypairFromSecretKey(kemSecret)
	if err != nil {
		return nil, fmt.Errorf("restore encryption keypair: %w", err)
	}

	envelopes := make(map[scorevault.Handle]*crypto.Envelope, len(data.Envelopes))
	for handle, raw := range data.Envelopes {
		env, err := crypto.ParseEnvelope(raw)
		if err != nil {
			return nil, fmt.Errorf("envelope %s: %w", handle, err)
		}
		if env.Digest() != handle {
			return nil, fmt.Errorf("envelope %s: digest mismatch", handle)
		}
		envelopes[scorevault.Handle(handle)] = env
	}

	authorized := make(map[scorevault.Handle]bool, len(data.Authorized))
	for _, handle := range data.Authorized {
		if _, ok := envelopes[scorevault.Handle(handle)]; !ok {
			return nil, fmt.Errorf("authorized handle %s has no envelope", handle)
		}
		authorized[scorevault.Handle(handle)] = true
	}

	return &Gateway{
		contextID:  data.ContextID,
		sig:        sig,
		kem:        kem,
		envelopes:  envelopes,
		authorized: authorized,
	}, nil
}

// ExportToFile writes the gateway state to a JSON file with secure
// permissions (0600).
func (g *Gateway) ExportToFile(path string) error {
	data, err := json.MarshalIndent(g.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gateway state: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// FromFile restores a gateway from a JSON state file.
func FromFile(path string) (*Gateway, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var data ExportedGateway
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse gateway state: %w", err)
	}

	return FromExport(&data)
}
