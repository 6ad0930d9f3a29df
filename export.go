package scorevault

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ExportVersion is the current snapshot format version.
const ExportVersion = 1

// ExportedLedger is a JSON snapshot of the ledger's entire durable state:
// every policy record, in creation order. Ciphertexts appear only as
// handles; the capability provider holds the sealed material.
type ExportedLedger struct {
	// Version is the snapshot format version. MUST be 1.
	Version int `json:"version"`
	// ExportedAt is the snapshot timestamp. Informational only.
	ExportedAt time.Time `json:"exportedAt"`
	// Policies lists all policies in creation order.
	Policies []ExportedPolicy `json:"policies"`
}

// ExportedPolicy is the snapshot form of a single policy record.
type ExportedPolicy struct {
	// PolicyID is the unique policy identifier. Non-empty.
	PolicyID string `json:"policyId"`
	// Handle is the ciphertext handle recorded at creation. Non-empty.
	Handle string `json:"handle"`
	// BasePremium is the plaintext base premium.
	BasePremium int64 `json:"basePremium"`
	// PublicFactor is the plaintext premium offset.
	PublicFactor int64 `json:"publicFactor"`
	// VehicleInfo is the plaintext vehicle description.
	VehicleInfo string `json:"vehicleInfo"`
	// Owner is the identity recorded at creation.
	Owner string `json:"owner"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"createdAt"`
	// Decrypted reports whether the score has been revealed.
	Decrypted bool `json:"decrypted"`
	// DecryptedScore is the revealed score. Only meaningful when Decrypted.
	DecryptedScore int64 `json:"decryptedScore,omitempty"`
}

// Validate checks that the snapshot is structurally sound: supported
// version, unique non-empty identifiers, handles present, and revealed
// scores within range.
func (e *ExportedLedger) Validate() error {
	if e.Version != ExportVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidImportData, e.Version, ExportVersion)
	}

	seen := make(map[string]struct{}, len(e.Policies))
	for i, p := range e.Policies {
		if p.PolicyID == "" {
			return fmt.Errorf("%w: policy %d: policyId is required", ErrInvalidImportData, i)
		}
		if _, dup := seen[p.PolicyID]; dup {
			return fmt.Errorf("%w: duplicate policyId %q", ErrInvalidImportData, p.PolicyID)
		}
		seen[p.PolicyID] = struct{}{}

		if p.Handle == "" {
			return fmt.Errorf("%w: policy %q: handle is required", ErrInvalidImportData, p.PolicyID)
		}
		if p.BasePremium < 0 || p.PublicFactor < 0 {
			return fmt.Errorf("%w: policy %q: negative premium parameters", ErrInvalidImportData, p.PolicyID)
		}
		if p.Decrypted && (p.DecryptedScore < MinScore || p.DecryptedScore > MaxScore) {
			return fmt.Errorf("%w: policy %q: score %d out of range", ErrInvalidImportData, p.PolicyID, p.DecryptedScore)
		}
	}

	return nil
}

// Export returns a snapshot of the ledger state in creation order.
func (l *Ledger) Export() *ExportedLedger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	policies := make([]ExportedPolicy, 0, len(l.order))
	for _, id := range l.order {
		r := l.policies[id]
		p := ExportedPolicy{
			PolicyID:     r.id,
			Handle:       string(r.handle),
			BasePremium:  r.basePremium,
			PublicFactor: r.publicFactor,
			VehicleInfo:  r.vehicleInfo,
			Owner:        r.owner,
			CreatedAt:    r.createdAt,
			Decrypted:    r.state == stateDecrypted,
		}
		if p.Decrypted {
			p.DecryptedScore = r.score
		}
		policies = append(policies, p)
	}

	return &ExportedLedger{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Policies:   policies,
	}
}

// ExportToFile writes a ledger snapshot to a JSON file with secure
// permissions (0600).
func (l *Ledger) ExportToFile(path string) error {
	data, err := json.MarshalIndent(l.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// ImportLedger reconstructs a ledger from a snapshot. The provider must be
// the one that holds the snapshot's ciphertext handles (or a restored copy
// of it), otherwise later decryptions will be rejected.
func ImportLedger(provider Provider, data *ExportedLedger, opts ...Option) (*Ledger, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: snapshot is nil", ErrInvalidImportData)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	l, err := New(provider, opts...)
	if err != nil {
		return nil, err
	}

	for _, p := range data.Policies {
		record := &policyRecord{
			id:           p.PolicyID,
			handle:       Handle(p.Handle),
			basePremium:  p.BasePremium,
			publicFactor: p.PublicFactor,
			vehicleInfo:  p.VehicleInfo,
			owner:        p.Owner,
			createdAt:    p.CreatedAt,
			state:        stateCreated,
		}
		if p.Decrypted {
			record.state = stateDecrypted
			record.score = p.DecryptedScore
		}
		l.policies[p.PolicyID] = record
		l.order = append(l.order, p.PolicyID)
	}

	return l, nil
}

// ImportLedgerFromFile reconstructs a ledger from a JSON snapshot file.
func ImportLedgerFromFile(provider Provider, path string, opts ...Option) (*Ledger, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var data ExportedLedger
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportData, err)
	}

	return ImportLedger(provider, &data, opts...)
}
