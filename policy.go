package scorevault

import "time"

// policyState is the tagged lifecycle state of a policy. The progression
// is strictly Created -> Decrypted; there is no backward transition and no
// deletion.
type policyState int8

const (
	stateCreated policyState = iota
	stateDecrypted
)

// policyRecord is the ledger's internal per-policy record. All fields except
// state and score are immutable after creation; state and score are written
// exactly once, together, by a successful decryption.
type policyRecord struct {
	id           string
	handle       Handle
	basePremium  int64
	publicFactor int64
	vehicleInfo  string
	owner        string
	createdAt    time.Time

	state policyState
	score int64 // defined only when state == stateDecrypted
}

// details builds the public read-model for the record.
func (r *policyRecord) details() *PolicyDetails {
	d := &PolicyDetails{
		PolicyID:     r.id,
		VehicleInfo:  r.vehicleInfo,
		Owner:        r.owner,
		BasePremium:  r.basePremium,
		PublicFactor: r.publicFactor,
		CreatedAt:    r.createdAt,
		Decrypted:    r.state == stateDecrypted,
	}
	if d.Decrypted {
		d.DecryptedScore = r.score
	}
	return d
}

// PolicyDetails is the public view of a policy.
type PolicyDetails struct {
	// PolicyID is the unique policy identifier.
	PolicyID string
	// VehicleInfo is the plaintext vehicle description.
	VehicleInfo string
	// Owner is the identity recorded at creation. Audit only: ownership
	// grants no special rights over decryption.
	Owner string
	// BasePremium is the plaintext base premium parameter.
	BasePremium int64
	// PublicFactor is the plaintext public premium offset.
	PublicFactor int64
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time
	// Decrypted reports whether the risk score has been revealed.
	Decrypted bool
	// DecryptedScore is the revealed risk score. Zero until Decrypted is true.
	DecryptedScore int64
}

// CreatePolicyParams carries the inputs of Ledger.CreatePolicy.
type CreatePolicyParams struct {
	// PolicyID is the caller-assigned unique identifier.
	PolicyID string
	// Ciphertext is the external encrypted risk score.
	Ciphertext []byte
	// ValidityProof attests that Ciphertext was correctly formed for the
	// current encryption context.
	ValidityProof []byte
	// BasePremium is the plaintext base premium. Must be non-negative.
	BasePremium int64
	// PublicFactor is the plaintext premium offset. Must be non-negative.
	PublicFactor int64
	// VehicleInfo is a free-form vehicle description.
	VehicleInfo string
	// Submitter is the creating identity, recorded for audit.
	Submitter string
}

// validate checks creation parameters before any provider call.
func (p *CreatePolicyParams) validate() error {
	var problems []string
	if p.PolicyID == "" {
		problems = append(problems, "policyID is required")
	}
	if len(p.Ciphertext) == 0 {
		problems = append(problems, "ciphertext is required")
	}
	if len(p.ValidityProof) == 0 {
		problems = append(problems, "validity proof is required")
	}
	if p.BasePremium < 0 {
		problems = append(problems, "basePremium must be non-negative")
	}
	if p.PublicFactor < 0 {
		problems = append(problems, "publicFactor must be non-negative")
	}
	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}
