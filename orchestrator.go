package scorevault

import (
	"context"
	"fmt"
)

// OracleClient is the off-ledger capability surface the orchestrator
// drives: encryption before submission and verifiable public decryption
// before reveal.
type OracleClient interface {
	Encryptor
	Revealer
}

// Orchestrator drives the full protocol against a ledger and an oracle:
// encrypt -> submit -> reveal -> price. It holds no authoritative state;
// everything it knows can be re-read from the ledger.
type Orchestrator struct {
	ledger    *Ledger
	oracle    OracleClient
	contextID string
}

// NewOrchestrator creates an orchestrator for the given ledger and oracle.
func NewOrchestrator(ledger *Ledger, oracle OracleClient, contextID string) (*Orchestrator, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle client is required")
	}
	if contextID == "" {
		return nil, fmt.Errorf("contextID is required")
	}

	return &Orchestrator{
		ledger:    ledger,
		oracle:    oracle,
		contextID: contextID,
	}, nil
}

// SubmitPolicyParams carries the inputs of Orchestrator.SubmitPolicy.
type SubmitPolicyParams struct {
	// PolicyID is the caller-assigned unique identifier.
	PolicyID string
	// Score is the confidential risk score to seal. Valid range [0,100];
	// out-of-range values are only caught at reveal time, mirroring a
	// client that encrypts garbage.
	Score uint64
	// BasePremium is the plaintext base premium.
	BasePremium int64
	// PublicFactor is the plaintext premium offset.
	PublicFactor int64
	// VehicleInfo is a free-form vehicle description.
	VehicleInfo string
	// Submitter is the creating identity.
	Submitter string
}

// SubmitPolicy seals the score through the oracle and creates the policy
// on the ledger.
func (o *Orchestrator) SubmitPolicy(ctx context.Context, params SubmitPolicyParams) error {
	ciphertext, proof, err := o.oracle.Encrypt(ctx, o.contextID, params.Submitter, params.Score)
	if err != nil {
		return fmt.Errorf("encrypt score: %w", err)
	}

	return o.ledger.CreatePolicy(ctx, CreatePolicyParams{
		PolicyID:      params.PolicyID,
		Ciphertext:    ciphertext,
		ValidityProof: proof,
		BasePremium:   params.BasePremium,
		PublicFactor:  params.PublicFactor,
		VehicleInfo:   params.VehicleInfo,
		Submitter:     params.Submitter,
	})
}

// RevealScore requests a verifiable public decryption of the policy's
// ciphertext from the oracle and submits it to the ledger.
func (o *Orchestrator) RevealScore(ctx context.Context, policyID string) error {
	handle, err := o.ledger.EncryptedScore(policyID)
	if err != nil {
		return err
	}

	claimed, proof, err := o.oracle.RequestPublicDecryption(ctx, handle)
	if err != nil {
		return fmt.Errorf("request public decryption: %w", err)
	}

	return o.ledger.DecryptScore(ctx, policyID, claimed, proof)
}

// WaitForDecryption blocks until the policy's score has been revealed and
// returns it. If the score is already revealed it returns immediately.
func (o *Orchestrator) WaitForDecryption(ctx context.Context, policyID string, opts ...WaitOption) (int64, error) {
	cfg := &waitConfig{
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	// 1. Start watching FIRST to avoid a race with a concurrent reveal
	events := o.ledger.Watch(ctx, policyID)

	// 2. Check committed state (handles the already-revealed case)
	details, err := o.ledger.PolicyDetails(policyID)
	if err != nil {
		return 0, err
	}
	if details.Decrypted {
		return details.DecryptedScore, nil
	}

	// 3. Wait for the decryption event
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case ev := <-events:
			if decrypted, ok := ev.(ScoreDecrypted); ok {
				return decrypted.Score, nil
			}
		}
	}
}

// Premium returns the derived premium for a revealed policy.
func (o *Orchestrator) Premium(policyID string) (int64, error) {
	return o.ledger.CalculatePremium(policyID)
}
