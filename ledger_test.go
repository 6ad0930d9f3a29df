package scorevault

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeProvider is a controllable capability provider for ledger unit tests.
// Handles are derived from the ciphertext bytes so tests can predict them.
type fakeProvider struct {
	importErr    error
	authorizeErr error
	verifyErr    error

	imported   []Handle
	authorized map[Handle]bool
	verified   [][]Handle
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{authorized: make(map[Handle]bool)}
}

func (f *fakeProvider) ImportCiphertext(_ context.Context, external, _ []byte) (Handle, error) {
	if f.importErr != nil {
		return "", f.importErr
	}
	h := Handle("h:" + string(external))
	f.imported = append(f.imported, h)
	return h, nil
}

func (f *fakeProvider) AuthorizePublicDecryption(_ context.Context, handle Handle) error {
	if f.authorizeErr != nil {
		return f.authorizeErr
	}
	f.authorized[handle] = true
	return nil
}

func (f *fakeProvider) VerifyDecryptionProof(_ context.Context, handles []Handle, _, _ []byte) error {
	f.verified = append(f.verified, handles)
	return f.verifyErr
}

func claimedBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func validParams(id string) CreatePolicyParams {
	return CreatePolicyParams{
		PolicyID:      id,
		Ciphertext:    []byte("ct-" + id),
		ValidityProof: []byte("proof-" + id),
		BasePremium:   1000,
		PublicFactor:  50,
		VehicleInfo:   "2021 sedan",
		Submitter:     "alice",
	}
}

func newTestLedger(t *testing.T, provider Provider, opts ...Option) *Ledger {
	t.Helper()
	ledger, err := New(provider, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ledger
}

func TestNewRequiresProvider(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilProvider) {
		t.Errorf("New(nil): err = %v, want ErrNilProvider", err)
	}
}

func TestCreatePolicyValidation(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreatePolicyParams)
	}{
		{"missing policyID", func(p *CreatePolicyParams) { p.PolicyID = "" }},
		{"missing ciphertext", func(p *CreatePolicyParams) { p.Ciphertext = nil }},
		{"missing validity proof", func(p *CreatePolicyParams) { p.ValidityProof = nil }},
		{"negative basePremium", func(p *CreatePolicyParams) { p.BasePremium = -1 }},
		{"negative publicFactor", func(p *CreatePolicyParams) { p.PublicFactor = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams("p1")
			tt.mutate(&params)

			err := ledger.CreatePolicy(ctx, params)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	if got := len(ledger.PolicyIDs()); got != 0 {
		t.Errorf("len(PolicyIDs()) = %d after rejected creations, want 0", got)
	}
}

func TestCreatePolicyDuplicate(t *testing.T) {
	provider := newFakeProvider()
	ledger := newTestLedger(t, provider)
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("first CreatePolicy: %v", err)
	}

	err := ledger.CreatePolicy(ctx, validParams("p1"))
	if !errors.Is(err, ErrPolicyExists) {
		t.Errorf("second CreatePolicy: err = %v, want ErrPolicyExists", err)
	}

	// State equals the state after the first call only.
	if got := ledger.PolicyIDs(); len(got) != 1 || got[0] != "p1" {
		t.Errorf("PolicyIDs() = %v, want [p1]", got)
	}
	if got := len(provider.imported); got != 1 {
		t.Errorf("provider imports = %d, want 1 (duplicate rejected before import)", got)
	}
}

func TestCreatePolicyImportRejected(t *testing.T) {
	provider := newFakeProvider()
	provider.importErr = fmt.Errorf("malformed ciphertext")
	ledger := newTestLedger(t, provider)

	err := ledger.CreatePolicy(context.Background(), validParams("p1"))
	if !errors.Is(err, ErrInvalidEncryptionProof) {
		t.Errorf("err = %v, want ErrInvalidEncryptionProof", err)
	}

	if got := len(ledger.PolicyIDs()); got != 0 {
		t.Errorf("len(PolicyIDs()) = %d after rejected import, want 0", got)
	}
	if _, err := ledger.PolicyDetails("p1"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("PolicyDetails after rejected import: err = %v, want ErrPolicyNotFound", err)
	}
}

func TestCreatePolicyAuthorizationFailureAborts(t *testing.T) {
	provider := newFakeProvider()
	provider.authorizeErr = fmt.Errorf("kms unavailable")
	ledger := newTestLedger(t, provider)

	err := ledger.CreatePolicy(context.Background(), validParams("p1"))
	if !errors.Is(err, ErrAuthorizationFailed) {
		t.Errorf("err = %v, want ErrAuthorizationFailed", err)
	}

	// A policy that can never be decrypted must not be committed.
	if got := len(ledger.PolicyIDs()); got != 0 {
		t.Errorf("len(PolicyIDs()) = %d after failed authorization, want 0", got)
	}
}

func TestDecryptScoreNotFound(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())

	err := ledger.DecryptScore(context.Background(), "ghost", claimedBytes(10), []byte("proof"))
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("err = %v, want ErrPolicyNotFound", err)
	}
}

func TestDecryptScoreProofRejected(t *testing.T) {
	provider := newFakeProvider()
	ledger := newTestLedger(t, provider)
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	provider.verifyErr = fmt.Errorf("signature mismatch")
	err := ledger.DecryptScore(ctx, "p1", claimedBytes(10), []byte("bad"))
	if !errors.Is(err, ErrDecryptionProofInvalid) {
		t.Errorf("err = %v, want ErrDecryptionProofInvalid", err)
	}

	details, err := ledger.PolicyDetails("p1")
	if err != nil {
		t.Fatalf("PolicyDetails: %v", err)
	}
	if details.Decrypted {
		t.Error("policy decrypted after rejected proof")
	}

	// Retry with a corrected proof succeeds.
	provider.verifyErr = nil
	if err := ledger.DecryptScore(ctx, "p1", claimedBytes(10), []byte("good")); err != nil {
		t.Errorf("retry DecryptScore: %v", err)
	}
}

func TestDecryptScoreVerifiesAgainstRecordedHandle(t *testing.T) {
	provider := newFakeProvider()
	ledger := newTestLedger(t, provider)
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if err := ledger.CreatePolicy(ctx, validParams("p2")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	if err := ledger.DecryptScore(ctx, "p2", claimedBytes(10), []byte("proof")); err != nil {
		t.Fatalf("DecryptScore: %v", err)
	}

	// The provider must have been asked about p2's handle specifically.
	want := Handle("h:ct-p2")
	if len(provider.verified) != 1 || len(provider.verified[0]) != 1 || provider.verified[0][0] != want {
		t.Errorf("verified handles = %v, want [[%s]]", provider.verified, want)
	}
}

func TestDecryptScoreBadPlaintextWidth(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	err := ledger.DecryptScore(ctx, "p1", []byte{1, 2, 3}, []byte("proof"))
	if !errors.Is(err, ErrDecryptionProofInvalid) {
		t.Errorf("err = %v, want ErrDecryptionProofInvalid", err)
	}

	details, _ := ledger.PolicyDetails("p1")
	if details.Decrypted {
		t.Error("policy decrypted after bad plaintext width")
	}
}

func TestDecryptScoreOutOfRange(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	err := ledger.DecryptScore(ctx, "p1", claimedBytes(150), []byte("proof"))
	if !errors.Is(err, ErrScoreOutOfRange) {
		t.Errorf("err = %v, want ErrScoreOutOfRange", err)
	}

	// The policy stays revealable: a corrected in-range reveal succeeds.
	if err := ledger.DecryptScore(ctx, "p1", claimedBytes(100), []byte("proof")); err != nil {
		t.Errorf("in-range DecryptScore after rejection: %v", err)
	}
}

func TestDecryptScoreIsOnceOnly(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if err := ledger.DecryptScore(ctx, "p1", claimedBytes(30), []byte("proof")); err != nil {
		t.Fatalf("DecryptScore: %v", err)
	}

	err := ledger.DecryptScore(ctx, "p1", claimedBytes(99), []byte("proof"))
	if !errors.Is(err, ErrAlreadyDecrypted) {
		t.Errorf("second DecryptScore: err = %v, want ErrAlreadyDecrypted", err)
	}

	details, err := ledger.PolicyDetails("p1")
	if err != nil {
		t.Fatalf("PolicyDetails: %v", err)
	}
	if details.DecryptedScore != 30 {
		t.Errorf("DecryptedScore = %d after rejected re-decrypt, want 30", details.DecryptedScore)
	}
}

func TestCalculatePremium(t *testing.T) {
	tests := []struct {
		name         string
		basePremium  int64
		publicFactor int64
		score        uint64
		want         int64
	}{
		{"round trip", 1000, 50, 30, 750},
		{"scenario", 1000, 20, 80, 220},
		{"truncating division", 999, 0, 33, 669}, // 999*67/100 = 669.33 -> 669
		{"max score", 1000, 50, 100, 50},
		{"zero score", 1000, 50, 0, 1050},
		{"zero base", 0, 7, 40, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newTestLedger(t, newFakeProvider())
			ctx := context.Background()

			params := validParams("p1")
			params.BasePremium = tt.basePremium
			params.PublicFactor = tt.publicFactor
			if err := ledger.CreatePolicy(ctx, params); err != nil {
				t.Fatalf("CreatePolicy: %v", err)
			}

			// Premium queries must fail while the score is sealed.
			if _, err := ledger.CalculatePremium("p1"); !errors.Is(err, ErrScoreNotDecrypted) {
				t.Fatalf("CalculatePremium before decrypt: err = %v, want ErrScoreNotDecrypted", err)
			}

			if err := ledger.DecryptScore(ctx, "p1", claimedBytes(tt.score), []byte("proof")); err != nil {
				t.Fatalf("DecryptScore: %v", err)
			}

			got, err := ledger.CalculatePremium("p1")
			if err != nil {
				t.Fatalf("CalculatePremium: %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculatePremium() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCalculatePremiumNotFound(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())

	if _, err := ledger.CalculatePremium("ghost"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("err = %v, want ErrPolicyNotFound", err)
	}
}

func TestPolicyIDsOrder(t *testing.T) {
	provider := newFakeProvider()
	ledger := newTestLedger(t, provider)
	ctx := context.Background()

	ids := []string{"p3", "p1", "p2"}
	for _, id := range ids {
		if err := ledger.CreatePolicy(ctx, validParams(id)); err != nil {
			t.Fatalf("CreatePolicy(%s): %v", id, err)
		}
	}

	// A failed creation must not append to the registry.
	provider.importErr = fmt.Errorf("rejected")
	_ = ledger.CreatePolicy(ctx, validParams("p4"))

	got := ledger.PolicyIDs()
	if len(got) != len(ids) {
		t.Fatalf("len(PolicyIDs()) = %d, want %d", len(got), len(ids))
	}
	for i, id := range ids {
		if got[i] != id {
			t.Errorf("PolicyIDs()[%d] = %s, want %s", i, got[i], id)
		}
	}
}

func TestPolicyDetails(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	ledger := newTestLedger(t, newFakeProvider(), WithClock(func() time.Time { return createdAt }))
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	details, err := ledger.PolicyDetails("p1")
	if err != nil {
		t.Fatalf("PolicyDetails: %v", err)
	}

	if details.PolicyID != "p1" {
		t.Errorf("PolicyID = %s, want p1", details.PolicyID)
	}
	if details.Owner != "alice" {
		t.Errorf("Owner = %s, want alice", details.Owner)
	}
	if details.VehicleInfo != "2021 sedan" {
		t.Errorf("VehicleInfo = %s, want 2021 sedan", details.VehicleInfo)
	}
	if !details.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v", details.CreatedAt, createdAt)
	}
	if details.Decrypted {
		t.Error("Decrypted = true for fresh policy")
	}
	if details.BasePremium != 1000 || details.PublicFactor != 50 {
		t.Errorf("premium params = (%d, %d), want (1000, 50)", details.BasePremium, details.PublicFactor)
	}

	if _, err := ledger.PolicyDetails("ghost"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("PolicyDetails(ghost): err = %v, want ErrPolicyNotFound", err)
	}
}

func TestEncryptedScore(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	handle, err := ledger.EncryptedScore("p1")
	if err != nil {
		t.Fatalf("EncryptedScore: %v", err)
	}
	if handle != Handle("h:ct-p1") {
		t.Errorf("EncryptedScore() = %s, want h:ct-p1", handle)
	}

	if _, err := ledger.EncryptedScore("ghost"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("EncryptedScore(ghost): err = %v, want ErrPolicyNotFound", err)
	}
}

func TestClose(t *testing.T) {
	ledger := newTestLedger(t, newFakeProvider())
	ctx := context.Background()

	if err := ledger.CreatePolicy(ctx, validParams("p1")); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	if err := ledger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close is idempotent.
	if err := ledger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := ledger.CreatePolicy(ctx, validParams("p2")); !errors.Is(err, ErrLedgerClosed) {
		t.Errorf("CreatePolicy after close: err = %v, want ErrLedgerClosed", err)
	}
	if err := ledger.DecryptScore(ctx, "p1", claimedBytes(1), []byte("proof")); !errors.Is(err, ErrLedgerClosed) {
		t.Errorf("DecryptScore after close: err = %v, want ErrLedgerClosed", err)
	}
}
