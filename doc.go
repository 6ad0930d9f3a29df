// Package scorevault implements a confidential insurance policy ledger:
// policies carry an encrypted risk score that is admitted with a validity
// proof, later revealed through a verifiable decryption proof, and only
// then priced.
//
// The ledger delegates all cryptography to a capability Provider with a
// binary accept/reject contract; the oracle subpackage supplies a concrete
// provider backed by ML-KEM-768 envelope encryption and ML-DSA-65
// attestations.
//
// Basic usage:
//
//	gw, err := oracle.NewGateway("insurance-v1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ledger, err := scorevault.New(gw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ledger.Close()
//
//	orch, err := scorevault.NewOrchestrator(ledger, gw, "insurance-v1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Seal and submit a confidential risk score
//	err = orch.SubmitPolicy(ctx, scorevault.SubmitPolicyParams{
//	    PolicyID:    "p1",
//	    Score:       80,
//	    BasePremium: 1000,
//	    PublicFactor: 20,
//	    VehicleInfo: "2021 sedan",
//	    Submitter:   "alice",
//	})
//
//	// Later: verifiable reveal, then pricing
//	err = orch.RevealScore(ctx, "p1")
//	premium, err := ledger.CalculatePremium("p1")
package scorevault
