package scorevault

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// Score bounds accepted at decryption time. A verified plaintext outside
// this range is rejected before commit so the policy stays revealable.
const (
	MinScore = 0
	MaxScore = 100
)

// ClaimedPlaintextSize is the fixed width of a claimed plaintext: an
// 8-byte big-endian unsigned integer.
const ClaimedPlaintextSize = 8

// decodeClaimed decodes a claimed plaintext into its integer value. The
// width is part of the ledger protocol: providers attest over exactly
// these bytes.
func decodeClaimed(claimed []byte) (uint64, error) {
	if len(claimed) != ClaimedPlaintextSize {
		return 0, fmt.Errorf("claimed plaintext size %d, want %d", len(claimed), ClaimedPlaintextSize)
	}
	return binary.BigEndian.Uint64(claimed), nil
}

// Ledger is the authoritative policy state machine. It holds every policy
// record keyed by identifier plus an append-only registry of identifiers in
// creation order; together these are the entire durable state surface.
//
// Mutations (CreatePolicy, DecryptScore) are serialized and atomic: every
// provider call is a synchronous accept/reject step taken before state is
// touched, so a rejection leaves the ledger exactly as it was. Reads may
// run concurrently and observe only committed state.
type Ledger struct {
	provider  Provider
	mu        sync.RWMutex
	policies  map[string]*policyRecord
	order     []string
	closed    bool
	subs      *subscriptionManager
	log       zerolog.Logger
	publisher message.Publisher
	now       func() time.Time
}

// New creates a ledger backed by the given capability provider.
func New(provider Provider, opts ...Option) (*Ledger, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}

	cfg := &ledgerConfig{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Ledger{
		provider:  provider,
		policies:  make(map[string]*policyRecord),
		subs:      newSubscriptionManager(),
		log:       cfg.logger,
		publisher: cfg.publisher,
		now:       cfg.now,
	}, nil
}

// checkClosed returns ErrLedgerClosed if the ledger has been closed.
// Caller must hold at least a read lock.
func (l *Ledger) checkClosed() error {
	if l.closed {
		return ErrLedgerClosed
	}
	return nil
}

// CreatePolicy admits an encrypted risk score and commits a new policy.
//
// The ciphertext is imported through the provider (rejection surfaces as
// ErrInvalidEncryptionProof), then authorized for later public decryption.
// Authorization failure aborts the whole creation: a policy without the
// authorization would be permanently non-decryptable, so nothing is
// committed. On success the record and its registry entry are committed
// together and PolicyCreated is emitted.
func (l *Ledger) CreatePolicy(ctx context.Context, params CreatePolicyParams) error {
	if err := params.validate(); err != nil {
		return err
	}

	l.mu.Lock()

	if err := l.checkClosed(); err != nil {
		l.mu.Unlock()
		return err
	}

	if _, exists := l.policies[params.PolicyID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("policy %q: %w", params.PolicyID, ErrPolicyExists)
	}

	handle, err := l.provider.ImportCiphertext(ctx, params.Ciphertext, params.ValidityProof)
	if err != nil {
		l.mu.Unlock()
		l.log.Warn().Err(err).Str("policy_id", params.PolicyID).Msg("ciphertext import rejected")
		return &ProofError{Stage: StageImport, PolicyID: params.PolicyID, Err: err}
	}

	if err := l.provider.AuthorizePublicDecryption(ctx, handle); err != nil {
		l.mu.Unlock()
		l.log.Error().Err(err).Str("policy_id", params.PolicyID).Msg("decryption authorization failed, creation aborted")
		return &ProofError{Stage: StageAuthorize, PolicyID: params.PolicyID, Err: err}
	}

	record := &policyRecord{
		id:           params.PolicyID,
		handle:       handle,
		basePremium:  params.BasePremium,
		publicFactor: params.PublicFactor,
		vehicleInfo:  params.VehicleInfo,
		owner:        params.Submitter,
		createdAt:    l.now(),
		state:        stateCreated,
	}

	l.policies[params.PolicyID] = record
	l.order = append(l.order, params.PolicyID)
	createdAt := record.createdAt
	l.mu.Unlock()

	l.log.Info().
		Str("policy_id", params.PolicyID).
		Str("submitter", params.Submitter).
		Msg("policy created")

	l.emit(PolicyCreated{
		PolicyID:  params.PolicyID,
		Submitter: params.Submitter,
		At:        createdAt,
	})

	return nil
}

// DecryptScore reveals a policy's risk score from a claimed plaintext and
// a decryption proof.
//
// The proof is checked against the specific ciphertext handle recorded for
// this policy, so a proof issued for another policy's ciphertext is
// rejected. Only after acceptance is the plaintext decoded and, if within
// [MinScore, MaxScore], committed; the state flips to decrypted exactly
// once and ScoreDecrypted is emitted. Every failure leaves the ledger
// unchanged, so retrying with a corrected proof is always safe.
func (l *Ledger) DecryptScore(ctx context.Context, policyID string, claimed, proof []byte) error {
	l.mu.Lock()

	if err := l.checkClosed(); err != nil {
		l.mu.Unlock()
		return err
	}

	record, ok := l.policies[policyID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("policy %q: %w", policyID, ErrPolicyNotFound)
	}

	if record.state == stateDecrypted {
		l.mu.Unlock()
		return fmt.Errorf("policy %q: %w", policyID, ErrAlreadyDecrypted)
	}

	if err := l.provider.VerifyDecryptionProof(ctx, []Handle{record.handle}, claimed, proof); err != nil {
		l.mu.Unlock()
		l.log.Warn().Err(err).Str("policy_id", policyID).Msg("decryption proof rejected")
		return &ProofError{Stage: StageVerify, PolicyID: policyID, Err: err}
	}

	value, err := decodeClaimed(claimed)
	if err != nil {
		l.mu.Unlock()
		return &ProofError{Stage: StageDecode, PolicyID: policyID, Err: err}
	}

	if value > MaxScore {
		l.mu.Unlock()
		return fmt.Errorf("policy %q: score %d: %w", policyID, value, ErrScoreOutOfRange)
	}

	record.score = int64(value)
	record.state = stateDecrypted
	decryptedAt := l.now()
	l.mu.Unlock()

	l.log.Info().
		Str("policy_id", policyID).
		Int64("score", int64(value)).
		Msg("score decrypted")

	l.emit(ScoreDecrypted{
		PolicyID: policyID,
		Score:    int64(value),
		At:       decryptedAt,
	})

	return nil
}

// CalculatePremium derives the premium from a revealed score:
//
//	premium = basePremium * (100 - score) / 100 + publicFactor
//
// using truncating integer division. Pure read; fails with
// ErrPolicyNotFound for unknown policies and ErrScoreNotDecrypted while
// the score is still sealed.
func (l *Ledger) CalculatePremium(policyID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.policies[policyID]
	if !ok {
		return 0, fmt.Errorf("policy %q: %w", policyID, ErrPolicyNotFound)
	}

	if record.state != stateDecrypted {
		return 0, fmt.Errorf("policy %q: %w", policyID, ErrScoreNotDecrypted)
	}

	discountFactor := int64(100) - record.score
	return record.basePremium*discountFactor/100 + record.publicFactor, nil
}

// PolicyDetails returns the public view of a policy.
func (l *Ledger) PolicyDetails(policyID string) (*PolicyDetails, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.policies[policyID]
	if !ok {
		return nil, fmt.Errorf("policy %q: %w", policyID, ErrPolicyNotFound)
	}

	return record.details(), nil
}

// PolicyIDs returns all policy identifiers in creation order.
func (l *Ledger) PolicyIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, len(l.order))
	copy(ids, l.order)
	return ids
}

// EncryptedScore returns the ciphertext handle recorded for a policy. It
// exists for the provider-assisted off-ledger decryption workflow and makes
// no decryption decision itself.
func (l *Ledger) EncryptedScore(policyID string) (Handle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.policies[policyID]
	if !ok {
		return "", fmt.Errorf("policy %q: %w", policyID, ErrPolicyNotFound)
	}

	return record.handle, nil
}

// Watch returns a channel that receives events for the given policy as
// they are committed. The channel is not closed when the context is
// cancelled; use a select on ctx.Done() to detect cancellation.
func (l *Ledger) Watch(ctx context.Context, policyID string) <-chan Event {
	return l.watch(ctx, policyID)
}

// WatchAll returns a channel that receives every committed event.
func (l *Ledger) WatchAll(ctx context.Context) <-chan Event {
	return l.watch(ctx, watchAllKey)
}

func (l *Ledger) watch(ctx context.Context, key string) <-chan Event {
	ch := make(chan Event, 16)

	unsubscribe := l.subs.subscribe(key, func(ev Event) {
		select {
		case ch <- ev:
		default:
			// Buffer full, drop
		}
	})

	// Cleanup goroutine: unsubscribe when context is cancelled.
	// We intentionally do not close(ch) to avoid a race where an
	// in-flight callback tries to send after close.
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch
}

// Close closes the ledger. Further mutations fail with ErrLedgerClosed;
// reads keep working and subscriptions are dropped.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	l.subs.clear()

	return nil
}
