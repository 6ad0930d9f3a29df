package scorevault

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Bus topics used when an event publisher is configured.
const (
	// TopicPolicyCreated carries PolicyCreated events.
	TopicPolicyCreated = "scorevault.policy.created"
	// TopicScoreDecrypted carries ScoreDecrypted events.
	TopicScoreDecrypted = "scorevault.score.decrypted"
)

// Event is a committed ledger state transition notification.
type Event interface {
	// EventPolicyID returns the policy the event belongs to.
	EventPolicyID() string

	topic() string
}

// PolicyCreated is emitted after a policy record and its registry entry
// have been committed.
type PolicyCreated struct {
	// PolicyID is the created policy's identifier.
	PolicyID string `json:"policyId"`
	// Submitter is the identity that created the policy.
	Submitter string `json:"submitter"`
	// At is the creation timestamp.
	At time.Time `json:"at"`
}

// EventPolicyID implements Event.
func (e PolicyCreated) EventPolicyID() string { return e.PolicyID }

func (e PolicyCreated) topic() string { return TopicPolicyCreated }

// ScoreDecrypted is emitted after a verified score has been committed.
type ScoreDecrypted struct {
	// PolicyID is the decrypted policy's identifier.
	PolicyID string `json:"policyId"`
	// Score is the revealed risk score.
	Score int64 `json:"score"`
	// At is the decryption timestamp.
	At time.Time `json:"at"`
}

// EventPolicyID implements Event.
func (e ScoreDecrypted) EventPolicyID() string { return e.PolicyID }

func (e ScoreDecrypted) topic() string { return TopicScoreDecrypted }

// emit delivers a committed event to in-process subscribers and, when a
// publisher is configured, to the event bus. Called after the state
// transition is committed and the write lock released; a publish failure
// is logged and never fails the already-committed transition.
func (l *Ledger) emit(ev Event) {
	l.subs.notify(ev)

	if l.publisher == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		l.log.Warn().Err(err).Str("policy_id", ev.EventPolicyID()).Msg("marshal event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("policy_id", ev.EventPolicyID())

	if err := l.publisher.Publish(ev.topic(), msg); err != nil {
		l.log.Warn().Err(err).
			Str("topic", ev.topic()).
			Str("policy_id", ev.EventPolicyID()).
			Msg("publish event")
	}
}
