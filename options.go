package scorevault

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

const defaultWaitTimeout = 60 * time.Second

// ledgerConfig holds configuration for the ledger.
type ledgerConfig struct {
	logger    zerolog.Logger
	publisher message.Publisher
	now       func() time.Time
}

// waitConfig holds configuration for waiting on decryption.
type waitConfig struct {
	timeout time.Duration
}

// Option configures the ledger.
type Option func(*ledgerConfig)

// WaitOption configures decryption waiting.
type WaitOption func(*waitConfig)

// WithLogger sets the structured logger used for state transition and
// rejection logging. Default: a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *ledgerConfig) {
		c.logger = logger
	}
}

// WithEventPublisher sets a message publisher that receives every committed
// event as JSON on the scorevault.* topics. Publishing happens after commit;
// failures are logged and never undo a transition.
func WithEventPublisher(publisher message.Publisher) Option {
	return func(c *ledgerConfig) {
		c.publisher = publisher
	}
}

// WithClock sets the time source used for creation and decryption
// timestamps. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ledgerConfig) {
		c.now = now
	}
}

// WithWaitTimeout sets the timeout for WaitForDecryption.
// Default: 60 seconds.
func WithWaitTimeout(timeout time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = timeout
	}
}
