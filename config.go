package checkpg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/checkpg/engine"
	"github.com/youssefsiam38/checkpg/hooks"
	"github.com/youssefsiam38/checkpg/retry"
	"github.com/youssefsiam38/checkpg/tokenizer"
)

// ModelInfo contains model-specific parameters
type ModelInfo struct {
	// MaxContextTokens is the model's total context window, the budget the
	// chunk pairing works against.
	MaxContextTokens int

	// DefaultResponseTokens is the response token cap for model calls.
	DefaultResponseTokens int

	// Encoding is the tiktoken encoding used to count the model's tokens.
	Encoding string
}

// KnownModels maps model IDs to their capabilities
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5-20250929": {MaxContextTokens: 200000, DefaultResponseTokens: 16384, Encoding: "cl100k_base"},
	"claude-opus-4-5-20251101":   {MaxContextTokens: 200000, DefaultResponseTokens: 16384, Encoding: "cl100k_base"},
	"claude-3-5-sonnet-20241022": {MaxContextTokens: 200000, DefaultResponseTokens: 8192, Encoding: "cl100k_base"},
	"claude-3-5-haiku-20241022":  {MaxContextTokens: 200000, DefaultResponseTokens: 8192, Encoding: "cl100k_base"},
}

// GetModelInfo returns model info, using sensible defaults for unknown models
func GetModelInfo(model string) ModelInfo {
	if info, ok := KnownModels[model]; ok {
		return info
	}
	// Sensible defaults for unknown models
	return ModelInfo{MaxContextTokens: 128000, DefaultResponseTokens: 8192, Encoding: "cl100k_base"}
}

// ClientConfig holds configuration for the Client.
type ClientConfig struct {
	// APIKey is the Anthropic API key (required if Client is not provided)
	APIKey string

	// Client is an existing Anthropic client (optional, takes precedence over APIKey)
	Client *anthropic.Client

	// Model is the model ID used for analysis and evaluation (required)
	Model string

	// InstanceID is a unique identifier for this client instance (optional)
	// If not provided, a UUID will be generated
	InstanceID string

	// Tokenizer overrides the tokenizer derived from Model (optional)
	Tokenizer tokenizer.Tokenizer

	// MaxContextTokens overrides the model's context window (optional)
	MaxContextTokens int

	// ResponseTokens is the response cap for model calls (optional)
	ResponseTokens int

	// Reserve is the token allowance for prompt scaffolding (optional)
	// Default: engine.DefaultReserve
	Reserve int

	// OverlapFraction in [0, 1) controls chunk overlap (optional)
	OverlapFraction float64

	// RetryCount is the number of retries per failed model call (optional)
	// Default: 3
	RetryCount int

	// RetryDelay is the fixed delay between retries (optional)
	// Default: 60 seconds
	RetryDelay time.Duration

	// MaxConcurrentChecks is how many checks one instance runs at once (optional)
	// Default: 3
	MaxConcurrentChecks int

	// MaxAttempts is the number of queue deliveries before a check is
	// dead-lettered (optional)
	// Default: 3
	MaxAttempts int

	// PollInterval is how often workers poll for pending checks when no
	// notification arrives (optional)
	// Default: 5 seconds
	PollInterval time.Duration

	// VisibilityTimeout is how long a claimed check may run before it is
	// released for redelivery (optional)
	// Default: 30 minutes
	VisibilityTimeout time.Duration

	// StaleReleaseInterval is how often stale claims are swept (optional)
	// Default: 1 minute
	StaleReleaseInterval time.Duration

	// CheckRetention is how long finished checks are kept before deletion.
	// Zero disables retention sweeping. Audit logs are always kept.
	CheckRetention time.Duration

	// RetentionSweepInterval is how often expired checks are deleted (optional)
	// Default: 1 hour
	RetentionSweepInterval time.Duration

	// SigningKey signs time-limited document read URLs (required)
	SigningKey []byte

	// DocumentBaseURL is the base URL signed document links point at (required)
	// Example: "https://host/documents"
	DocumentBaseURL string

	// SignedURLTTL is the lifetime of signed result links (optional)
	// Default: 24 hours
	SignedURLTTL time.Duration

	// Logger for structured logging (optional)
	// Default: slog.Default()
	Logger *slog.Logger

	// OnError is called when background operations fail (optional)
	OnError func(err error)

	// Hooks observes check lifecycle events (optional)
	Hooks *hooks.Registry
}

// Validate validates the configuration
func (c *ClientConfig) Validate() error {
	if c.Client == nil && c.APIKey == "" {
		return fmt.Errorf("%w: APIKey or Client is required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: Model is required", ErrInvalidConfig)
	}
	if len(c.SigningKey) == 0 {
		return fmt.Errorf("%w: SigningKey is required", ErrInvalidConfig)
	}
	if c.DocumentBaseURL == "" {
		return fmt.Errorf("%w: DocumentBaseURL is required", ErrInvalidConfig)
	}
	if c.OverlapFraction < 0 || c.OverlapFraction >= 1 {
		return fmt.Errorf("%w: OverlapFraction %v outside [0, 1)", ErrInvalidConfig, c.OverlapFraction)
	}
	if c.Reserve < 0 {
		return fmt.Errorf("%w: Reserve must not be negative", ErrInvalidConfig)
	}
	return nil
}

// withDefaults fills zero-valued optional fields.
func (c *ClientConfig) withDefaults() *ClientConfig {
	out := *c
	info := GetModelInfo(c.Model)

	if out.MaxContextTokens == 0 {
		out.MaxContextTokens = info.MaxContextTokens
	}
	if out.ResponseTokens == 0 {
		out.ResponseTokens = info.DefaultResponseTokens
	}
	if out.Reserve == 0 {
		out.Reserve = engine.DefaultReserve
	}
	if out.RetryCount == 0 {
		out.RetryCount = 3
	}
	if out.RetryDelay == 0 {
		out.RetryDelay = 60 * time.Second
	}
	if out.MaxConcurrentChecks == 0 {
		out.MaxConcurrentChecks = 3
	}
	if out.MaxAttempts == 0 {
		out.MaxAttempts = 3
	}
	if out.PollInterval == 0 {
		out.PollInterval = 5 * time.Second
	}
	if out.VisibilityTimeout == 0 {
		out.VisibilityTimeout = 30 * time.Minute
	}
	if out.StaleReleaseInterval == 0 {
		out.StaleReleaseInterval = time.Minute
	}
	if out.SignedURLTTL == 0 {
		out.SignedURLTTL = 24 * time.Hour
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Hooks == nil {
		out.Hooks = hooks.NewRegistry()
	}
	return &out
}

// retryPolicy builds the per-call retry policy from the configuration.
func (c *ClientConfig) retryPolicy() retry.Policy {
	return retry.Policy{
		RetryCount: c.RetryCount,
		Delay:      c.RetryDelay,
	}
}
