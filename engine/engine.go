// Package engine implements the chunked compliance analysis engine.
//
// Both the engagement letter and the policy document can exceed the model's
// context budget, so the engine partitions both into token-bounded chunks,
// pairs them exhaustively under a shared token budget, drives one remote
// analysis call per pair through the retry policy, accumulates non-empty
// violation text, and reports monotonically increasing progress after every
// pair.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/youssefsiam38/checkpg/chunker"
	"github.com/youssefsiam38/checkpg/retry"
	"github.com/youssefsiam38/checkpg/tokenizer"
)

// NoViolationsSentinel is the exact phrase the analysis prompt instructs the
// model to return when a pair is clean. Responses equal to it (case
// insensitive) contribute nothing to the accumulator.
const NoViolationsSentinel = "No violations found."

// DefaultReserve is the token allowance reserved for prompt scaffolding,
// subtracted from the model's context budget.
const DefaultReserve = 1000

// AnalyzeFunc performs the remote analysis of one (engagement chunk, policy
// chunk) pair and returns the model's violation text, or the sentinel phrase
// when the pair is clean.
type AnalyzeFunc func(ctx context.Context, engagementChunk, policyChunk string) (string, error)

// ProgressFunc receives the progress percentage in [0, 100] after every
// processed pair. Emission is per-pair, not per-violation.
type ProgressFunc func(percent int)

// Config holds the engine configuration.
type Config struct {
	// Tokenizer converts text to model-vocabulary token ids (required).
	Tokenizer tokenizer.Tokenizer

	// ModelMaxTokens is the model's total context size (required).
	ModelMaxTokens int

	// Reserve is the token allowance for prompt scaffolding.
	// Default: DefaultReserve
	Reserve int

	// OverlapFraction in [0, 1) controls chunk overlap on both sides.
	// Default: 0
	OverlapFraction float64

	// Retry is the per-pair retry policy for the remote call.
	Retry retry.Policy
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Tokenizer == nil {
		return fmt.Errorf("engine: tokenizer is required")
	}
	if c.ModelMaxTokens <= 0 {
		return fmt.Errorf("engine: model max tokens must be positive, got %d", c.ModelMaxTokens)
	}
	if c.Reserve < 0 {
		return fmt.Errorf("engine: reserve must not be negative, got %d", c.Reserve)
	}
	if c.OverlapFraction < 0 || c.OverlapFraction >= 1 {
		return fmt.Errorf("engine: overlap fraction %v outside [0, 1)", c.OverlapFraction)
	}
	return nil
}

// Result is the outcome of one successful analysis run.
type Result struct {
	// Violations is the accumulated violation text in chunk-pair order,
	// possibly empty. Emptiness means "no violations found".
	Violations string

	// PairCount is the total number of (engagement, policy) chunk pairs
	// processed.
	PairCount int
}

// Engine pairs engagement and policy chunks and drives the remote analysis
// call per pair. An Engine is stateless across runs; all run state lives on
// the stack of Analyze.
type Engine struct {
	config Config
}

// New creates an engine from the configuration.
func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Reserve == 0 {
		config.Reserve = DefaultReserve
	}
	return &Engine{config: config}, nil
}

// Analyze chunks both documents, invokes analyze for every (engagement chunk,
// policy chunk) pair in engagement-major order, and returns the accumulated
// violations verbatim together with the processed pair count.
//
// The engagement side is capped at half the model budget to leave headroom
// for the policy side; the policy chunk size is then allocated against the
// first engagement chunk plus the reserve. The policy chunking is computed
// once and reused for every engagement chunk.
//
// Exhausted retries on any pair abort the whole run: partial, silently
// incomplete coverage is worse than an explicit failure in an audit workflow.
// Cancellation is checked before each pair; an interrupted run returns the
// context error, never a truncated success.
func (e *Engine) Analyze(ctx context.Context, engagementText, policyText string, analyze AnalyzeFunc, progress ProgressFunc) (*Result, error) {
	cfg := e.config

	engagementChunks, err := chunker.Chunk(cfg.Tokenizer, engagementText, cfg.ModelMaxTokens/2, cfg.OverlapFraction)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to chunk engagement letter: %w", err)
	}

	policyChunkSize, err := chunker.Allocate(cfg.Tokenizer, cfg.ModelMaxTokens, engagementChunks[0], cfg.Reserve)
	if err != nil {
		return nil, err
	}

	policyChunks, err := chunker.Chunk(cfg.Tokenizer, policyText, policyChunkSize, cfg.OverlapFraction)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to chunk policy document: %w", err)
	}

	// Fixed once chunking completes, never recomputed mid-run.
	totalPairs := len(engagementChunks) * len(policyChunks)

	var violations strings.Builder
	processed := 0

	for _, engagementChunk := range engagementChunks {
		for _, policyChunk := range policyChunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			engagementChunk, policyChunk := engagementChunk, policyChunk
			response, err := retry.Do(ctx, cfg.Retry, func(ctx context.Context) (string, error) {
				return analyze(ctx, engagementChunk, policyChunk)
			})
			if err != nil {
				return nil, fmt.Errorf("engine: analysis failed after %d pairs: %w", processed, err)
			}

			if !IsNoViolation(response) {
				violations.WriteString(response)
				violations.WriteString("\n")
			}

			processed++
			if progress != nil {
				progress(processed * 100 / totalPairs)
			}
		}
	}

	return &Result{
		Violations: violations.String(),
		PairCount:  processed,
	}, nil
}

// IsNoViolation reports whether a per-pair response carries no violation:
// empty, whitespace-only, or the exact sentinel phrase in any case.
func IsNoViolation(response string) bool {
	trimmed := strings.TrimSpace(response)
	return trimmed == "" || strings.EqualFold(trimmed, NoViolationsSentinel)
}
