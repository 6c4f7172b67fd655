// Package eval rates generated compliance output against known-correct
// violations and reduces the per-chunk ratings to a single verdict.
//
// The aggregator structurally mirrors the pairing engine: both sides are
// chunked under the same token budgeting rules and every (ground truth,
// generated) chunk pair produces one rating with a rationale. Multiple
// ratings collapse by majority vote with an optimistic tie-break, and
// multiple rationales collapse through a model-generated summary.
package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/youssefsiam38/checkpg/chunker"
	"github.com/youssefsiam38/checkpg/engine"
	"github.com/youssefsiam38/checkpg/retry"
	"github.com/youssefsiam38/checkpg/tokenizer"
)

// EvaluateFunc rates one (ground truth chunk, generated chunk) pair and
// returns the rating with its rationale.
type EvaluateFunc func(ctx context.Context, groundTruthChunk, generatedChunk string) (Rating, string, error)

// SummarizeFunc condenses the newline-joined rationales of a multi-pair run
// into a single rationale.
type SummarizeFunc func(ctx context.Context, joined string) (string, error)

// Verdict is the reduction over all ratings of one evaluation run.
type Verdict struct {
	// Rating is the value with the highest occurrence count; ties prefer the
	// numerically larger rating.
	Rating Rating `json:"rating"`

	// Rationale is the sole rationale when only one rating was produced,
	// otherwise a model-generated summary of all rationales.
	Rationale string `json:"rationale"`
}

// Config holds the aggregator configuration. It uses the same budgeting
// parameters as the pairing engine.
type Config struct {
	// Tokenizer converts text to model-vocabulary token ids (required).
	Tokenizer tokenizer.Tokenizer

	// ModelMaxTokens is the model's total context size (required).
	ModelMaxTokens int

	// Reserve is the token allowance for prompt scaffolding.
	// Default: engine.DefaultReserve
	Reserve int

	// OverlapFraction in [0, 1) controls chunk overlap on both sides.
	OverlapFraction float64

	// Retry is the retry policy for the per-pair and summarize calls.
	Retry retry.Policy
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Tokenizer == nil {
		return fmt.Errorf("eval: tokenizer is required")
	}
	if c.ModelMaxTokens <= 0 {
		return fmt.Errorf("eval: model max tokens must be positive, got %d", c.ModelMaxTokens)
	}
	if c.Reserve < 0 {
		return fmt.Errorf("eval: reserve must not be negative, got %d", c.Reserve)
	}
	if c.OverlapFraction < 0 || c.OverlapFraction >= 1 {
		return fmt.Errorf("eval: overlap fraction %v outside [0, 1)", c.OverlapFraction)
	}
	return nil
}

// Aggregator evaluates generated content against ground truth.
type Aggregator struct {
	config Config
}

// New creates an aggregator from the configuration.
func New(config Config) (*Aggregator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Reserve == 0 {
		config.Reserve = engine.DefaultReserve
	}
	return &Aggregator{config: config}, nil
}

// Evaluate chunks both texts the way the pairing engine does (ground truth
// taking the engagement role), rates every chunk pair through the retry
// policy, and reduces the ratings to one verdict.
func (a *Aggregator) Evaluate(ctx context.Context, groundTruthText, generatedText string, evaluate EvaluateFunc, summarize SummarizeFunc) (*Verdict, error) {
	cfg := a.config

	truthChunks, err := chunker.Chunk(cfg.Tokenizer, groundTruthText, cfg.ModelMaxTokens/2, cfg.OverlapFraction)
	if err != nil {
		return nil, fmt.Errorf("eval: failed to chunk ground truth: %w", err)
	}

	generatedChunkSize, err := chunker.Allocate(cfg.Tokenizer, cfg.ModelMaxTokens, truthChunks[0], cfg.Reserve)
	if err != nil {
		return nil, err
	}

	generatedChunks, err := chunker.Chunk(cfg.Tokenizer, generatedText, generatedChunkSize, cfg.OverlapFraction)
	if err != nil {
		return nil, fmt.Errorf("eval: failed to chunk generated content: %w", err)
	}

	var (
		ratings    []Rating
		rationales []string
	)

	for _, truthChunk := range truthChunks {
		for _, generatedChunk := range generatedChunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			truthChunk, generatedChunk := truthChunk, generatedChunk
			rated, err := retry.Do(ctx, cfg.Retry, func(ctx context.Context) (ratedPair, error) {
				rating, rationale, err := evaluate(ctx, truthChunk, generatedChunk)
				if err != nil {
					return ratedPair{}, err
				}
				if !rating.IsValid() {
					// A rating outside the closed set is a malformed
					// response; retrying the same prompt may succeed.
					return ratedPair{}, fmt.Errorf("eval: rating %d outside {1, 3, 5}", int(rating))
				}
				return ratedPair{rating, rationale}, nil
			})
			if err != nil {
				return nil, fmt.Errorf("eval: evaluation failed after %d pairs: %w", len(ratings), err)
			}

			ratings = append(ratings, rated.rating)
			rationales = append(rationales, rated.rationale)
		}
	}

	// A single rating passes through with its rationale unchanged.
	if len(ratings) == 1 {
		return &Verdict{Rating: ratings[0], Rationale: rationales[0]}, nil
	}

	joined := strings.Join(rationales, "\n")
	summary, err := retry.Do(ctx, cfg.Retry, func(ctx context.Context) (string, error) {
		return summarize(ctx, joined)
	})
	if err != nil {
		return nil, fmt.Errorf("eval: rationale summarization failed: %w", err)
	}

	return &Verdict{Rating: MajorityVote(ratings), Rationale: summary}, nil
}

type ratedPair struct {
	rating    Rating
	rationale string
}

// MajorityVote returns the rating with the highest occurrence count. Ties
// are broken by preferring the numerically larger rating, an optimistic
// policy choice rather than an algorithmic necessity.
func MajorityVote(ratings []Rating) Rating {
	counts := make(map[Rating]int, len(ratings))
	for _, r := range ratings {
		counts[r]++
	}

	var winner Rating
	for _, r := range ratings {
		if counts[r] > counts[winner] || (counts[r] == counts[winner] && r > winner) {
			winner = r
		}
	}
	return winner
}
