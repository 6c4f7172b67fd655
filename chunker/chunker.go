// Package chunker splits documents into token-bounded chunks and computes
// token budgets for pairing two documents inside one model context window.
package chunker

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/checkpg/tokenizer"
)

// Configuration errors. These are fatal and never retried.
var (
	// ErrInvalidChunkSize is returned when the maximum chunk size is not positive.
	ErrInvalidChunkSize = errors.New("chunker: max chunk size must be positive")

	// ErrInvalidOverlap is returned when the overlap fraction is outside [0, 1)
	// or the resulting overlap leaves no forward progress between chunks.
	ErrInvalidOverlap = errors.New("chunker: invalid overlap")

	// ErrBudgetExhausted is returned when the reference text plus the prompt
	// reserve already exceed the model's context budget.
	ErrBudgetExhausted = errors.New("chunker: reference text exceeds model token budget")
)

// Chunk splits text into an ordered sequence of substrings, each at most
// maxChunkSize tokens. overlapFraction in [0, 1) controls how many tokens of
// each chunk are repeated at the start of the next one.
//
// Chunk is a pure function of its inputs: calling it twice with identical
// arguments yields identical output. Inputs shorter than maxChunkSize produce
// exactly one chunk. Chunk boundaries are token-index boundaries, not
// sentence boundaries.
func Chunk(tok tokenizer.Tokenizer, text string, maxChunkSize int, overlapFraction float64) ([]string, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, maxChunkSize)
	}
	if overlapFraction < 0 || overlapFraction >= 1 {
		return nil, fmt.Errorf("%w: fraction %v outside [0, 1)", ErrInvalidOverlap, overlapFraction)
	}

	overlapSize := int(float64(maxChunkSize) * overlapFraction)
	step := maxChunkSize - overlapSize
	if step <= 0 {
		// A non-positive advance would loop forever.
		return nil, fmt.Errorf("%w: overlap of %d tokens leaves no forward progress at chunk size %d",
			ErrInvalidOverlap, overlapSize, maxChunkSize)
	}

	ids := tok.Encode(text)

	chunks := make([]string, 0, Count(len(ids), maxChunkSize, overlapFraction))
	for start := 0; start < len(ids); start += step {
		end := start + maxChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, tok.Decode(ids[start:end]))
	}

	// Empty input still yields one (empty) chunk so callers always have a
	// reference chunk to budget against.
	if len(chunks) == 0 {
		chunks = append(chunks, "")
	}

	return chunks, nil
}

// Count returns the number of chunks Chunk produces for a text of tokenCount
// tokens: ceil(tokenCount / (maxChunkSize - overlapSize)) with overlap, else
// ceil(tokenCount / maxChunkSize).
func Count(tokenCount, maxChunkSize int, overlapFraction float64) int {
	if tokenCount <= 0 || maxChunkSize <= 0 {
		return 1
	}
	step := maxChunkSize - int(float64(maxChunkSize)*overlapFraction)
	if step <= 0 {
		return 1
	}
	return (tokenCount + step - 1) / step
}

// Allocate computes the maximum chunk size for one side of a comparison given
// the model's total context size, the reference text held fixed on the other
// side, and a fixed token reserve for prompt scaffolding.
//
// The reference text is by convention the first chunk of the fixed side: all
// chunks from one Chunk invocation are equal-sized except possibly the last,
// so the first is an upper bound for the rest.
func Allocate(tok tokenizer.Tokenizer, modelMaxTokens int, referenceText string, reserve int) (int, error) {
	maxChunkSize := modelMaxTokens - tok.CountTokens(referenceText) - reserve
	if maxChunkSize <= 0 {
		return 0, fmt.Errorf("%w: model max %d, reference %d tokens, reserve %d",
			ErrBudgetExhausted, modelMaxTokens, tok.CountTokens(referenceText), reserve)
	}
	return maxChunkSize, nil
}
