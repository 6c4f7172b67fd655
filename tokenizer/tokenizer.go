// Package tokenizer converts text to and from model-vocabulary token ids.
//
// The Tokenizer interface is the only thing the chunking and budgeting code
// depends on, so tests can substitute a deterministic fake while production
// code uses the tiktoken vocabulary of the target model.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer reports token counts and converts text to and from token ids.
//
// Implementations must be deterministic: identical input always produces
// identical output, and Decode(Encode(text)) reproduces text exactly for any
// text drawn from the supported character set. Implementations must be safe
// for concurrent use.
type Tokenizer interface {
	// CountTokens returns the number of tokens in text.
	CountTokens(text string) int

	// Encode converts text to a sequence of token ids.
	Encode(text string) []int

	// Decode converts a sequence of token ids back to text.
	Decode(ids []int) string
}

// Tiktoken is a Tokenizer backed by a tiktoken BPE vocabulary.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewForModel creates a Tokenizer using the vocabulary of the given model
// (for example "gpt-4o"). The vocabulary is loaded once at construction.
func NewForModel(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: failed to load encoding for model %q: %w", model, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// NewEncoding creates a Tokenizer using a named tiktoken encoding
// (for example "cl100k_base"). Useful for models tiktoken has no
// model-to-encoding mapping for.
func NewEncoding(name string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: failed to load encoding %q: %w", name, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tiktoken) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Encode converts text to token ids.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (t *Tiktoken) Decode(ids []int) string {
	return t.enc.Decode(ids)
}
