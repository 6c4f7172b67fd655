// Package llm provides the Anthropic-backed model calls for compliance
// analysis and evaluation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/youssefsiam38/checkpg/eval"
	"github.com/youssefsiam38/checkpg/prompts"
)

var (
	// ErrEmptyResponse indicates the model returned no text content.
	ErrEmptyResponse = errors.New("llm: empty response from model")

	// ErrMalformedEvaluation indicates the evaluation response did not match
	// the expected JSON schema. Callers retry these through their policy.
	ErrMalformedEvaluation = errors.New("llm: malformed evaluation response")
)

// Service issues chat completions against the Anthropic API.
type Service struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewService creates a Service using the given client, model, and response
// token limit.
func NewService(client *anthropic.Client, model string, maxTokens int) *Service {
	return &Service{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

// AnalyzePolicy checks one engagement letter chunk against one policy chunk
// and returns the model's violation listing verbatim.
func (s *Service) AnalyzePolicy(ctx context.Context, engagementChunk, policyChunk string) (string, error) {
	text, err := s.complete(ctx, prompts.AnalysisSystem(engagementChunk), prompts.AnalysisUser(policyChunk))
	if err != nil {
		return "", fmt.Errorf("llm: policy analysis failed: %w", err)
	}
	return text, nil
}

// EvaluateContent rates generated violations against ground truth. The model
// is asked for a JSON object with a rating in {1, 3, 5} and its thoughts;
// anything else comes back as ErrMalformedEvaluation.
func (s *Service) EvaluateContent(ctx context.Context, groundTruth, generated string) (eval.Rating, string, error) {
	text, err := s.complete(ctx, prompts.EvalSystem(groundTruth, generated), "Evaluate the generated content now.")
	if err != nil {
		return 0, "", fmt.Errorf("llm: evaluation failed: %w", err)
	}
	return parseEvaluation(text)
}

// SummarizeThoughts condenses the joined rationales of a multi-pair
// evaluation into a short summary.
func (s *Service) SummarizeThoughts(ctx context.Context, joined string) (string, error) {
	text, err := s.complete(ctx, prompts.SummarizeThoughts(joined), "Summarize the detailed thoughts now.")
	if err != nil {
		return "", fmt.Errorf("llm: summarization failed: %w", err)
	}
	return text, nil
}

func (s *Service) complete(ctx context.Context, system, user string) (string, error) {
	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if out.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return out.String(), nil
}

type evaluationResponse struct {
	Rating   *int   `json:"rating"`
	Thoughts string `json:"thoughts"`
}

// parseEvaluation decodes the model's evaluation JSON. Models sometimes wrap
// JSON in code fences despite instructions, so fences are stripped before
// decoding.
func parseEvaluation(text string) (eval.Rating, string, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp evaluationResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrMalformedEvaluation, err)
	}
	if resp.Rating == nil {
		return 0, "", fmt.Errorf("%w: missing rating", ErrMalformedEvaluation)
	}
	rating := eval.Rating(*resp.Rating)
	if !rating.IsValid() {
		return 0, "", fmt.Errorf("%w: rating %d outside {1, 3, 5}", ErrMalformedEvaluation, *resp.Rating)
	}
	if resp.Thoughts == "" {
		return 0, "", fmt.Errorf("%w: missing thoughts", ErrMalformedEvaluation)
	}
	return rating, resp.Thoughts, nil
}
