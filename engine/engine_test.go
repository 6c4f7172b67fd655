package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/youssefsiam38/checkpg/chunker"
	"github.com/youssefsiam38/checkpg/internal/testutil"
	"github.com/youssefsiam38/checkpg/retry"
)

func newTestEngine(t *testing.T, modelMaxTokens, reserve int) *Engine {
	t.Helper()

	e, err := New(Config{
		Tokenizer:      testutil.RuneTokenizer{},
		ModelMaxTokens: modelMaxTokens,
		Reserve:        reserve,
		Retry:          retry.Policy{RetryCount: 2, Delay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestNewRejectsNegativeReserve(t *testing.T) {
	_, err := New(Config{
		Tokenizer:      testutil.RuneTokenizer{},
		ModelMaxTokens: 100,
		Reserve:        -10,
	})
	if err == nil {
		t.Fatal("Expected error for negative reserve")
	}
}

func TestAnalyze_PairCountInvariant(t *testing.T) {
	ctx := context.Background()
	tok := testutil.RuneTokenizer{}

	// Model budget 100: engagement chunked at 50, policy budget 100-50-10=40.
	engagement := strings.Repeat("e", 120) // 3 engagement chunks
	policy := strings.Repeat("p", 100)     // ceil(100/40) = 3 policy chunks

	e := newTestEngine(t, 100, 10)

	calls := 0
	result, err := e.Analyze(ctx, engagement, policy,
		func(ctx context.Context, ec, pc string) (string, error) {
			calls++
			return NoViolationsSentinel, nil
		}, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	engChunks := chunker.Count(tok.CountTokens(engagement), 50, 0)
	polChunks := chunker.Count(tok.CountTokens(policy), 40, 0)
	wantPairs := engChunks * polChunks

	if result.PairCount != wantPairs {
		t.Errorf("Expected %d pairs, got %d", wantPairs, result.PairCount)
	}
	if calls != wantPairs {
		t.Errorf("Expected %d analyze calls, got %d", wantPairs, calls)
	}
}

func TestAnalyze_ProgressMonotonicEndsAtHundred(t *testing.T) {
	ctx := context.Background()

	engagement := strings.Repeat("e", 120)
	policy := strings.Repeat("p", 100)

	e := newTestEngine(t, 100, 10)

	var progress []int
	_, err := e.Analyze(ctx, engagement, policy,
		func(ctx context.Context, ec, pc string) (string, error) {
			return NoViolationsSentinel, nil
		},
		func(percent int) {
			progress = append(progress, percent)
		})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(progress) == 0 {
		t.Fatal("Expected progress events")
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("Progress decreased: %d then %d", progress[i-1], progress[i])
		}
	}
	if final := progress[len(progress)-1]; final != 100 {
		t.Errorf("Expected final progress 100, got %d", final)
	}
}

func TestAnalyze_SentinelContributesNothing(t *testing.T) {
	ctx := context.Background()

	e := newTestEngine(t, 1000, 100)

	responses := []string{
		"No violations found.",
		"NO VIOLATIONS FOUND.",
		"  no violations found.  ",
		"",
		"   ",
	}
	for _, resp := range responses {
		resp := resp
		result, err := e.Analyze(ctx, "short letter", "short policy",
			func(ctx context.Context, ec, pc string) (string, error) {
				return resp, nil
			}, nil)
		if err != nil {
			t.Fatalf("Analyze failed for %q: %v", resp, err)
		}
		if result.Violations != "" {
			t.Errorf("Response %q should contribute nothing, got %q", resp, result.Violations)
		}
	}
}

func TestAnalyze_AccumulatesInPairOrder(t *testing.T) {
	ctx := context.Background()

	// 2 engagement chunks x 2 policy chunks.
	engagement := strings.Repeat("e", 80) // chunked at 50
	policy := strings.Repeat("p", 60)     // budget 100-50-10=40

	e := newTestEngine(t, 100, 10)

	pair := 0
	result, err := e.Analyze(ctx, engagement, policy,
		func(ctx context.Context, ec, pc string) (string, error) {
			pair++
			if pair == 2 {
				return NoViolationsSentinel, nil
			}
			return fmt.Sprintf("violation %d", pair), nil
		}, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	want := "violation 1\nviolation 3\nviolation 4\n"
	if result.Violations != want {
		t.Errorf("Expected %q, got %q", want, result.Violations)
	}
}

func TestAnalyze_EmptyRunReturnsEmptyViolations(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 1000, 100)

	result, err := e.Analyze(ctx, "letter", "policy",
		func(ctx context.Context, ec, pc string) (string, error) {
			return NoViolationsSentinel, nil
		}, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.Violations != "" {
		t.Errorf("Expected empty violations, got %q", result.Violations)
	}
	if result.PairCount != 1 {
		t.Errorf("Expected 1 pair, got %d", result.PairCount)
	}
}

func TestAnalyze_FailFastOnExhaustedRetry(t *testing.T) {
	ctx := context.Background()

	engagement := strings.Repeat("e", 120)
	policy := strings.Repeat("p", 100)

	e := newTestEngine(t, 100, 10)

	failure := errors.New("model unavailable")
	calls := 0
	_, err := e.Analyze(ctx, engagement, policy,
		func(ctx context.Context, ec, pc string) (string, error) {
			calls++
			if calls >= 4 {
				return "", failure
			}
			return "some violation", nil
		}, nil)

	if !errors.Is(err, failure) {
		t.Fatalf("Expected underlying failure, got %v", err)
	}
	// Pair 4 fails its first attempt plus 2 retries, then the run aborts:
	// no further pairs are attempted.
	if calls != 6 {
		t.Errorf("Expected 6 calls (3 clean pairs + 3 attempts on pair 4), got %d", calls)
	}
}

func TestAnalyze_BudgetFailureBeforeAnyCall(t *testing.T) {
	ctx := context.Background()

	// Engagement chunk of 50 tokens + reserve 60 >= model budget 100.
	engagement := strings.Repeat("e", 50)
	policy := strings.Repeat("p", 50)

	e := newTestEngine(t, 100, 60)

	calls := 0
	_, err := e.Analyze(ctx, engagement, policy,
		func(ctx context.Context, ec, pc string) (string, error) {
			calls++
			return "", nil
		}, nil)

	if !errors.Is(err, chunker.ErrBudgetExhausted) {
		t.Fatalf("Expected ErrBudgetExhausted, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no remote calls, got %d", calls)
	}
}

func TestAnalyze_CancellationBeforeNextPair(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	engagement := strings.Repeat("e", 120)
	policy := strings.Repeat("p", 100)

	e := newTestEngine(t, 100, 10)

	calls := 0
	_, err := e.Analyze(ctx, engagement, policy,
		func(ctx context.Context, ec, pc string) (string, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return "violation", nil
		}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	// The engine stops issuing new calls before starting the next pair.
	if calls != 2 {
		t.Errorf("Expected 2 calls before cancellation took effect, got %d", calls)
	}
}

func TestAnalyze_PolicyChunksReused(t *testing.T) {
	ctx := context.Background()

	engagement := strings.Repeat("e", 80) // 2 engagement chunks
	policy := strings.Repeat("p", 60)     // 2 policy chunks at budget 40

	e := newTestEngine(t, 100, 10)

	// Record the policy chunk sequence seen per engagement chunk.
	seen := map[string][]string{}
	_, err := e.Analyze(ctx, engagement, policy,
		func(ctx context.Context, ec, pc string) (string, error) {
			seen[ec] = append(seen[ec], pc)
			return NoViolationsSentinel, nil
		}, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("Expected 2 engagement chunks, got %d", len(seen))
	}
	var sequences [][]string
	for _, pcs := range seen {
		sequences = append(sequences, pcs)
	}
	if len(sequences[0]) != len(sequences[1]) {
		t.Fatalf("Policy chunk counts differ across engagement chunks")
	}
	for i := range sequences[0] {
		if sequences[0][i] != sequences[1][i] {
			t.Errorf("Policy chunk %d differs across engagement chunks", i)
		}
	}
}

func TestIsNoViolation(t *testing.T) {
	tests := []struct {
		response string
		want     bool
	}{
		{"No violations found.", true},
		{"no violations found.", true},
		{"NO VIOLATIONS FOUND.", true},
		{"", true},
		{"  \n ", true},
		{"No violations found. However...", false},
		{"Section 3 violates the travel policy.", false},
	}
	for _, tt := range tests {
		if got := IsNoViolation(tt.response); got != tt.want {
			t.Errorf("IsNoViolation(%q) = %v, want %v", tt.response, got, tt.want)
		}
	}
}
