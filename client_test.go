package checkpg

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/checkpg/blobstore"
	"github.com/youssefsiam38/checkpg/eval"
	"github.com/youssefsiam38/checkpg/hooks"
	"github.com/youssefsiam38/checkpg/notifier"
)

func TestEnqueueCheckValidation(t *testing.T) {
	service := &fakeService{}
	tc := newTestClient(t, service)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CheckRequest
	}{
		{name: "missing user", req: CheckRequest{EngagementLetter: "l.md", PolicyName: "p.md"}},
		{name: "missing engagement", req: CheckRequest{UserID: "u", PolicyName: "p.md"}},
		{name: "missing policy", req: CheckRequest{UserID: "u", EngagementLetter: "l.md"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tc.client.EnqueueCheck(ctx, tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnqueueCheckMissingDocuments(t *testing.T) {
	service := &fakeService{}
	tc := newTestClient(t, service)
	ctx := context.Background()

	req := CheckRequest{UserID: "u", EngagementLetter: "letter.md", PolicyName: "policy.md"}

	_, err := tc.client.EnqueueCheck(ctx, req)
	if !errors.Is(err, ErrEngagementNotFound) {
		t.Fatalf("expected ErrEngagementNotFound, got %v", err)
	}

	if _, err := tc.blobs.Upload(ctx, blobstore.EngagementsContainer, "letter.md", []byte("text"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	_, err = tc.client.EnqueueCheck(ctx, req)
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}

	// A pinned version that does not exist is rejected even when the policy does.
	if _, err := tc.blobs.Upload(ctx, blobstore.PoliciesContainer, "policy.md", []byte("policy"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	req.PolicyVersion = uuid.New().String()
	_, err = tc.client.EnqueueCheck(ctx, req)
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound for unknown version, got %v", err)
	}
}

func TestEnqueueCheckPublishesCreated(t *testing.T) {
	service := &fakeService{}
	tc := newTestClient(t, service)
	ctx := context.Background()

	if _, err := tc.blobs.Upload(ctx, blobstore.EngagementsContainer, "letter.md", []byte("text"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if _, err := tc.blobs.Upload(ctx, blobstore.PoliciesContainer, "policy.md", []byte("policy"), "text/plain"); err != nil {
		t.Fatal(err)
	}

	checkID, err := tc.client.EnqueueCheck(ctx, CheckRequest{
		UserID:           "auditor-1",
		EngagementLetter: "letter.md",
		PolicyName:       "policy.md",
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if checkID == uuid.Nil {
		t.Fatal("expected a check id")
	}

	check, err := tc.client.GetCheck(ctx, checkID)
	if err != nil {
		t.Fatalf("get check failed: %v", err)
	}
	if check.UserID != "auditor-1" {
		t.Errorf("unexpected check record: %+v", check)
	}

	created := tc.sender.onChannel(notifier.ChannelCheckCreated)
	if len(created) != 1 {
		t.Fatalf("expected 1 created notification, got %d", len(created))
	}
	if created[0].payload != checkID.String() {
		t.Errorf("expected payload %s, got %s", checkID, created[0].payload)
	}
}

func TestUploadPolicyLogsUpload(t *testing.T) {
	service := &fakeService{}
	tc := newTestClient(t, service)
	ctx := context.Background()

	versionID, err := tc.client.UploadPolicy(ctx, "admin-1", "policy.md", []byte("policy body"), "text/markdown")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if versionID == "" {
		t.Fatal("expected a version id")
	}

	logs, err := tc.client.GetLogs(ctx, "Policy", "admin-1")
	if err != nil {
		t.Fatalf("get logs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(logs))
	}
	upload := logs[0].(interface {
		DocumentType() string
		UserID() string
	})
	if upload.DocumentType() != "Policy" || upload.UserID() != "admin-1" {
		t.Errorf("unexpected log record: %+v", logs[0])
	}
}

func TestListPolicies(t *testing.T) {
	service := &fakeService{}
	tc := newTestClient(t, service)
	ctx := context.Background()

	v1, err := tc.client.UploadPolicy(ctx, "admin-1", "policy.md", []byte("v1"), "text/markdown")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := tc.client.UploadPolicy(ctx, "admin-1", "policy.md", []byte("version two"), "text/markdown")
	if err != nil {
		t.Fatal(err)
	}

	policies, err := tc.client.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
	if policies[0].Name != "policy.md" {
		t.Errorf("unexpected name %s", policies[0].Name)
	}
	if len(policies[0].Versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(policies[0].Versions))
	}
	// Newest first.
	if policies[0].Versions[0].VersionID != v2 || policies[0].Versions[1].VersionID != v1 {
		t.Errorf("unexpected version order: %+v", policies[0].Versions)
	}
}

func TestEvaluateGroundTruth(t *testing.T) {
	service := &fakeService{
		evaluate: func(ctx context.Context, groundTruth, generated string) (eval.Rating, string, error) {
			return eval.RatingCorrect, "matches the ground truth", nil
		},
		summarize: func(ctx context.Context, joined string) (string, error) {
			t.Fatal("summarize should not be called for a single pair")
			return "", nil
		},
	}
	tc := newTestClient(t, service)

	result, err := tc.client.EvaluateGroundTruth(context.Background(), GroundTruthRequest{
		GroundTruth: "expected violations",
		Generated:   "generated violations",
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if result.Rating != eval.RatingCorrect {
		t.Errorf("expected rating %v, got %v", eval.RatingCorrect, result.Rating)
	}
	if result.Rationale != "matches the ground truth" {
		t.Errorf("unexpected rationale %q", result.Rationale)
	}
}

func TestEvaluateGroundTruthValidation(t *testing.T) {
	service := &fakeService{}
	tc := newTestClient(t, service)
	ctx := context.Background()

	if _, err := tc.client.EvaluateGroundTruth(ctx, GroundTruthRequest{Generated: "g"}); err == nil {
		t.Error("expected error for missing ground truth")
	}
	if _, err := tc.client.EvaluateGroundTruth(ctx, GroundTruthRequest{GroundTruth: "t"}); err == nil {
		t.Error("expected error for missing generated content")
	}
}

func TestValidateGroundTruthWithGeneratedContent(t *testing.T) {
	service := &fakeService{
		evaluate: func(ctx context.Context, groundTruth, generated string) (eval.Rating, string, error) {
			return eval.RatingPartiallyCorrect, "close but incomplete", nil
		},
	}
	tc := newTestClient(t, service)

	results, err := tc.client.ValidateGroundTruth(context.Background(), []ValidationRequest{
		{GroundTruth: "expected violations", Generated: "generated violations"},
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Rating != eval.RatingPartiallyCorrect {
		t.Errorf("unexpected rating %v", results[0].Rating)
	}
	if results[0].Generated != "generated violations" {
		t.Errorf("unexpected generated text %q", results[0].Generated)
	}
}

func TestValidateGroundTruthRunsAnalysis(t *testing.T) {
	service := &fakeService{
		analyze: func(ctx context.Context, engagementChunk, policyChunk string) (string, error) {
			return "Violation: payment terms exceed 60 days.", nil
		},
		evaluate: func(ctx context.Context, groundTruth, generated string) (eval.Rating, string, error) {
			if !strings.Contains(generated, "payment terms") {
				t.Errorf("expected synchronous analysis output, got %q", generated)
			}
			return eval.RatingCorrect, "matches", nil
		},
	}
	tc := newTestClient(t, service)
	tc.uploadDocuments(t, "engagement letter", "policy")

	results, err := tc.client.ValidateGroundTruth(context.Background(), []ValidationRequest{
		{
			EngagementLetter: "letter.md",
			PolicyName:       "policy.md",
			GroundTruth:      "payment terms violation",
		},
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if results[0].Rating != eval.RatingCorrect {
		t.Errorf("unexpected rating %v", results[0].Rating)
	}
	if !strings.Contains(results[0].Generated, "payment terms exceed") {
		t.Errorf("expected generated text from analysis, got %q", results[0].Generated)
	}
	if service.callCount() == 0 {
		t.Error("expected analysis calls")
	}
}

func TestValidateGroundTruthValidation(t *testing.T) {
	service := &fakeService{}
	tc := newTestClient(t, service)
	ctx := context.Background()

	// Missing ground truth.
	if _, err := tc.client.ValidateGroundTruth(ctx, []ValidationRequest{{Generated: "g"}}); err == nil {
		t.Error("expected error for missing ground truth")
	}
	// Neither generated content nor document names.
	if _, err := tc.client.ValidateGroundTruth(ctx, []ValidationRequest{{GroundTruth: "t"}}); err == nil {
		t.Error("expected error for missing generated content")
	}
}

func TestRetryHookFires(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts []int
		causes   []error
	)

	boom := errors.New("transient failure")
	failOnce := true
	service := &fakeService{
		analyze: func(ctx context.Context, engagementChunk, policyChunk string) (string, error) {
			if failOnce {
				failOnce = false
				return "", boom
			}
			return "No violations found.", nil
		},
	}
	tc := newTestClient(t, service)
	tc.client.config.Hooks.OnRetry(func(ctx context.Context, check hooks.CheckInfo, attempt int, delay time.Duration, cause error) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, attempt)
		causes = append(causes, cause)
		return nil
	})

	check := tc.uploadDocuments(t, "engagement", "policy")
	if err := tc.client.checker.process(context.Background(), check); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Fatalf("expected one retry at attempt 1, got %v", attempts)
	}
	if !errors.Is(causes[0], boom) {
		t.Errorf("expected retry cause %v, got %v", boom, causes[0])
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(nil, &ClientConfig{}); err == nil {
		t.Error("expected error for empty config")
	}
}
