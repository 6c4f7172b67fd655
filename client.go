package checkpg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/checkpg/blobstore"
	"github.com/youssefsiam38/checkpg/engine"
	"github.com/youssefsiam38/checkpg/eval"
	"github.com/youssefsiam38/checkpg/extract"
	"github.com/youssefsiam38/checkpg/llm"
	"github.com/youssefsiam38/checkpg/maintenance"
	"github.com/youssefsiam38/checkpg/notifier"
	"github.com/youssefsiam38/checkpg/retry"
	"github.com/youssefsiam38/checkpg/storage"
	"github.com/youssefsiam38/checkpg/tokenizer"
)

// Version is the current checkpg version
const Version = "1.0.0"

// ModelService is the set of model calls checks and evaluations make.
// *llm.Service is the production implementation; tests substitute fakes.
type ModelService interface {
	AnalyzePolicy(ctx context.Context, engagementChunk, policyChunk string) (string, error)
	EvaluateContent(ctx context.Context, groundTruth, generated string) (eval.Rating, string, error)
	SummarizeThoughts(ctx context.Context, joined string) (string, error)
}

// BlobStore is the document storage surface the client uses.
// *blobstore.Store is the production implementation.
type BlobStore interface {
	Upload(ctx context.Context, container, name string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, container, name, versionID string) (*blobstore.Blob, error)
	Latest(ctx context.Context, container, name string) (*blobstore.Blob, error)
	ListVersions(ctx context.Context, container, name string) ([]blobstore.Version, error)
	ListNames(ctx context.Context, container string) ([]string, error)
}

// Client manages the lifecycle of a checkpg instance: the check queue
// workers, the notifier, and the document stores.
type Client struct {
	pool       *pgxpool.Pool
	config     *ClientConfig
	instanceID string

	store     storage.Store
	blobs     BlobStore
	extractor extract.Extractor
	signer    *blobstore.Signer
	service   ModelService
	tok       tokenizer.Tokenizer
	notif     *notifier.Notifier

	checker   *checker
	worker    *checkWorker
	retention *maintenance.Retention

	// State
	started atomic.Bool

	// Cancellation
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new checkpg client on the given connection pool.
//
// Example:
//
//	client, err := checkpg.New(pool, &checkpg.ClientConfig{
//	    APIKey:          os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:           "claude-3-5-sonnet-20241022",
//	    SigningKey:      key,
//	    DocumentBaseURL: "https://host/documents",
//	})
func New(pool *pgxpool.Pool, config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	anthropicClient := config.Client
	if anthropicClient == nil {
		c := anthropic.NewClient(option.WithAPIKey(config.APIKey))
		anthropicClient = &c
	}

	tok := config.Tokenizer
	if tok == nil {
		info := GetModelInfo(config.Model)
		t, err := tokenizer.NewForModel(config.Model)
		if err != nil {
			// Models without a tiktoken mapping fall back to the encoding
			// named in the model table.
			t, err = tokenizer.NewEncoding(info.Encoding)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
		tok = t
	}

	signer, err := blobstore.NewSigner(config.SigningKey, config.DocumentBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	blobs := blobstore.NewStore(pool)
	store := storage.NewPostgresStore(pool)

	notif := notifier.NewNotifier(
		func(ctx context.Context) (notifier.Listener, error) {
			return notifier.NewPgxListener(pool), nil
		},
		notifier.NewPgxSender(pool),
		&notifier.Config{
			OnError: config.OnError,
		},
	)

	service := llm.NewService(anthropicClient, config.Model, config.ResponseTokens)

	c := &Client{
		pool:       pool,
		config:     config,
		instanceID: instanceID,
		store:      store,
		blobs:      blobs,
		extractor:  extract.NewBlobExtractor(blobs),
		signer:     signer,
		service:    service,
		tok:        tok,
		notif:      notif,
	}

	c.checker = newChecker(c)
	c.worker = newCheckWorker(c)
	if config.CheckRetention > 0 {
		c.retention = maintenance.NewRetention(store, &maintenance.RetentionConfig{
			SweepInterval: config.RetentionSweepInterval,
			Retention:     config.CheckRetention,
			OnError:       config.OnError,
		})
	}

	return c, nil
}

// Start runs the schema migration and starts the notifier and workers.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrClientAlreadyStarted
	}

	if err := storage.Migrate(ctx, c.pool); err != nil {
		c.started.Store(false)
		return fmt.Errorf("migration failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	if err := c.notif.Start(runCtx); err != nil {
		c.started.Store(false)
		cancel()
		return err
	}

	// New checks trigger an immediate claim attempt instead of waiting for
	// the next poll tick.
	c.notif.Subscribe(notifier.EventCheckCreated, func(event *notifier.Event) {
		c.worker.trigger()
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.worker.run(runCtx)
	}()

	if c.retention != nil {
		if err := c.retention.Start(runCtx); err != nil {
			c.config.Logger.Warn("failed to start retention service", "error", err)
		}
	}

	c.config.Logger.Info("checkpg client started",
		"instance_id", c.instanceID,
		"model", c.config.Model,
		"max_concurrent_checks", c.config.MaxConcurrentChecks,
	)

	return nil
}

// Stop stops the workers and notifier, waiting for in-flight checks.
func (c *Client) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrClientNotStarted
	}

	c.cancel()
	c.wg.Wait()

	if c.retention != nil {
		if err := c.retention.Stop(ctx); err != nil && err != maintenance.ErrNotStarted {
			c.config.Logger.Warn("retention service stop failed", "error", err)
		}
	}

	if err := c.notif.Stop(ctx); err != nil && err != notifier.ErrNotStarted {
		return err
	}

	c.started.Store(false)
	c.config.Logger.Info("checkpg client stopped", "instance_id", c.instanceID)
	return nil
}

// EnqueueCheck queues a compliance check and returns its ID.
// The engagement letter and policy must already be uploaded.
func (c *Client) EnqueueCheck(ctx context.Context, req CheckRequest) (uuid.UUID, error) {
	if req.UserID == "" {
		return uuid.Nil, NewCheckError("enqueue", fmt.Errorf("user id is required"))
	}
	if req.EngagementLetter == "" {
		return uuid.Nil, NewCheckError("enqueue", fmt.Errorf("engagement letter is required"))
	}
	if req.PolicyName == "" {
		return uuid.Nil, NewCheckError("enqueue", fmt.Errorf("policy name is required"))
	}

	// Reject references to documents that do not exist, rather than letting
	// the check fail later in a worker.
	if _, err := c.blobs.Latest(ctx, blobstore.EngagementsContainer, req.EngagementLetter); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrEngagementNotFound, req.EngagementLetter)
	}
	if req.PolicyVersion == "" {
		if _, err := c.blobs.Latest(ctx, blobstore.PoliciesContainer, req.PolicyName); err != nil {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, req.PolicyName)
		}
	} else {
		if _, err := c.blobs.Get(ctx, blobstore.PoliciesContainer, req.PolicyName, req.PolicyVersion); err != nil {
			return uuid.Nil, fmt.Errorf("%w: %s@%s", ErrPolicyNotFound, req.PolicyName, req.PolicyVersion)
		}
	}

	record := &storage.CheckRecord{
		UserID:         req.UserID,
		EngagementName: req.EngagementLetter,
		PolicyName:     req.PolicyName,
		PolicyVersion:  req.PolicyVersion,
	}
	if err := c.store.EnqueueCheck(ctx, record); err != nil {
		return uuid.Nil, NewCheckError("enqueue", err)
	}

	// Best effort: workers poll regardless.
	if err := c.notif.Notify(ctx, notifier.EventCheckCreated, record.ID.String()); err != nil {
		c.config.Logger.Warn("failed to notify check creation", "check_id", record.ID, "error", err)
	}
	c.worker.trigger()

	return record.ID, nil
}

// GetCheck retrieves the current state of a check.
func (c *Client) GetCheck(ctx context.Context, checkID uuid.UUID) (*storage.CheckRecord, error) {
	return c.store.GetCheck(ctx, checkID)
}

// CancelCheck cancels a pending or running check.
func (c *Client) CancelCheck(ctx context.Context, checkID uuid.UUID) error {
	return c.store.CancelCheck(ctx, checkID)
}

// UploadPolicy stores a new immutable version of a policy document and logs
// the upload. Returns the new version id.
func (c *Client) UploadPolicy(ctx context.Context, userID, name string, data []byte, contentType string) (string, error) {
	versionID, err := c.blobs.Upload(ctx, blobstore.PoliciesContainer, name, data, contentType)
	if err != nil {
		return "", NewCheckError("upload policy", err)
	}

	record := storage.PolicyUploadRecord{
		User:       userID,
		PolicyName: name,
		Version:    versionID,
		FileSize:   int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}
	if err := c.store.AppendLog(ctx, record); err != nil {
		return "", NewCheckError("upload policy", err)
	}

	return versionID, nil
}

// UploadEngagement stores a new version of an engagement letter.
// Returns the new version id.
func (c *Client) UploadEngagement(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	versionID, err := c.blobs.Upload(ctx, blobstore.EngagementsContainer, name, data, contentType)
	if err != nil {
		return "", NewCheckError("upload engagement", err)
	}
	return versionID, nil
}

// ListPolicies returns all policies with their stored versions, newest first.
func (c *Client) ListPolicies(ctx context.Context) ([]PolicyInfo, error) {
	names, err := c.blobs.ListNames(ctx, blobstore.PoliciesContainer)
	if err != nil {
		return nil, err
	}

	policies := make([]PolicyInfo, 0, len(names))
	for _, name := range names {
		versions, err := c.blobs.ListVersions(ctx, blobstore.PoliciesContainer, name)
		if err != nil {
			return nil, err
		}

		info := PolicyInfo{Name: name, Versions: make([]PolicyVersionInfo, 0, len(versions))}
		for i, v := range versions {
			info.Versions = append(info.Versions, PolicyVersionInfo{
				VersionID: v.VersionID,
				Size:      v.Size,
				Latest:    i == 0,
			})
		}
		policies = append(policies, info)
	}

	return policies, nil
}

// GetLogs returns audit log records for a document type, newest first.
// An empty userID returns records for all users.
func (c *Client) GetLogs(ctx context.Context, documentType, userID string) ([]storage.LogRecord, error) {
	return c.store.GetLogs(ctx, documentType, userID)
}

// newEngine builds a pairing engine with the given retry policy.
func (c *Client) newEngine(policy retry.Policy) (*engine.Engine, error) {
	return engine.New(engine.Config{
		Tokenizer:       c.tok,
		ModelMaxTokens:  c.config.MaxContextTokens,
		Reserve:         c.config.Reserve,
		OverlapFraction: c.config.OverlapFraction,
		Retry:           policy,
	})
}

// analyzeSync runs the chunked analysis in the caller's goroutine, outside the
// queue, and returns the accumulated violations text.
func (c *Client) analyzeSync(ctx context.Context, engagementName, policyName, policyVersion string) (string, error) {
	if policyVersion == "" {
		blob, err := c.blobs.Latest(ctx, blobstore.PoliciesContainer, policyName)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrPolicyNotFound, policyName)
		}
		policyVersion = blob.VersionID
	}

	engagementText, err := c.extractor.Extract(ctx, extract.Locator{
		Container: blobstore.EngagementsContainer,
		Name:      engagementName,
	})
	if err != nil {
		return "", fmt.Errorf("%w: engagement letter %s: %v", ErrExtractionFailed, engagementName, err)
	}
	policyText, err := c.extractor.Extract(ctx, extract.Locator{
		Container: blobstore.PoliciesContainer,
		Name:      policyName,
		VersionID: policyVersion,
	})
	if err != nil {
		return "", fmt.Errorf("%w: policy %s@%s: %v", ErrExtractionFailed, policyName, policyVersion, err)
	}

	eng, err := c.newEngine(c.config.retryPolicy())
	if err != nil {
		return "", err
	}
	result, err := eng.Analyze(ctx, engagementText, policyText, c.service.AnalyzePolicy, nil)
	if err != nil {
		return "", err
	}
	return result.Violations, nil
}

// ValidateGroundTruth runs a list of validation cases: each checks model
// output against known-correct violations. Cases without pre-generated
// content run the analysis synchronously first.
func (c *Client) ValidateGroundTruth(ctx context.Context, reqs []ValidationRequest) ([]ValidationResult, error) {
	results := make([]ValidationResult, 0, len(reqs))
	for i, req := range reqs {
		if req.GroundTruth == "" {
			return nil, fmt.Errorf("validation request %d: ground truth is required", i)
		}

		generated := req.Generated
		if generated == "" {
			if req.EngagementLetter == "" || req.PolicyName == "" {
				return nil, fmt.Errorf("validation request %d: generated content or document names are required", i)
			}
			violations, err := c.analyzeSync(ctx, req.EngagementLetter, req.PolicyName, req.PolicyVersion)
			if err != nil {
				return nil, fmt.Errorf("validation request %d: %w", i, err)
			}
			generated = violations
			if generated == "" {
				generated = engine.NoViolationsSentinel
			}
		}

		verdict, err := c.EvaluateGroundTruth(ctx, GroundTruthRequest{
			GroundTruth: req.GroundTruth,
			Generated:   generated,
		})
		if err != nil {
			return nil, fmt.Errorf("validation request %d: %w", i, err)
		}

		results = append(results, ValidationResult{
			Rating:    verdict.Rating,
			Rationale: verdict.Rationale,
			Generated: generated,
		})
	}
	return results, nil
}

// EvaluateGroundTruth rates generated violations against known-correct ones
// and returns the aggregated verdict.
func (c *Client) EvaluateGroundTruth(ctx context.Context, req GroundTruthRequest) (*GroundTruthResult, error) {
	if req.GroundTruth == "" {
		return nil, fmt.Errorf("ground truth is required")
	}
	if req.Generated == "" {
		return nil, fmt.Errorf("generated content is required")
	}

	agg, err := eval.New(eval.Config{
		Tokenizer:       c.tok,
		ModelMaxTokens:  c.config.MaxContextTokens,
		Reserve:         c.config.Reserve,
		OverlapFraction: c.config.OverlapFraction,
		Retry:           c.config.retryPolicy(),
	})
	if err != nil {
		return nil, err
	}

	verdict, err := agg.Evaluate(ctx, req.GroundTruth, req.Generated,
		c.service.EvaluateContent, c.service.SummarizeThoughts)
	if err != nil {
		return nil, err
	}

	return &GroundTruthResult{Rating: verdict.Rating, Rationale: verdict.Rationale}, nil
}

// Notifier exposes the notifier for subscribing to progress and result events.
func (c *Client) Notifier() *notifier.Notifier {
	return c.notif
}

// Signer exposes the document URL signer, for HTTP layers that serve signed
// document links.
func (c *Client) Signer() *blobstore.Signer {
	return c.signer
}

// Blobs exposes the document store.
func (c *Client) Blobs() BlobStore {
	return c.blobs
}

// InstanceID returns this client's instance identifier.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// IsStarted returns true if the client is running.
func (c *Client) IsStarted() bool {
	return c.started.Load()
}

// publishJSON marshals v and sends it on the given event type.
func (c *Client) publishJSON(ctx context.Context, event notifier.EventType, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.config.Logger.Error("failed to marshal notification payload", "event", event, "error", err)
		return
	}
	if err := c.notif.Notify(ctx, event, string(payload)); err != nil {
		c.config.Logger.Warn("failed to publish notification", "event", event, "error", err)
	}
}

// retryPolicyWithHook decorates the configured retry policy with the hook
// registry for one check.
func (c *Client) retryPolicyWithHook(check *storage.CheckRecord) retry.Policy {
	policy := c.config.retryPolicy()
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		info := checkInfo(check)
		if hookErr := c.config.Hooks.TriggerRetry(context.Background(), info, attempt, delay, err); hookErr != nil {
			c.config.Logger.Warn("retry hook failed", "check_id", check.ID, "error", hookErr)
		}
	}
	return policy
}
