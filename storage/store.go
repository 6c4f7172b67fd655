package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/checkpg/checkstate"
)

// ErrCheckNotFound is returned when a check id does not exist.
var ErrCheckNotFound = errors.New("check not found")

// ErrCheckNotRunning is returned by state transitions that require a running
// check, typically because it was cancelled or released while being processed.
var ErrCheckNotRunning = errors.New("check is not running")

// Document type keys for the audit log. Together with the user id they form
// the composite key every log query runs against.
const (
	DocumentTypePolicy     = "Policy"
	DocumentTypeEngagement = "Engagement"
)

// Store defines the storage interface for compliance checks
type Store interface {
	// RunInTx executes fn inside a single transaction. Store and blob calls
	// made with the context passed to fn join that transaction, so a check's
	// completion, its run record, and its report land or roll back together.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Audit log operations
	AppendLog(ctx context.Context, record LogRecord) error
	// GetLogs retrieves log records for a document type, newest first.
	// An empty userID returns records for all users.
	GetLogs(ctx context.Context, documentType, userID string) ([]LogRecord, error)

	// Check queue operations
	EnqueueCheck(ctx context.Context, check *CheckRecord) error
	GetCheck(ctx context.Context, checkID uuid.UUID) (*CheckRecord, error)
	// ClaimChecks claims up to maxCount pending checks for this instance.
	// Uses SELECT FOR UPDATE SKIP LOCKED for race safety.
	ClaimChecks(ctx context.Context, claimedBy string, maxCount int) ([]*CheckRecord, error)
	CompleteCheck(ctx context.Context, checkID uuid.UUID) error
	// FailCheck releases the check for redelivery, or dead-letters it once
	// attempts reach maxAttempts. A maxAttempts of 1 fails it permanently.
	FailCheck(ctx context.Context, checkID uuid.UUID, errMsg string, maxAttempts int) error
	CancelCheck(ctx context.Context, checkID uuid.UUID) error
	// ReleaseStaleChecks returns running checks whose claim is older than
	// the visibility timeout back to pending.
	ReleaseStaleChecks(ctx context.Context, visibilityTimeout time.Duration) (int, error)
	// DeleteFinishedChecks removes terminal checks last updated before the
	// retention window. Audit log records are kept.
	DeleteFinishedChecks(ctx context.Context, retention time.Duration) (int, error)
}

// CheckRecord is a queued compliance check request
type CheckRecord struct {
	ID             uuid.UUID             `json:"id"`
	State          checkstate.CheckState `json:"state"`
	UserID         string                `json:"user_id"`
	EngagementName string                `json:"engagement_name"`
	PolicyName     string                `json:"policy_name"`
	// PolicyVersion pins the check to one immutable policy version.
	// Empty means latest at claim time.
	PolicyVersion string     `json:"policy_version,omitempty"`
	Attempts      int        `json:"attempts"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	ClaimedBy     *string    `json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LogRecord is an entry in the append-only audit log. Implementations carry
// the per-document-type payload; the composite (DocumentType, UserID) key is
// what queries filter on.
type LogRecord interface {
	DocumentType() string
	UserID() string
}

// PolicyUploadRecord logs one policy version upload
type PolicyUploadRecord struct {
	User       string    `json:"user_id"`
	PolicyName string    `json:"policy_name"`
	Version    string    `json:"version"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DocumentType implements LogRecord.
func (PolicyUploadRecord) DocumentType() string { return DocumentTypePolicy }

// UserID implements LogRecord.
func (r PolicyUploadRecord) UserID() string { return r.User }

// EngagementRunRecord logs one completed compliance check
type EngagementRunRecord struct {
	User                 string    `json:"user_id"`
	CheckID              uuid.UUID `json:"check_id"`
	EngagementLetterName string    `json:"engagement_letter_name"`
	PolicyName           string    `json:"policy_name"`
	PolicyVersion        string    `json:"policy_version"`
	ViolationsCount      int       `json:"violations_count"`
	// ViolationsURL is a signed read URL for the violations report.
	// Empty when the run found no violations.
	ViolationsURL string    `json:"violations_url,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// DocumentType implements LogRecord.
func (EngagementRunRecord) DocumentType() string { return DocumentTypeEngagement }

// UserID implements LogRecord.
func (r EngagementRunRecord) UserID() string { return r.User }
