package checkpg

import (
	"github.com/google/uuid"

	"github.com/youssefsiam38/checkpg/eval"
)

// CheckRequest asks for one engagement letter to be checked against one
// policy.
type CheckRequest struct {
	// UserID identifies the requesting user (required).
	UserID string `json:"user_id"`

	// EngagementLetter is the stored engagement document name (required).
	EngagementLetter string `json:"engagement_letter"`

	// PolicyName is the stored policy document name (required).
	PolicyName string `json:"policy_name"`

	// PolicyVersion pins a specific policy version. Empty means the latest
	// version at the time the check is claimed.
	PolicyVersion string `json:"policy_version,omitempty"`
}

// CheckProgress reports how far a running check has gotten.
type CheckProgress struct {
	CheckID uuid.UUID `json:"check_id"`
	UserID  string    `json:"user_id"`
	// Progress is an integer percentage in [0, 100].
	Progress int `json:"progress"`
}

// CheckResult is published when a check completes.
type CheckResult struct {
	CheckID              uuid.UUID `json:"check_id"`
	UserID               string    `json:"user_id"`
	EngagementLetterName string    `json:"engagement_letter_name"`
	PolicyName           string    `json:"policy_file_name"`
	PolicyVersion        string    `json:"policy_version"`
	ViolationsCount      int       `json:"violations_count"`
	// ViolationsURL is a signed, expiring link to the violations report.
	// Empty when no violations were found.
	ViolationsURL string `json:"violations_url,omitempty"`
}

// CheckFailure is published when a check fails or is dead-lettered.
type CheckFailure struct {
	CheckID uuid.UUID `json:"check_id"`
	UserID  string    `json:"user_id"`
	Error   string    `json:"error"`
}

// GroundTruthRequest asks for a completed check's violations to be rated
// against known-correct violations.
type GroundTruthRequest struct {
	// GroundTruth is the known-correct violations text (required).
	GroundTruth string `json:"ground_truth"`

	// Generated is the model-produced violations text to rate (required).
	Generated string `json:"generated"`
}

// GroundTruthResult carries the evaluation verdict.
type GroundTruthResult struct {
	Rating    eval.Rating `json:"rating"`
	Rationale string      `json:"rationale"`
}

// ValidationRequest is one ground-truth validation case. When Generated is
// empty and EngagementLetter and PolicyName name stored documents, the
// analysis runs synchronously to produce the content being rated.
type ValidationRequest struct {
	EngagementLetter string `json:"engagement_letter,omitempty"`
	PolicyName       string `json:"policy_name,omitempty"`
	PolicyVersion    string `json:"policy_version,omitempty"`

	// GroundTruth is the known-correct violations text (required).
	GroundTruth string `json:"ground_truth"`

	// Generated is the violations text to rate. Empty means run the check
	// synchronously against the named documents first.
	Generated string `json:"generated,omitempty"`
}

// ValidationResult pairs a verdict with the content that was rated.
type ValidationResult struct {
	Rating    eval.Rating `json:"rating"`
	Rationale string      `json:"rationale"`
	// Generated is the violations text that was rated, including text
	// produced by a synchronous run.
	Generated string `json:"generated"`
}

// PolicyVersionInfo describes one stored policy version for listings.
type PolicyVersionInfo struct {
	VersionID string `json:"version_id"`
	Size      int64  `json:"size"`
	// Latest marks the most recent version.
	Latest bool `json:"latest,omitempty"`
}

// PolicyInfo describes one policy and its versions.
type PolicyInfo struct {
	Name     string              `json:"name"`
	Versions []PolicyVersionInfo `json:"versions"`
}
