package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/youssefsiam38/checkpg"
	"github.com/youssefsiam38/checkpg/blobstore"
	"github.com/youssefsiam38/checkpg/storage"
)

// Service is the client surface the API serves. *checkpg.Client implements it.
type Service interface {
	EnqueueCheck(ctx context.Context, req checkpg.CheckRequest) (uuid.UUID, error)
	GetCheck(ctx context.Context, checkID uuid.UUID) (*storage.CheckRecord, error)
	CancelCheck(ctx context.Context, checkID uuid.UUID) error
	UploadPolicy(ctx context.Context, userID, name string, data []byte, contentType string) (string, error)
	UploadEngagement(ctx context.Context, name string, data []byte, contentType string) (string, error)
	ListPolicies(ctx context.Context) ([]checkpg.PolicyInfo, error)
	GetLogs(ctx context.Context, documentType, userID string) ([]storage.LogRecord, error)
	ValidateGroundTruth(ctx context.Context, reqs []checkpg.ValidationRequest) ([]checkpg.ValidationResult, error)
	Blobs() checkpg.BlobStore
	Signer() *blobstore.Signer
}

// Config holds API router configuration.
type Config struct {
	// MaxUploadBytes caps document upload size. Default: 10 MiB.
	MaxUploadBytes int64

	// Logger for structured logging. If nil, logging is disabled.
	Logger Logger
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const defaultMaxUploadBytes = 10 << 20

type router struct {
	svc    Service
	config *Config
}

// NewRouter creates the API handler.
func NewRouter(svc Service, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	r := &router{svc: svc, config: cfg}

	mux := http.NewServeMux()

	// Checks
	mux.HandleFunc("POST /api/v1/checks", r.handleEnqueueCheck)
	mux.HandleFunc("GET /api/v1/checks/{id}", r.handleGetCheck)
	mux.HandleFunc("POST /api/v1/checks/{id}/cancel", r.handleCancelCheck)

	// Policies
	mux.HandleFunc("PUT /api/v1/admin/policies/{name}", r.handleUploadPolicy)
	mux.HandleFunc("GET /api/v1/admin/policies", r.handleListPolicies)

	// Engagement letters
	mux.HandleFunc("PUT /api/v1/engagements/{name}", r.handleUploadEngagement)

	// Audit logs
	mux.HandleFunc("GET /api/v1/logs", r.handleGetLogs)

	// Ground truth validation
	mux.HandleFunc("POST /api/v1/validation/ground-truth", r.handleGroundTruth)

	// Signed document access. These return raw document bytes, not the JSON
	// envelope, so they sit outside /api/v1.
	mux.HandleFunc("GET /documents/{container}/{name}", r.handleGetDocument)
	mux.HandleFunc("GET /reports/{name}", r.handleGetReport)

	return recoveryMiddleware(mux, cfg.Logger)
}

// recoveryMiddleware recovers from panics and returns 500.
func recoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if logger != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":{"code":"internal_error","message":"internal server error"}}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
