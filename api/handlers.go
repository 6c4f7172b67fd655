package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/youssefsiam38/checkpg"
	"github.com/youssefsiam38/checkpg/blobstore"
	"github.com/youssefsiam38/checkpg/storage"
)

// Response wraps all API responses.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error: &APIError{Code: code, Message: message},
	})
}

// CheckCreated is the response body of a successful enqueue.
type CheckCreated struct {
	CheckID uuid.UUID `json:"check_id"`
}

// CheckStatus is the public view of a check record.
type CheckStatus struct {
	CheckID          uuid.UUID `json:"check_id"`
	State            string    `json:"state"`
	UserID           string    `json:"user_id"`
	EngagementLetter string    `json:"engagement_letter_name"`
	PolicyName       string    `json:"policy_file_name"`
	PolicyVersion    string    `json:"policy_version,omitempty"`
	Attempts         int       `json:"attempts"`
	Error            string    `json:"error,omitempty"`
}

func checkStatus(check *storage.CheckRecord) CheckStatus {
	status := CheckStatus{
		CheckID:          check.ID,
		State:            check.State.String(),
		UserID:           check.UserID,
		EngagementLetter: check.EngagementName,
		PolicyName:       check.PolicyName,
		PolicyVersion:    check.PolicyVersion,
		Attempts:         check.Attempts,
	}
	if check.ErrorMessage != nil {
		status.Error = *check.ErrorMessage
	}
	return status
}

// UploadResult is the response body of a document upload.
type UploadResult struct {
	Name      string `json:"name"`
	VersionID string `json:"version_id"`
}

func (rt *router) handleEnqueueCheck(w http.ResponseWriter, r *http.Request) {
	var req checkpg.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	checkID, err := rt.svc.EnqueueCheck(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, checkpg.ErrEngagementNotFound), errors.Is(err, checkpg.ErrPolicyNotFound):
			writeError(w, http.StatusNotFound, "document_not_found", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, CheckCreated{CheckID: checkID})
}

func (rt *router) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	checkID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid check id")
		return
	}

	check, err := rt.svc.GetCheck(r.Context(), checkID)
	if err != nil {
		if errors.Is(err, storage.ErrCheckNotFound) {
			writeError(w, http.StatusNotFound, "check_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, checkStatus(check))
}

func (rt *router) handleCancelCheck(w http.ResponseWriter, r *http.Request) {
	checkID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid check id")
		return
	}

	if err := rt.svc.CancelCheck(r.Context(), checkID); err != nil {
		if errors.Is(err, storage.ErrCheckNotFound) {
			writeError(w, http.StatusNotFound, "check_not_found", err.Error())
			return
		}
		writeError(w, http.StatusConflict, "not_cancellable", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.config.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			"document exceeds "+strconv.FormatInt(rt.config.MaxUploadBytes, 10)+" bytes")
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "empty document body")
		return nil, false
	}
	return data, true
}

func (rt *router) handleUploadPolicy(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "X-User-ID header is required")
		return
	}

	data, ok := rt.readUpload(w, r)
	if !ok {
		return
	}

	versionID, err := rt.svc.UploadPolicy(r.Context(), userID, name, data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, UploadResult{Name: name, VersionID: versionID})
}

func (rt *router) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := rt.svc.ListPolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (rt *router) handleUploadEngagement(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	data, ok := rt.readUpload(w, r)
	if !ok {
		return
	}

	versionID, err := rt.svc.UploadEngagement(r.Context(), name, data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, UploadResult{Name: name, VersionID: versionID})
}

func (rt *router) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	documentType := r.URL.Query().Get("document_type")
	if documentType != storage.DocumentTypePolicy && documentType != storage.DocumentTypeEngagement {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"document_type must be Policy or Engagement")
		return
	}

	logs, err := rt.svc.GetLogs(r.Context(), documentType, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (rt *router) handleGroundTruth(w http.ResponseWriter, r *http.Request) {
	var reqs []checkpg.ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a JSON array of validation requests")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one validation request is required")
		return
	}

	results, err := rt.svc.ValidateGroundTruth(r.Context(), reqs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// verifySignedRequest checks the signature query parameters against the
// request path and returns the pinned version id.
func (rt *router) verifySignedRequest(w http.ResponseWriter, r *http.Request, container, name string) (string, bool) {
	q := r.URL.Query()
	versionID := q.Get("version")
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid_signature", "missing or invalid expiry")
		return "", false
	}

	if err := rt.svc.Signer().Verify(container, name, versionID, expires, q.Get("sig")); err != nil {
		switch {
		case errors.Is(err, blobstore.ErrLinkExpired):
			writeError(w, http.StatusForbidden, "link_expired", "signed link has expired")
		default:
			writeError(w, http.StatusForbidden, "invalid_signature", "signature verification failed")
		}
		return "", false
	}
	return versionID, true
}

func (rt *router) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	container := r.PathValue("container")
	name := r.PathValue("name")

	versionID, ok := rt.verifySignedRequest(w, r, container, name)
	if !ok {
		return
	}

	blob, err := rt.svc.Blobs().Get(r.Context(), container, name, versionID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document_not_found", "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	_, _ = w.Write(blob.Data)
}
