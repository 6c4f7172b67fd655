// Package api provides the REST API for checkpg.
//
// # Endpoints
//
// Checks:
//   - POST /api/v1/checks - Enqueue a compliance check
//   - GET /api/v1/checks/{id} - Check state and result metadata
//   - POST /api/v1/checks/{id}/cancel - Cancel a pending or running check
//
// Policies (admin):
//   - PUT /api/v1/admin/policies/{name} - Upload a new policy version
//   - GET /api/v1/admin/policies - List policies with versions
//
// Engagement letters:
//   - PUT /api/v1/engagements/{name} - Upload an engagement letter
//
// Audit logs:
//   - GET /api/v1/logs?document_type=Policy|Engagement&user_id= - Audit records
//
// Ground truth validation:
//   - POST /api/v1/validation/ground-truth - Rate generated violations
//
// Documents:
//   - GET /documents/{container}/{name}?version=&expires=&sig= - Download via signed URL
//   - GET /reports/{name}?version=&expires=&sig= - Violations report rendered as HTML
//
// All /api/v1 responses are JSON wrapped in {"data": ...} or {"error": ...}.
// Document and report downloads require a URL signed by the client's signer.
package api
