package api

import (
	"bytes"
	"errors"
	"net/http"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/youssefsiam38/checkpg/blobstore"
)

// The markdown converter and sanitizer are configured once and shared.
// goldmark.Markdown is safe for concurrent Convert calls, and bluemonday
// policies are immutable after construction.
var (
	reportOnce      sync.Once
	reportMarkdown  goldmark.Markdown
	reportSanitizer *bluemonday.Policy
)

func reportRenderer() (goldmark.Markdown, *bluemonday.Policy) {
	reportOnce.Do(func() {
		reportMarkdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
		reportSanitizer = bluemonday.UGCPolicy()
	})
	return reportMarkdown, reportSanitizer
}

var reportPagePrefix = []byte(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Violations Report</title></head>
<body>
`)

var reportPageSuffix = []byte(`
</body>
</html>
`)

// handleGetReport serves a violations report rendered from Markdown to
// sanitized HTML. The URL must carry a valid signature for the report blob
// in the engagements container.
func (rt *router) handleGetReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	versionID, ok := rt.verifySignedRequest(w, r, blobstore.EngagementsContainer, name)
	if !ok {
		return
	}

	blob, err := rt.svc.Blobs().Get(r.Context(), blobstore.EngagementsContainer, name, versionID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report_not_found", "report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	markdown, sanitizer := reportRenderer()

	var rendered bytes.Buffer
	if err := markdown.Convert(blob.Data, &rendered); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to render report")
		return
	}
	safe := sanitizer.SanitizeBytes(rendered.Bytes())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(reportPagePrefix)
	_, _ = w.Write(safe)
	_, _ = w.Write(reportPageSuffix)
}
