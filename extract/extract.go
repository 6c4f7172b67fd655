// Package extract turns stored documents into analyzable plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/youssefsiam38/checkpg/blobstore"
)

// ErrUnsupportedContent indicates the document's content type cannot be
// converted to text. Extraction failures are fatal to the run that needs
// the document.
var ErrUnsupportedContent = errors.New("extract: unsupported content type")

// Locator names one stored document version. An empty VersionID means the
// latest version.
type Locator struct {
	Container string
	Name      string
	VersionID string
}

// Extractor converts a stored document to plain text.
type Extractor interface {
	Extract(ctx context.Context, loc Locator) (string, error)
}

// BlobExtractor reads documents from the blob store. Text and markdown pass
// through unchanged; HTML is stripped to text.
type BlobExtractor struct {
	store  *blobstore.Store
	policy *bluemonday.Policy
}

// NewBlobExtractor creates an extractor on the given blob store.
func NewBlobExtractor(store *blobstore.Store) *BlobExtractor {
	return &BlobExtractor{
		store:  store,
		policy: bluemonday.StrictPolicy(),
	}
}

// Extract implements Extractor.
func (e *BlobExtractor) Extract(ctx context.Context, loc Locator) (string, error) {
	var blob *blobstore.Blob
	var err error
	if loc.VersionID == "" {
		blob, err = e.store.Latest(ctx, loc.Container, loc.Name)
	} else {
		blob, err = e.store.Get(ctx, loc.Container, loc.Name, loc.VersionID)
	}
	if err != nil {
		return "", fmt.Errorf("extract: failed to read %s/%s: %w", loc.Container, loc.Name, err)
	}

	return FromBytes(blob.Data, blob.ContentType)
}

// FromBytes converts raw document bytes to plain text based on content type.
func FromBytes(data []byte, contentType string) (string, error) {
	// Parameters like "; charset=utf-8" are not part of the media type.
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))

	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		text := bluemonday.StrictPolicy().Sanitize(string(data))
		return strings.TrimSpace(text), nil
	case mediaType == "" || strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/json" || mediaType == "application/xml":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrUnsupportedContent, contentType)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
}
