package blobstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer issues and verifies HMAC-signed, expiring read URLs for documents.
// The signature covers container, name, version, and expiry, so a URL for
// one version cannot be replayed against another.
type Signer struct {
	key     []byte
	baseURL string
	now     func() time.Time
}

var (
	// ErrInvalidSignature indicates the URL signature does not match.
	ErrInvalidSignature = errors.New("blobstore: invalid signature")

	// ErrLinkExpired indicates the URL's expiry has passed.
	ErrLinkExpired = errors.New("blobstore: link expired")
)

// NewSigner creates a signer with the given secret key and base URL
// (for example "https://host/documents").
func NewSigner(key []byte, baseURL string) (*Signer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("blobstore: signing key is required")
	}
	return &Signer{key: key, baseURL: baseURL, now: time.Now}, nil
}

// SignReadURL returns a URL granting read access to one document version
// until the ttl elapses.
func (s *Signer) SignReadURL(container, name, versionID string, ttl time.Duration) string {
	expiry := s.now().Add(ttl).Unix()
	sig := s.sign(container, name, versionID, expiry)

	q := url.Values{}
	q.Set("version", versionID)
	q.Set("expires", strconv.FormatInt(expiry, 10))
	q.Set("sig", sig)

	return fmt.Sprintf("%s/%s/%s?%s", s.baseURL, url.PathEscape(container), url.PathEscape(name), q.Encode())
}

// Verify checks the signature and expiry carried in a read URL's query
// parameters.
func (s *Signer) Verify(container, name, versionID string, expires int64, sig string) error {
	want := s.sign(container, name, versionID, expires)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > expires {
		return ErrLinkExpired
	}
	return nil
}

func (s *Signer) sign(container, name, versionID string, expiry int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%d", container, name, versionID, expiry)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
