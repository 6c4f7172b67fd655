package blobstore

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	signer, err := NewSigner([]byte("test-signing-key"), "https://example.com/documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	signer.now = func() time.Time { return now }
	return signer
}

// parseSignedURL pulls the query parameters back out of a signed URL.
func parseSignedURL(t *testing.T, signed string) (versionID string, expires int64, sig string) {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	q := u.Query()
	expires, err = strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("failed to parse expires: %v", err)
	}
	return q.Get("version"), expires, q.Get("sig")
}

func TestSignAndVerify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	signed := signer.SignReadURL(PoliciesContainer, "travel_policy.md", "v1", time.Hour)
	if !strings.HasPrefix(signed, "https://example.com/documents/policies/travel_policy.md?") {
		t.Fatalf("unexpected URL shape: %s", signed)
	}

	versionID, expires, sig := parseSignedURL(t, signed)
	if versionID != "v1" {
		t.Errorf("expected version v1, got %q", versionID)
	}
	if err := signer.Verify(PoliciesContainer, "travel_policy.md", versionID, expires, sig); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	signed := signer.SignReadURL(PoliciesContainer, "travel_policy.md", "v1", time.Hour)
	_, expires, sig := parseSignedURL(t, signed)

	tests := []struct {
		name string
		err  error
	}{
		{"different name", signer.Verify(PoliciesContainer, "other_policy.md", "v1", expires, sig)},
		{"different version", signer.Verify(PoliciesContainer, "travel_policy.md", "v2", expires, sig)},
		{"different container", signer.Verify(EngagementsContainer, "travel_policy.md", "v1", expires, sig)},
		{"extended expiry", signer.Verify(PoliciesContainer, "travel_policy.md", "v1", expires+3600, sig)},
		{"garbage signature", signer.Verify(PoliciesContainer, "travel_policy.md", "v1", expires, "bm90LWEtc2ln")},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrInvalidSignature) {
			t.Errorf("%s: expected ErrInvalidSignature, got %v", tt.name, tt.err)
		}
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	signed := signer.SignReadURL(PoliciesContainer, "travel_policy.md", "v1", time.Minute)
	versionID, expires, sig := parseSignedURL(t, signed)

	// Move past the expiry. The signature is still authentic but stale.
	signer.now = func() time.Time { return now.Add(2 * time.Minute) }

	err := signer.Verify(PoliciesContainer, "travel_policy.md", versionID, expires, sig)
	if !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
}

func TestSignerKeyIsolation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	other, err := NewSigner([]byte("another-key"), "https://example.com/documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other.now = signer.now

	signed := signer.SignReadURL(PoliciesContainer, "travel_policy.md", "v1", time.Hour)
	versionID, expires, sig := parseSignedURL(t, signed)

	if err := other.Verify(PoliciesContainer, "travel_policy.md", versionID, expires, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature across keys, got %v", err)
	}
}

func TestNewSignerRequiresKey(t *testing.T) {
	if _, err := NewSigner(nil, "https://example.com"); err == nil {
		t.Fatal("expected error for empty key")
	}
}
