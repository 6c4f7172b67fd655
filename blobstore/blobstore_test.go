package blobstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/youssefsiam38/checkpg/internal/testutil"
	itstorage "github.com/youssefsiam38/checkpg/storage"
)

func setupBlobStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	db := testutil.NewTestDB(t)
	if db == nil {
		return nil, nil
	}
	t.Cleanup(db.Close)

	ctx := context.Background()
	if err := itstorage.Migrate(ctx, db.Pool); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	return NewStore(db.Pool), ctx
}

func TestIntegration_BlobStore_Versioning(t *testing.T) {
	store, ctx := setupBlobStore(t)
	if store == nil {
		return
	}

	v1, err := store.Upload(ctx, PoliciesContainer, "travel_policy.md", []byte("version one"), "text/markdown")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	v2, err := store.Upload(ctx, PoliciesContainer, "travel_policy.md", []byte("version two"), "text/markdown")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if v1 == v2 {
		t.Fatal("Expected distinct version ids")
	}

	// Pinned reads return the immutable version
	blob, err := store.Get(ctx, PoliciesContainer, "travel_policy.md", v1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(blob.Data, []byte("version one")) {
		t.Errorf("Expected v1 data, got %q", blob.Data)
	}

	// Latest returns the newest upload
	latest, err := store.Latest(ctx, PoliciesContainer, "travel_policy.md")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.VersionID != v2 {
		t.Errorf("Expected latest %s, got %s", v2, latest.VersionID)
	}

	versions, err := store.ListVersions(ctx, PoliciesContainer, "travel_policy.md")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(versions))
	}
	if versions[0].VersionID != v2 {
		t.Errorf("Expected newest first, got %s", versions[0].VersionID)
	}
}

func TestIntegration_BlobStore_NotFound(t *testing.T) {
	store, ctx := setupBlobStore(t)
	if store == nil {
		return
	}

	if _, err := store.Get(ctx, PoliciesContainer, "missing.md", "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Latest(ctx, PoliciesContainer, "missing.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_BlobStore_ContainerIsolation(t *testing.T) {
	store, ctx := setupBlobStore(t)
	if store == nil {
		return
	}

	if _, err := store.Upload(ctx, PoliciesContainer, "doc.md", []byte("policy"), "text/markdown"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := store.Upload(ctx, EngagementsContainer, "doc.md", []byte("engagement"), "text/markdown"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	blob, err := store.Latest(ctx, EngagementsContainer, "doc.md")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if string(blob.Data) != "engagement" {
		t.Errorf("Expected engagement data, got %q", blob.Data)
	}

	names, err := store.ListNames(ctx, PoliciesContainer)
	if err != nil {
		t.Fatalf("ListNames failed: %v", err)
	}
	if len(names) != 1 || names[0] != "doc.md" {
		t.Errorf("Expected [doc.md], got %v", names)
	}
}
