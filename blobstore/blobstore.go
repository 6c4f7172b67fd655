// Package blobstore provides versioned document storage on PostgreSQL with
// HMAC-signed, time-limited read URLs.
//
// Every upload creates a new immutable version; nothing is overwritten.
// Checks pin the policy version they ran against, so results stay
// reproducible after a policy is re-uploaded.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/checkpg/storage"
)

// Container names. Policies and engagement documents live in separate
// namespaces.
const (
	PoliciesContainer    = "policies"
	EngagementsContainer = "engagements"
)

// ErrNotFound indicates the requested document or version does not exist.
var ErrNotFound = errors.New("blobstore: document not found")

// Blob is one stored document version.
type Blob struct {
	Container   string    `json:"container"`
	Name        string    `json:"name"`
	VersionID   string    `json:"version_id"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Version describes one stored version without its data.
type Version struct {
	VersionID string    `json:"version_id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a versioned blob store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a blob store on the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is the common query surface of pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the transaction carried by the context if present, otherwise the
// pool. Blob writes inside storage.Store.RunInTx share that transaction.
func (s *Store) q(ctx context.Context) querier {
	if tx := storage.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// Upload stores a new version of the named document and returns its version id.
func (s *Store) Upload(ctx context.Context, container, name string, data []byte, contentType string) (string, error) {
	if container == "" {
		return "", fmt.Errorf("blobstore: container is required")
	}
	if name == "" {
		return "", fmt.Errorf("blobstore: name is required")
	}

	versionID := uuid.New().String()

	query := `
		INSERT INTO checkpg_documents (id, container, name, version_id, content_type, data, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err := s.q(ctx).Exec(ctx, query, uuid.New(), container, name, versionID, contentType, data, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("blobstore: failed to upload %s/%s: %w", container, name, err)
	}

	return versionID, nil
}

const blobColumns = `container, name, version_id, content_type, data, size, created_at`

// Get retrieves a specific version of a document.
func (s *Store) Get(ctx context.Context, container, name, versionID string) (*Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM checkpg_documents
		WHERE container = $1 AND name = $2 AND version_id = $3
	`

	return s.scanBlob(s.q(ctx).QueryRow(ctx, query, container, name, versionID))
}

// Latest retrieves the most recently uploaded version of a document.
func (s *Store) Latest(ctx context.Context, container, name string) (*Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM checkpg_documents
		WHERE container = $1 AND name = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return s.scanBlob(s.q(ctx).QueryRow(ctx, query, container, name))
}

// ListVersions returns all versions of a document, newest first.
func (s *Store) ListVersions(ctx context.Context, container, name string) ([]Version, error) {
	query := `
		SELECT version_id, size, created_at
		FROM checkpg_documents
		WHERE container = $1 AND name = $2
		ORDER BY created_at DESC
	`

	rows, err := s.q(ctx).Query(ctx, query, container, name)
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to list versions of %s/%s: %w", container, name, err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.VersionID, &v.Size, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("blobstore: failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blobstore: error iterating versions: %w", err)
	}

	return versions, nil
}

// ListNames returns the distinct document names in a container.
func (s *Store) ListNames(ctx context.Context, container string) ([]string, error) {
	query := `
		SELECT DISTINCT name
		FROM checkpg_documents
		WHERE container = $1
		ORDER BY name ASC
	`

	rows, err := s.q(ctx).Query(ctx, query, container)
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to list %s: %w", container, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("blobstore: failed to scan name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blobstore: error iterating names: %w", err)
	}

	return names, nil
}

func (s *Store) scanBlob(row pgx.Row) (*Blob, error) {
	var blob Blob
	err := row.Scan(
		&blob.Container,
		&blob.Name,
		&blob.VersionID,
		&blob.ContentType,
		&blob.Data,
		&blob.Size,
		&blob.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to get document: %w", err)
	}
	return &blob, nil
}
