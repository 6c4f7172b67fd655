package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/checkpg/checkstate"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context with the given transaction
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL with pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// RunInTx runs fn inside one transaction, committing when fn returns nil.
// If the context already carries a transaction, fn joins it.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendLog appends one record to the audit log
func (s *PostgresStore) AppendLog(ctx context.Context, record LogRecord) error {
	if record.UserID() == "" {
		return fmt.Errorf("user_id is required")
	}

	payloadJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal log payload: %w", err)
	}

	query := `
		INSERT INTO checkpg_audit_logs (id, document_type, user_id, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	_, err = s.getQuerier(ctx).Exec(ctx, query, uuid.New().String(), record.DocumentType(), record.UserID(), payloadJSON)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}

	return nil
}

// GetLogs retrieves audit log records for a document type, newest first
func (s *PostgresStore) GetLogs(ctx context.Context, documentType, userID string) ([]LogRecord, error) {
	query := `
		SELECT document_type, payload
		FROM checkpg_audit_logs
		WHERE document_type = $1 AND ($2 = '' OR user_id = $2)
		ORDER BY created_at DESC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, documentType, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var records []LogRecord
	for rows.Next() {
		var docType string
		var payloadJSON []byte

		if err := rows.Scan(&docType, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan log record: %w", err)
		}

		record, err := decodeLogRecord(docType, payloadJSON)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}

	return records, nil
}

// decodeLogRecord reconstructs the typed record from its document type tag.
func decodeLogRecord(documentType string, payload []byte) (LogRecord, error) {
	switch documentType {
	case DocumentTypePolicy:
		var record PolicyUploadRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy upload record: %w", err)
		}
		return record, nil
	case DocumentTypeEngagement:
		var record EngagementRunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal engagement run record: %w", err)
		}
		return record, nil
	default:
		return nil, fmt.Errorf("unknown log document type %q", documentType)
	}
}

// EnqueueCheck inserts a new check request in the pending state
func (s *PostgresStore) EnqueueCheck(ctx context.Context, check *CheckRecord) error {
	if check.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if check.EngagementName == "" {
		return fmt.Errorf("engagement_name is required")
	}
	if check.PolicyName == "" {
		return fmt.Errorf("policy_name is required")
	}

	if check.ID == uuid.Nil {
		check.ID = uuid.New()
	}
	check.State = checkstate.CheckStatePending

	query := `
		INSERT INTO checkpg_check_requests
			(id, state, user_id, engagement_name, policy_name, policy_version,
			 attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
	`

	_, err := s.getQuerier(ctx).Exec(ctx, query,
		check.ID,
		check.State,
		check.UserID,
		check.EngagementName,
		check.PolicyName,
		check.PolicyVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue check: %w", err)
	}

	return nil
}

const checkColumns = `id, state, user_id, engagement_name, policy_name, policy_version,
	       attempts, error_message, claimed_by, claimed_at, created_at, updated_at`

// GetCheck retrieves a check request by ID
func (s *PostgresStore) GetCheck(ctx context.Context, checkID uuid.UUID) (*CheckRecord, error) {
	query := `
		SELECT ` + checkColumns + `
		FROM checkpg_check_requests
		WHERE id = $1
	`

	row := s.getQuerier(ctx).QueryRow(ctx, query, checkID)
	check, err := scanCheck(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrCheckNotFound, checkID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}

	return check, nil
}

// ClaimChecks atomically claims up to maxCount pending checks.
// Claimed checks move to running with attempts incremented.
func (s *PostgresStore) ClaimChecks(ctx context.Context, claimedBy string, maxCount int) ([]*CheckRecord, error) {
	query := `
		UPDATE checkpg_check_requests
		SET state = $1, claimed_by = $2, claimed_at = NOW(),
		    attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM checkpg_check_requests
			WHERE state = $3
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + checkColumns

	rows, err := s.getQuerier(ctx).Query(ctx, query,
		checkstate.CheckStateRunning, claimedBy, checkstate.CheckStatePending, maxCount)
	if err != nil {
		return nil, fmt.Errorf("failed to claim checks: %w", err)
	}
	defer rows.Close()

	var checks []*CheckRecord
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed check: %w", err)
		}
		checks = append(checks, check)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed checks: %w", err)
	}

	return checks, nil
}

// CompleteCheck marks a running check as completed
func (s *PostgresStore) CompleteCheck(ctx context.Context, checkID uuid.UUID) error {
	return s.transition(ctx, checkID, checkstate.CheckStateRunning, checkstate.CheckStateCompleted, nil)
}

// FailCheck releases a running check for redelivery, or dead-letters it once
// attempts reach maxAttempts
func (s *PostgresStore) FailCheck(ctx context.Context, checkID uuid.UUID, errMsg string, maxAttempts int) error {
	query := `
		UPDATE checkpg_check_requests
		SET state = CASE WHEN attempts >= $2 THEN $3 ELSE $4 END,
		    error_message = $5,
		    claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND state = $6
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query,
		checkID, maxAttempts,
		checkstate.CheckStateDead, checkstate.CheckStatePending,
		errMsg, checkstate.CheckStateRunning)
	if err != nil {
		return fmt.Errorf("failed to fail check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("check %s: %w", checkID, ErrCheckNotRunning)
	}

	return nil
}

// CancelCheck cancels a pending or running check
func (s *PostgresStore) CancelCheck(ctx context.Context, checkID uuid.UUID) error {
	query := `
		UPDATE checkpg_check_requests
		SET state = $2, claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND state IN ($3, $4)
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query, checkID,
		checkstate.CheckStateCancelled, checkstate.CheckStatePending, checkstate.CheckStateRunning)
	if err != nil {
		return fmt.Errorf("failed to cancel check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("check %s is not cancellable", checkID)
	}

	return nil
}

// ReleaseStaleChecks returns running checks with expired claims to pending.
// A crashed worker's checks become redeliverable after the visibility timeout.
func (s *PostgresStore) ReleaseStaleChecks(ctx context.Context, visibilityTimeout time.Duration) (int, error) {
	query := `
		UPDATE checkpg_check_requests
		SET state = $1, claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE state = $2 AND claimed_at < NOW() - $3::interval
	`

	interval := fmt.Sprintf("%f seconds", visibilityTimeout.Seconds())
	tag, err := s.getQuerier(ctx).Exec(ctx, query,
		checkstate.CheckStatePending, checkstate.CheckStateRunning, interval)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale checks: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteFinishedChecks(ctx context.Context, retention time.Duration) (int, error) {
	query := `
		DELETE FROM checkpg_check_requests
		WHERE state = ANY($1) AND updated_at < NOW() - $2::interval
	`

	terminal := checkstate.TerminalStates()
	states := make([]string, len(terminal))
	for i, st := range terminal {
		states[i] = string(st)
	}

	interval := fmt.Sprintf("%f seconds", retention.Seconds())
	tag, err := s.getQuerier(ctx).Exec(ctx, query, states, interval)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished checks: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// transition moves a check from one state to another, requiring the source state.
func (s *PostgresStore) transition(ctx context.Context, checkID uuid.UUID, from, to checkstate.CheckState, errMsg *string) error {
	query := `
		UPDATE checkpg_check_requests
		SET state = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND state = $4
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query, checkID, to, errMsg, from)
	if err != nil {
		return fmt.Errorf("failed to transition check to %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		if from == checkstate.CheckStateRunning {
			return fmt.Errorf("check %s: %w", checkID, ErrCheckNotRunning)
		}
		return fmt.Errorf("check %s is not in state %s", checkID, from)
	}

	return nil
}

// scanCheck scans one check row
func scanCheck(row pgx.Row) (*CheckRecord, error) {
	var check CheckRecord
	err := row.Scan(
		&check.ID,
		&check.State,
		&check.UserID,
		&check.EngagementName,
		&check.PolicyName,
		&check.PolicyVersion,
		&check.Attempts,
		&check.ErrorMessage,
		&check.ClaimedBy,
		&check.ClaimedAt,
		&check.CreatedAt,
		&check.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &check, nil
}
