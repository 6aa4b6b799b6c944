package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
)

const attemptColumns = `id, document_id, owner_id, method, ordinal, status, config, raw_output,
	error, transaction_count, confidence, duration_ms, started_at, completed_at`

// NextOrdinal returns the next free attempt ordinal for a document. Ordinals
// start at 1 and keep increasing across runs.
func (s *SQLiteStorage) NextOrdinal(ctx context.Context, documentID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return 0, err
	}

	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM parsing_attempts WHERE document_id = ?`,
		documentID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next ordinal: %w", err)
	}
	return next, nil
}

// CreateAttempt records a started attempt and assigns its ID.
func (s *SQLiteStorage) CreateAttempt(ctx context.Context, a *model.ParsingAttempt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAttempt(a); err != nil {
		return err
	}

	config, err := toJSON(a.Config)
	if err != nil {
		return fmt.Errorf("failed to encode attempt config: %w", err)
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = s.now()
	}
	if a.Status == "" {
		a.Status = model.AttemptInProgress
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO parsing_attempts (document_id, owner_id, method, ordinal, status, config, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.DocumentID, a.OwnerID, string(a.Method), a.Ordinal, string(a.Status), config, a.StartedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: attempt %d of document %s", common.ErrDuplicateEntry, a.Ordinal, a.DocumentID)
		}
		return fmt.Errorf("failed to create attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get attempt ID: %w", err)
	}
	a.ID = id
	return nil
}

// CompleteAttempt writes a finalized attempt's outcome. Only an attempt that
// is still open may be completed.
func (s *SQLiteStorage) CompleteAttempt(ctx context.Context, a *model.ParsingAttempt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAttempt(a); err != nil {
		return err
	}
	if !a.Status.IsFinal() {
		return fmt.Errorf("%w: status %q is not final", ErrInvalidAttempt, a.Status)
	}

	raw, err := toJSON(a.RawOutput)
	if err != nil {
		return fmt.Errorf("failed to encode raw output: %w", err)
	}
	completed := a.CompletedAt
	if completed == nil {
		now := s.now()
		completed = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE parsing_attempts
		SET status = ?, raw_output = ?, error = ?, transaction_count = ?, confidence = ?,
			duration_ms = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(a.Status), raw, a.Error, a.TransactionCount, a.Confidence,
		a.DurationMS, completed.UTC(),
		a.ID, string(model.AttemptPending), string(model.AttemptInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to complete attempt: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetAttempt(ctx, a.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("attempt %d: %w", a.ID, model.ErrAttemptFinalized)
	}
	return nil
}

// GetAttempt retrieves an attempt by ID.
func (s *SQLiteStorage) GetAttempt(ctx context.Context, id int64) (*model.ParsingAttempt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM parsing_attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: attempt %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns a document's attempts in ordinal order.
func (s *SQLiteStorage) ListAttempts(ctx context.Context, documentID string) ([]model.ParsingAttempt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM parsing_attempts WHERE document_id = ? ORDER BY ordinal`,
		documentID)
}

// ListAttemptsForDay returns an owner's attempts started on day (UTC).
func (s *SQLiteStorage) ListAttemptsForDay(ctx context.Context, ownerID string, day time.Time) ([]model.ParsingAttempt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	start, end := dayBounds(day)
	return s.queryAttempts(ctx, `
		SELECT `+attemptColumns+` FROM parsing_attempts
		WHERE owner_id = ? AND started_at >= ? AND started_at < ?
		ORDER BY started_at, id`,
		ownerID, start, end)
}

// ListActiveOwners returns the owners with at least one attempt on day.
func (s *SQLiteStorage) ListActiveOwners(ctx context.Context, day time.Time) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	start, end := dayBounds(day)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT owner_id FROM parsing_attempts
		WHERE started_at >= ? AND started_at < ? AND owner_id != ''
		ORDER BY owner_id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list active owners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (s *SQLiteStorage) queryAttempts(ctx context.Context, query string, args ...any) ([]model.ParsingAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []model.ParsingAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return attempts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*model.ParsingAttempt, error) {
	var (
		a           model.ParsingAttempt
		method      string
		status      string
		config, raw sql.NullString
		completed   sql.NullTime
	)
	err := row.Scan(&a.ID, &a.DocumentID, &a.OwnerID, &method, &a.Ordinal, &status, &config, &raw,
		&a.Error, &a.TransactionCount, &a.Confidence, &a.DurationMS, &a.StartedAt, &completed)
	if err != nil {
		return nil, err
	}
	a.Method = model.Method(method)
	a.Status = model.AttemptStatus(status)
	a.StartedAt = a.StartedAt.UTC()
	a.CompletedAt = timePtr(completed)
	if err := fromJSON(config, &a.Config); err != nil {
		return nil, fmt.Errorf("failed to decode attempt config: %w", err)
	}
	if err := fromJSON(raw, &a.RawOutput); err != nil {
		return nil, fmt.Errorf("failed to decode raw output: %w", err)
	}
	return &a, nil
}
