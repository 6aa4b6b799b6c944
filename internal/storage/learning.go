package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/service"
)

const learningColumns = `id, attempt_id, document_id, owner_id, method, outcome, source_text,
	expected, actual, quality_score, training_weight, validated, created_at`

// SaveLearningEntry appends a training example.
func (s *SQLiteStorage) SaveLearningEntry(ctx context.Context, e *model.LearningEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLearningEntry(e); err != nil {
		return err
	}

	expected, err := toJSON(e.Expected)
	if err != nil {
		return fmt.Errorf("failed to encode expected transactions: %w", err)
	}
	actual, err := toJSON(e.Actual)
	if err != nil {
		return fmt.Errorf("failed to encode actual transactions: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_entries (attempt_id, document_id, owner_id, method, outcome, source_text,
			expected, actual, quality_score, training_weight, validated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(e.AttemptID), e.DocumentID, e.OwnerID, string(e.Method), string(e.Outcome), e.SourceText,
		expected, actual, e.QualityScore, e.TrainingWeight, e.Validated, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save learning entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get learning entry ID: %w", err)
	}
	e.ID = id
	return nil
}

// GetLearningEntryByAttempt returns the automatic entry recorded for an
// attempt.
func (s *SQLiteStorage) GetLearningEntryByAttempt(ctx context.Context, attemptID int64) (*model.LearningEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+learningColumns+` FROM learning_entries
		WHERE attempt_id = ? AND outcome != ?
		ORDER BY id LIMIT 1`,
		attemptID, string(model.OutcomeManualAnnotation))
	e, err := scanLearningEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: learning entry for attempt %d", common.ErrNotFound, attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learning entry: %w", err)
	}
	return e, nil
}

// ListLearningEntries returns entries matching filter, newest first.
func (s *SQLiteStorage) ListLearningEntries(ctx context.Context, filter service.LearningFilter) ([]model.LearningEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Method != "" {
		where = append(where, "method = ?")
		args = append(args, string(filter.Method))
	}
	if filter.ValidatedOnly {
		where = append(where, "validated = 1")
	}

	query := `SELECT ` + learningColumns + ` FROM learning_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LearningEntry
	for rows.Next() {
		e, err := scanLearningEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learning entries: %w", err)
	}
	return entries, nil
}

// CountLearningEntries counts the entries an owner added on day.
func (s *SQLiteStorage) CountLearningEntries(ctx context.Context, ownerID string, day time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	start, end := dayBounds(day)

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM learning_entries
		WHERE owner_id = ? AND created_at >= ? AND created_at < ?`,
		ownerID, start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count learning entries: %w", err)
	}
	return n, nil
}

func scanLearningEntry(row scanner) (*model.LearningEntry, error) {
	var (
		e                model.LearningEntry
		attemptID        sql.NullInt64
		method, outcome  string
		expected, actual sql.NullString
	)
	err := row.Scan(&e.ID, &attemptID, &e.DocumentID, &e.OwnerID, &method, &outcome, &e.SourceText,
		&expected, &actual, &e.QualityScore, &e.TrainingWeight, &e.Validated, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.AttemptID = attemptID.Int64
	e.Method = model.Method(method)
	e.Outcome = model.LearningOutcome(outcome)
	if err := fromJSON(expected, &e.Expected); err != nil {
		return nil, fmt.Errorf("failed to decode expected transactions: %w", err)
	}
	if err := fromJSON(actual, &e.Actual); err != nil {
		return nil, fmt.Errorf("failed to decode actual transactions: %w", err)
	}
	return &e, nil
}
