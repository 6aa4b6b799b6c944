package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/statement-flow/internal/model"
)

const mappingColumns = `id, attempt_id, owner_id, file_type, source_column, source_index, field,
	header_signature, confidence, user_confirmed, created_at`

// SaveColumnMappings stores the mappings an attempt used, all or nothing.
func (s *SQLiteStorage) SaveColumnMappings(ctx context.Context, mappings []model.ColumnMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(mappings) == 0 {
		return nil
	}
	for i := range mappings {
		if err := validateMapping(&mappings[i]); err != nil {
			return fmt.Errorf("mapping at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO column_mappings (attempt_id, owner_id, file_type, source_column, source_index,
			field, header_signature, confidence, user_confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := s.now()
	for i := range mappings {
		m := &mappings[i]
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		res, err := stmt.ExecContext(ctx,
			nullID(m.AttemptID), m.OwnerID, string(m.FileType), m.SourceColumn, m.SourceIndex,
			string(m.Field), m.HeaderSignature, m.Confidence, m.UserConfirmed, m.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to save column mapping %q: %w", m.SourceColumn, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			m.ID = id
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit column mappings: %w", err)
	}
	return nil
}

// FindColumnMappings returns an owner's learned mappings for a header
// signature, best first.
func (s *SQLiteStorage) FindColumnMappings(ctx context.Context, ownerID string, fileType model.FileType, signature string) ([]model.ColumnMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	mappings, err := s.queryMappings(ctx, `
		SELECT `+mappingColumns+` FROM column_mappings
		WHERE owner_id = ? AND file_type = ? AND header_signature = ?`,
		ownerID, string(fileType), signature)
	if err != nil {
		return nil, err
	}
	model.RankMappings(mappings)
	return mappings, nil
}

// ListColumnMappingsForAttempt returns the mappings recorded by one attempt.
func (s *SQLiteStorage) ListColumnMappingsForAttempt(ctx context.Context, attemptID int64) ([]model.ColumnMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryMappings(ctx,
		`SELECT `+mappingColumns+` FROM column_mappings WHERE attempt_id = ? ORDER BY source_index, id`,
		attemptID)
}

// UpdateColumnMapping changes a mapping's field, confidence or confirmation.
func (s *SQLiteStorage) UpdateColumnMapping(ctx context.Context, m *model.ColumnMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMapping(m); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE column_mappings SET field = ?, confidence = ?, user_confirmed = ?
		WHERE id = ?`,
		string(m.Field), m.Confidence, m.UserConfirmed, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update column mapping: %w", err)
	}
	return requireRow(res, "column mapping", m.ID)
}

func (s *SQLiteStorage) queryMappings(ctx context.Context, query string, args ...any) ([]model.ColumnMapping, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query column mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.ColumnMapping
	for rows.Next() {
		var (
			m         model.ColumnMapping
			attemptID sql.NullInt64
			fileType  string
			field     string
		)
		if err := rows.Scan(&m.ID, &attemptID, &m.OwnerID, &fileType, &m.SourceColumn, &m.SourceIndex,
			&field, &m.HeaderSignature, &m.Confidence, &m.UserConfirmed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan column mapping: %w", err)
		}
		m.AttemptID = attemptID.Int64
		m.FileType = model.FileType(fileType)
		m.Field = model.Field(field)
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column mappings: %w", err)
	}
	return mappings, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
