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

const patternColumns = `id, name, pattern, fields, file_type, institution, owner_id, description,
	priority, success_count, failure_count, confidence, is_active, is_builtin,
	last_used, created_at, updated_at`

// Confidence is recomputed in the same statement as the counter so
// concurrent outcomes never lose an update.
const (
	successConfidenceExpr = `MIN(?, MAX(?, CAST(success_count + 1 AS REAL) / (success_count + 1 + failure_count)))`
	failureConfidenceExpr = `MIN(?, MAX(?, CAST(success_count AS REAL) / (success_count + failure_count + 1)))`
)

// ListPatterns returns patterns matching filter in trial order: ascending
// priority, then descending confidence.
func (s *SQLiteStorage) ListPatterns(ctx context.Context, filter service.PatternFilter) ([]model.RegexPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.FileType != "" {
		where = append(where, "file_type = ?")
		args = append(args, string(filter.FileType))
	}
	if filter.Institution != "" {
		where = append(where, "institution = ?")
		args = append(args, filter.Institution)
	}
	if filter.OwnerID != "" {
		where = append(where, "(owner_id = '' OR owner_id = ?)")
		args = append(args, filter.OwnerID)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + patternColumns + ` FROM regex_patterns`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority, confidence DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.RegexPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}
	return patterns, nil
}

// GetPattern retrieves a pattern by ID.
func (s *SQLiteStorage) GetPattern(ctx context.Context, id int64) (*model.RegexPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	p, err := scanPattern(s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM regex_patterns WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pattern %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return p, nil
}

// CreatePattern stores a new pattern. Names are unique per file type and owner.
func (s *SQLiteStorage) CreatePattern(ctx context.Context, p *model.RegexPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(p); err != nil {
		return err
	}

	inserted, err := s.insertPattern(ctx, p, false)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("%w: pattern %q for %s", common.ErrDuplicateEntry, p.Name, p.FileType)
	}
	return nil
}

// insertPattern inserts p, or does nothing when ignoreExisting is set and the
// (name, file_type, owner) key is taken.
func (s *SQLiteStorage) insertPattern(ctx context.Context, p *model.RegexPattern, ignoreExisting bool) (bool, error) {
	fields, err := toJSON(p.Fields)
	if err != nil {
		return false, fmt.Errorf("failed to encode pattern fields: %w", err)
	}

	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Recompute()

	verb := "INSERT"
	if ignoreExisting {
		verb = "INSERT OR IGNORE"
	}
	res, err := s.db.ExecContext(ctx, verb+` INTO regex_patterns (
			name, pattern, fields, file_type, institution, owner_id, description,
			priority, success_count, failure_count, confidence, is_active, is_builtin,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Pattern, fields, string(p.FileType), p.Institution, p.OwnerID, p.Description,
		p.Priority, p.SuccessCount, p.FailureCount, p.Confidence, p.IsActive, p.IsBuiltin,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create pattern: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get pattern ID: %w", err)
	}
	p.ID = id
	return true, nil
}

// DeletePattern removes a user pattern. Built-in patterns cannot be deleted.
func (s *SQLiteStorage) DeletePattern(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	p, err := s.GetPattern(ctx, id)
	if err != nil {
		return err
	}
	if p.IsBuiltin {
		return fmt.Errorf("%w: %s", common.ErrBuiltinImmutable, p.Name)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM regex_patterns WHERE id = ? AND is_builtin = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	return requireRow(res, "pattern", id)
}

// SetPatternActive toggles whether a pattern is tried.
func (s *SQLiteStorage) SetPatternActive(ctx context.Context, id int64, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE regex_patterns SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}
	return requireRow(res, "pattern", id)
}

// RecordPatternSuccess atomically increments the success counter and
// recomputes confidence.
func (s *SQLiteStorage) RecordPatternSuccess(ctx context.Context, id int64) error {
	return s.recordOutcome(ctx, id, "success_count = success_count + 1", successConfidenceExpr)
}

// RecordPatternFailure atomically increments the failure counter and
// recomputes confidence.
func (s *SQLiteStorage) RecordPatternFailure(ctx context.Context, id int64) error {
	return s.recordOutcome(ctx, id, "failure_count = failure_count + 1", failureConfidenceExpr)
}

func (s *SQLiteStorage) recordOutcome(ctx context.Context, id int64, increment, confidence string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE regex_patterns SET `+increment+`, confidence = `+confidence+`,
			last_used = ?, updated_at = ? WHERE id = ?`,
		model.MaxPatternConfidence, model.MinPatternConfidence, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to record pattern outcome: %w", err)
	}
	return requireRow(res, "pattern", id)
}

// SeedBuiltinPatterns inserts built-in patterns that are not present yet and
// returns how many were added. Existing rows keep their counters.
func (s *SQLiteStorage) SeedBuiltinPatterns(ctx context.Context, patterns []model.RegexPattern) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	added := 0
	for i := range patterns {
		p := patterns[i]
		p.IsBuiltin = true
		p.IsActive = true
		p.OwnerID = ""
		if err := validatePattern(&p); err != nil {
			return added, fmt.Errorf("built-in pattern %q: %w", p.Name, err)
		}
		inserted, err := s.insertPattern(ctx, &p, true)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

// CountPatternsCreated counts non-built-in patterns an owner created on day.
func (s *SQLiteStorage) CountPatternsCreated(ctx context.Context, ownerID string, day time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	start, end := dayBounds(day)

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM regex_patterns
		WHERE owner_id = ? AND is_builtin = 0 AND created_at >= ? AND created_at < ?`,
		ownerID, start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return n, nil
}

func scanPattern(row scanner) (*model.RegexPattern, error) {
	var (
		p        model.RegexPattern
		fields   sql.NullString
		fileType string
		lastUsed sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Pattern, &fields, &fileType, &p.Institution, &p.OwnerID, &p.Description,
		&p.Priority, &p.SuccessCount, &p.FailureCount, &p.Confidence, &p.IsActive, &p.IsBuiltin,
		&lastUsed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.FileType = model.FileType(fileType)
	p.LastUsed = timePtr(lastUsed)
	if err := fromJSON(fields, &p.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode pattern fields: %w", err)
	}
	return &p, nil
}
