package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/statement-flow/internal/model"
)

// UpsertMetrics replaces the (owner, day) rollup.
func (s *SQLiteStorage) UpsertMetrics(ctx context.Context, m *model.ParsingMetrics) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMetrics(m); err != nil {
		return err
	}

	methods, err := toJSON(m.Methods)
	if err != nil {
		return fmt.Errorf("failed to encode method stats: %w", err)
	}
	m.Day = model.DayStart(m.Day)
	m.UpdatedAt = s.now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parsing_metrics (owner_id, day, methods, total_attempts, total_successes,
			patterns_learned, dataset_entries, average_confidence, average_duration_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, day) DO UPDATE SET
			methods = excluded.methods,
			total_attempts = excluded.total_attempts,
			total_successes = excluded.total_successes,
			patterns_learned = excluded.patterns_learned,
			dataset_entries = excluded.dataset_entries,
			average_confidence = excluded.average_confidence,
			average_duration_ms = excluded.average_duration_ms,
			updated_at = excluded.updated_at`,
		m.OwnerID, dayKey(m.Day), methods, m.TotalAttempts, m.TotalSuccesses,
		m.PatternsLearned, m.DatasetEntries, m.AverageConfidence, m.AverageDurationMS, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}
	return nil
}

// GetMetrics returns an owner's rollups for the days in [from, to].
func (s *SQLiteStorage) GetMetrics(ctx context.Context, ownerID string, from, to time.Time) ([]model.ParsingMetrics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidDateRange, dayKey(to), dayKey(from))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, day, methods, total_attempts, total_successes, patterns_learned,
			dataset_entries, average_confidence, average_duration_ms, updated_at
		FROM parsing_metrics
		WHERE owner_id = ? AND day >= ? AND day <= ?
		ORDER BY day`,
		ownerID, dayKey(from), dayKey(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ParsingMetrics
	for rows.Next() {
		var (
			m       model.ParsingMetrics
			day     string
			methods sql.NullString
		)
		if err := rows.Scan(&m.OwnerID, &day, &methods, &m.TotalAttempts, &m.TotalSuccesses,
			&m.PatternsLearned, &m.DatasetEntries, &m.AverageConfidence, &m.AverageDurationMS, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		m.Day, err = time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse metrics day %q: %w", day, err)
		}
		if err := fromJSON(methods, &m.Methods); err != nil {
			return nil, fmt.Errorf("failed to decode method stats: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics: %w", err)
	}
	return out, nil
}
