package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
)

// SaveDocument stores a submitted document. Documents are immutable, so a
// second save of the same ID is a duplicate.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *model.Document) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	now := s.now()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, name, file_type, status, content, uploaded_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Name, string(doc.FileType), string(model.DocumentUploaded),
		doc.Content, doc.UploadedAt.UTC(), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: document %s", common.ErrDuplicateEntry, doc.ID)
		}
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID. The password is never stored.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var (
		doc      model.Document
		fileType string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, file_type, content, uploaded_at
		FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.OwnerID, &doc.Name, &fileType, &doc.Content, &doc.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.FileType = model.FileType(fileType)
	return &doc, nil
}

// UpdateDocumentStatus moves a document to a new processing status.
func (s *SQLiteStorage) UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateDocumentStatus(status); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return requireRow(res, "document", id)
}

// GetDocumentStatus returns a document's processing status.
func (s *SQLiteStorage) GetDocumentStatus(ctx context.Context, id string) (model.DocumentStatus, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get document status: %w", err)
	}
	return model.DocumentStatus(status), nil
}

func requireRow(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", common.ErrNotFound, kind, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
