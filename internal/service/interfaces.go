// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/statement-flow/internal/model"
)

// PatternFilter narrows pattern queries. Empty fields match everything.
type PatternFilter struct {
	FileType    model.FileType
	Institution string
	OwnerID     string // Global patterns are always included alongside the owner's
	ActiveOnly  bool
}

// LearningFilter narrows learning dataset queries.
type LearningFilter struct {
	OwnerID       string
	Method        model.Method
	ValidatedOnly bool
	Limit         int
}

// DocumentStore persists submitted documents and their processing status.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error
	GetDocumentStatus(ctx context.Context, id string) (model.DocumentStatus, error)
}

// AttemptStore persists the append-only attempt history of each document.
type AttemptStore interface {
	NextOrdinal(ctx context.Context, documentID string) (int, error)
	CreateAttempt(ctx context.Context, attempt *model.ParsingAttempt) error
	CompleteAttempt(ctx context.Context, attempt *model.ParsingAttempt) error
	GetAttempt(ctx context.Context, id int64) (*model.ParsingAttempt, error)
	ListAttempts(ctx context.Context, documentID string) ([]model.ParsingAttempt, error)
	ListAttemptsForDay(ctx context.Context, ownerID string, day time.Time) ([]model.ParsingAttempt, error)
	ListActiveOwners(ctx context.Context, day time.Time) ([]string, error)
}

// PatternStore is the regex half of the rule store. Counter updates must be
// atomic per row.
type PatternStore interface {
	ListPatterns(ctx context.Context, filter PatternFilter) ([]model.RegexPattern, error)
	GetPattern(ctx context.Context, id int64) (*model.RegexPattern, error)
	CreatePattern(ctx context.Context, pattern *model.RegexPattern) error
	DeletePattern(ctx context.Context, id int64) error
	SetPatternActive(ctx context.Context, id int64, active bool) error
	RecordPatternSuccess(ctx context.Context, id int64) error
	RecordPatternFailure(ctx context.Context, id int64) error
	SeedBuiltinPatterns(ctx context.Context, patterns []model.RegexPattern) (int, error)
	CountPatternsCreated(ctx context.Context, ownerID string, day time.Time) (int, error)
}

// MappingStore is the column-mapping half of the rule store.
type MappingStore interface {
	SaveColumnMappings(ctx context.Context, mappings []model.ColumnMapping) error
	FindColumnMappings(ctx context.Context, ownerID string, fileType model.FileType, signature string) ([]model.ColumnMapping, error)
	ListColumnMappingsForAttempt(ctx context.Context, attemptID int64) ([]model.ColumnMapping, error)
	UpdateColumnMapping(ctx context.Context, mapping *model.ColumnMapping) error
}

// LearningStore persists the append-only training dataset.
type LearningStore interface {
	SaveLearningEntry(ctx context.Context, entry *model.LearningEntry) error
	GetLearningEntryByAttempt(ctx context.Context, attemptID int64) (*model.LearningEntry, error)
	ListLearningEntries(ctx context.Context, filter LearningFilter) ([]model.LearningEntry, error)
	CountLearningEntries(ctx context.Context, ownerID string, day time.Time) (int, error)
}

// MetricsStore persists daily rollups. Upserts replace the (owner, day) row.
type MetricsStore interface {
	UpsertMetrics(ctx context.Context, metrics *model.ParsingMetrics) error
	GetMetrics(ctx context.Context, ownerID string, from, to time.Time) ([]model.ParsingMetrics, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	DocumentStore
	AttemptStore
	PatternStore
	MappingStore
	LearningStore
	MetricsStore

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations. Logger receives
// the per-retry warnings; nil uses the default logger.
type RetryOptions struct {
	Logger       *slog.Logger
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
