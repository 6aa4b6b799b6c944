package engine

import (
	"context"
	"time"

	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/service"
	"github.com/Veraticus/statement-flow/internal/source"
)

// Store is the persistence the engine needs to keep the attempt history.
type Store interface {
	service.DocumentStore
	service.AttemptStore
	SaveColumnMappings(ctx context.Context, mappings []model.ColumnMapping) error
}

// Loader reads a document's content. Its errors are preconditions.
type Loader interface {
	Load(ctx context.Context, doc model.Document) (*source.Content, error)
}

// Recorder turns every finalized attempt into a training example.
type Recorder interface {
	RecordAttempt(ctx context.Context, attempt *model.ParsingAttempt, sourceText string, result model.ParseResult) error
}

// Notifier is told when an owner's metrics for a day went stale.
type Notifier interface {
	Notify(ownerID string, day time.Time)
}
