// Package strategy implements the extraction strategies the engine tries
// against a document, from the cheapest institution-specific matcher down to
// the manual-correction handoff.
package strategy

import (
	"context"
	"sync"

	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/institution"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/normalize"
	"github.com/Veraticus/statement-flow/internal/service"
	"github.com/Veraticus/statement-flow/internal/source"
)

// Strategy is one extraction algorithm. Attempt returns a failed result for
// declared failures; a returned error is converted to one by the engine.
type Strategy interface {
	Method() model.Method
	Supports(ft model.FileType) bool
	Attempt(ctx context.Context, in *Input) (model.ParseResult, error)
}

// Options are the per-run knobs strategies honour.
type Options struct {
	DropDuplicates bool
	ExcerptChars   int
}

// Input is everything a strategy may read about the document being parsed.
type Input struct {
	Content   *source.Content
	Detection institution.Detection
	Document  model.Document
	Prior     []model.AttemptSummary
	Options   Options
	Ordinal   int

	// Counted is shared by every attempt of a run; nil counts every outcome.
	Counted *PatternTally

	text    string
	cleaned bool
}

// Text returns the document's normalized text, computed once.
func (in *Input) Text() string {
	if !in.cleaned {
		if in.Content != nil {
			in.text = normalize.Clean(in.Content.Text)
		}
		in.cleaned = true
	}
	return in.text
}

// DateOrder is the detected institution's preferred date order, if any.
func (in *Input) DateOrder() fields.DateOrder {
	if in.Detection.Institution != nil {
		return in.Detection.Institution.DateOrder
	}
	return fields.OrderAuto
}

// PatternTally remembers which stored patterns already had their counters
// updated during one run, so a pattern tried by more than one strategy is
// counted once per document.
type PatternTally struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewPatternTally returns an empty tally.
func NewPatternTally() *PatternTally {
	return &PatternTally{ids: make(map[int64]struct{})}
}

// Claim marks id as counted and reports whether it was not counted before.
func (t *PatternTally) Claim(id int64) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ids[id]; ok {
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

// PatternSource is the part of the rule store the regex-based strategies use.
type PatternSource interface {
	ListPatterns(ctx context.Context, filter service.PatternFilter) ([]model.RegexPattern, error)
	RecordPatternSuccess(ctx context.Context, id int64) error
	RecordPatternFailure(ctx context.Context, id int64) error
}

// MappingSource looks up learned column mappings.
type MappingSource interface {
	FindColumnMappings(ctx context.Context, ownerID string, fileType model.FileType, signature string) ([]model.ColumnMapping, error)
}

// DocumentTracker updates a document's processing status.
type DocumentTracker interface {
	UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error
}

// Enhancer is the optional AI capability behind the heuristic pipeline.
type Enhancer interface {
	Enhance(ctx context.Context, text string, basic model.ParseResult) (model.ParseResult, error)
}

func supportsAny(ft model.FileType, types ...model.FileType) bool {
	for _, t := range types {
		if ft == t {
			return true
		}
	}
	return false
}
