package strategy

import (
	"context"
	"errors"
	"sync"

	"github.com/Veraticus/statement-flow/internal/institution"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/service"
	"github.com/Veraticus/statement-flow/internal/source"
)

type fakePatterns struct {
	listErr   error
	patterns  []model.RegexPattern
	filters   []service.PatternFilter
	successes []int64
	failures  []int64
	mu        sync.Mutex
}

func (f *fakePatterns) ListPatterns(_ context.Context, filter service.PatternFilter) ([]model.RegexPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.RegexPattern
	for _, p := range f.patterns {
		if filter.FileType != "" && p.FileType != filter.FileType {
			continue
		}
		if filter.Institution != "" && p.Institution != filter.Institution {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePatterns) RecordPatternSuccess(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, id)
	return nil
}

func (f *fakePatterns) RecordPatternFailure(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, id)
	return nil
}

type fakeMappings struct {
	err      error
	mappings []model.ColumnMapping
}

func (f *fakeMappings) FindColumnMappings(_ context.Context, _ string, _ model.FileType, signature string) ([]model.ColumnMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.ColumnMapping
	for _, m := range f.mappings {
		if m.HeaderSignature == signature {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeTracker struct {
	err      error
	statuses map[string]model.DocumentStatus
}

func (f *fakeTracker) UpdateDocumentStatus(_ context.Context, id string, status model.DocumentStatus) error {
	if f.err != nil {
		return f.err
	}
	if f.statuses == nil {
		f.statuses = make(map[string]model.DocumentStatus)
	}
	f.statuses[id] = status
	return nil
}

type fakeEnhancer struct {
	err    error
	result model.ParseResult
	calls  int
}

func (f *fakeEnhancer) Enhance(_ context.Context, _ string, _ model.ParseResult) (model.ParseResult, error) {
	f.calls++
	return f.result, f.err
}

var errStoreDown = errors.New("store unavailable")

// input loads raw content through the real loader and runs detection the way
// the engine does.
func input(ft model.FileType, content string) *Input {
	doc := model.Document{ID: "doc-1", OwnerID: "owner-1", FileType: ft, Content: []byte(content)}
	c, err := source.NewLoader().Load(context.Background(), doc)
	if err != nil {
		panic(err)
	}
	return &Input{
		Document:  doc,
		Content:   c,
		Detection: institution.Default().Detect(c.Text),
		Ordinal:   1,
	}
}
