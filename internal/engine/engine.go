// Package engine implements the parsing orchestrator: it tries strategies in
// priority order against a document, records every attempt and returns the
// most confident result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/institution"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/normalize"
	"github.com/Veraticus/statement-flow/internal/strategy"
)

// Options are the caller's per-run choices. Zero values fall back to the
// engine's configuration.
type Options struct {
	ForcedMethod    model.Method
	MaxAttempts     int
	StrategyTimeout time.Duration
	DropDuplicates  bool
}

// Config holds the engine defaults.
type Config struct {
	MaxAttempts         int
	EarlyExitConfidence float64
	StrategyTimeout     time.Duration
	DropDuplicates      bool
	ExcerptChars        int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         4,
		EarlyExitConfidence: 0.85,
		ExcerptChars:        strategy.DefaultExcerptChars,
	}
}

// Engine orchestrates strategies over documents.
type Engine struct {
	store      Store
	loader     Loader
	recorder   Recorder
	notifier   Notifier
	catalog    *institution.Catalog
	logger     *slog.Logger
	now        func() time.Time
	strategies []strategy.Strategy
	config     Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(c Config) Option {
	return func(e *Engine) { e.config = c }
}

// WithRecorder sets the learning recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithNotifier sets the metrics notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithCatalog replaces the embedded institution catalog.
func WithCatalog(c *institution.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. strategies are tried in the given order; a
// manual-correction strategy, wherever it appears, always runs last.
func New(store Store, loader Loader, strategies []strategy.Strategy, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		loader:     loader,
		strategies: strategies,
		config:     DefaultConfig(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = institution.Default()
	}
	e.logger = common.LoggerOrDefault(e.logger)
	return e
}

type plan struct {
	manual    strategy.Strategy
	automated []strategy.Strategy
}

// Run parses doc. Precondition failures and persistence failures are
// returned as errors; every other outcome, including exhaustion of all
// strategies, is a result.
func (e *Engine) Run(ctx context.Context, doc model.Document, opts Options) (*model.ParseResult, error) {
	opts = e.resolve(opts)

	if !doc.FileType.IsValid() {
		return nil, common.NewPreconditionError(doc.ID, fmt.Errorf("%w: %q", common.ErrUnsupportedFileType, doc.FileType))
	}
	p, err := e.plan(doc.FileType, opts.ForcedMethod)
	if err != nil {
		return nil, common.NewPreconditionError(doc.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse of %s cancelled: %w", doc.ID, err)
	}
	content, err := e.loader.Load(ctx, doc)
	if err != nil {
		return nil, common.NewPreconditionError(doc.ID, err)
	}

	ordinal, err := e.store.NextOrdinal(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get next attempt ordinal: %w", err)
	}

	e.setStatus(ctx, doc.ID, model.DocumentProcessing)
	methods := make([]model.Method, 0, len(p.automated))
	for _, s := range p.automated {
		methods = append(methods, s.Method())
	}
	e.logger.Info("Starting parse",
		"document_id", doc.ID,
		"file_type", doc.FileType,
		"strategies", methods,
		"max_attempts", opts.MaxAttempts)

	in := &strategy.Input{
		Document:  doc,
		Content:   content,
		Detection: e.catalog.Detect(content.Text),
		Counted:   strategy.NewPatternTally(),
		Options: strategy.Options{
			DropDuplicates: opts.DropDuplicates,
			ExcerptChars:   e.config.ExcerptChars,
		},
	}
	in.Text() // Computed once so attempts only read the input.

	var (
		best  *model.ParseResult
		prior []model.AttemptSummary
	)
	for i, s := range p.automated {
		if i >= opts.MaxAttempts {
			e.logger.Info("Attempt limit reached", "document_id", doc.ID, "max_attempts", opts.MaxAttempts)
			break
		}
		if err := ctx.Err(); err != nil {
			e.setStatus(ctx, doc.ID, model.DocumentFailed)
			return nil, fmt.Errorf("parse of %s cancelled after %d attempts: %w", doc.ID, i, err)
		}

		attempt, result, err := e.runAttempt(ctx, s, in, ordinal, opts)
		if err != nil {
			return nil, err
		}
		ordinal++
		prior = append(prior, attempt.Summary())

		// Ties keep the earlier strategy.
		if result.Success && (best == nil || result.Confidence > best.Confidence) {
			r := result
			best = &r
		}
		if best != nil && best.Confidence > e.config.EarlyExitConfidence {
			e.logger.Info("Early exit on confident result",
				"document_id", doc.ID,
				"method", best.Method,
				"confidence", best.Confidence)
			break
		}
	}

	defer e.notify(doc.OwnerID)

	if best != nil {
		e.setStatus(ctx, doc.ID, model.DocumentParsed)
		e.logger.Info("Parse complete",
			"document_id", doc.ID,
			"method", best.Method,
			"confidence", best.Confidence,
			"transactions", len(best.Transactions))
		return best, nil
	}

	e.logger.Warn("All automated strategies failed", "document_id", doc.ID, "attempts", len(prior))

	if p.manual == nil {
		e.setStatus(ctx, doc.ID, model.DocumentFailed)
		final := e.exhausted(in, prior)
		return &final, nil
	}

	in.Prior = prior
	_, final, err := e.runAttempt(ctx, p.manual, in, ordinal, opts)
	if err != nil {
		return nil, err
	}
	if final.ManualCorrection == nil {
		final = e.exhausted(in, prior)
	}
	final.Terminal = true
	return &final, nil
}

func (e *Engine) resolve(opts Options) Options {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = e.config.MaxAttempts
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if opts.StrategyTimeout <= 0 {
		opts.StrategyTimeout = e.config.StrategyTimeout
	}
	opts.DropDuplicates = opts.DropDuplicates || e.config.DropDuplicates
	return opts
}

// plan selects the strategies for a file type. A forced method restricts the
// automated list to that one strategy.
func (e *Engine) plan(ft model.FileType, forced model.Method) (plan, error) {
	if forced != "" {
		if _, ok := model.ParseMethod(string(forced)); !ok {
			return plan{}, fmt.Errorf("%w: %q", common.ErrUnknownMethod, forced)
		}
	}

	var p plan
	for _, s := range e.strategies {
		if s.Method() == model.MethodManualCorrection {
			p.manual = s
			continue
		}
		if !s.Supports(ft) {
			continue
		}
		if forced != "" && s.Method() != forced {
			continue
		}
		p.automated = append(p.automated, s)
	}

	switch {
	case forced == model.MethodManualCorrection && p.manual == nil:
		return plan{}, fmt.Errorf("%w: %s is not configured", common.ErrUnknownMethod, forced)
	case forced != "" && forced != model.MethodManualCorrection && len(p.automated) == 0:
		return plan{}, fmt.Errorf("%w: %s cannot parse %s documents", common.ErrUnknownMethod, forced, ft)
	case len(p.automated) == 0 && p.manual == nil:
		return plan{}, fmt.Errorf("%w for %s documents", common.ErrNoStrategies, ft)
	}
	return p, nil
}

// runAttempt records, runs and finalizes one attempt. Only persistence
// failures are returned; strategy failures become failed results.
func (e *Engine) runAttempt(ctx context.Context, s strategy.Strategy, in *strategy.Input, ordinal int, opts Options) (model.ParsingAttempt, model.ParseResult, error) {
	// The record must survive a cancelled caller.
	persistCtx := context.WithoutCancel(ctx)

	attempt := model.NewAttempt(in.Document, s.Method(), ordinal, map[string]any{
		"max_attempts":     opts.MaxAttempts,
		"forced_method":    string(opts.ForcedMethod),
		"strategy_timeout": opts.StrategyTimeout.String(),
		"drop_duplicates":  opts.DropDuplicates,
		"institution":      in.Detection.Name,
	})
	attempt.StartedAt = e.now()
	if err := e.store.CreateAttempt(persistCtx, &attempt); err != nil {
		return attempt, model.ParseResult{}, fmt.Errorf("failed to record %s attempt %d: %w", s.Method(), ordinal, err)
	}

	view := *in
	view.Ordinal = ordinal
	result := e.invoke(ctx, s, &view, opts.StrategyTimeout)
	result.Method = s.Method()
	result.Normalize()

	if err := attempt.Finalize(result, e.now()); err != nil {
		return attempt, result, fmt.Errorf("failed to finalize attempt %d: %w", attempt.ID, err)
	}
	if err := e.store.CompleteAttempt(persistCtx, &attempt); err != nil {
		return attempt, result, fmt.Errorf("failed to complete %s attempt %d: %w", s.Method(), ordinal, err)
	}

	if len(result.ColumnMapping) > 0 {
		for i := range result.ColumnMapping {
			result.ColumnMapping[i].AttemptID = attempt.ID
			result.ColumnMapping[i].OwnerID = in.Document.OwnerID
			result.ColumnMapping[i].FileType = in.Document.FileType
		}
		if err := e.store.SaveColumnMappings(persistCtx, result.ColumnMapping); err != nil {
			return attempt, result, fmt.Errorf("failed to save column mappings for attempt %d: %w", attempt.ID, err)
		}
	}

	if e.recorder != nil {
		if err := e.recorder.RecordAttempt(persistCtx, &attempt, in.Text(), result); err != nil {
			return attempt, result, fmt.Errorf("failed to record learning entry for attempt %d: %w", attempt.ID, err)
		}
	}

	e.logger.Info("Attempt finished",
		"document_id", in.Document.ID,
		"method", s.Method(),
		"ordinal", ordinal,
		"status", attempt.Status,
		"confidence", result.Confidence,
		"transactions", len(result.Transactions),
		"duration_ms", attempt.DurationMS,
		"error", result.Error)
	return attempt, result, nil
}

// invoke runs the strategy under the optional timeout. A timed-out strategy
// keeps running in its goroutine but its result is discarded.
func (e *Engine) invoke(ctx context.Context, s strategy.Strategy, in *strategy.Input, timeout time.Duration) model.ParseResult {
	if timeout <= 0 {
		return e.call(ctx, s, in)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan model.ParseResult, 1)
	go func() { done <- e.call(ctx, s, in) }()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.FailedResult(s.Method(), fmt.Sprintf("strategy timed out after %s", timeout))
		}
		return model.FailedResult(s.Method(), ctx.Err().Error())
	}
}

// call converts errors and panics into failed results.
func (e *Engine) call(ctx context.Context, s strategy.Strategy, in *strategy.Input) (result model.ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Strategy panicked", "method", s.Method(), "panic", r)
			result = model.FailedResult(s.Method(), fmt.Sprintf("strategy panicked: %v", r))
		}
	}()

	r, err := s.Attempt(ctx, in)
	if err != nil {
		return model.FailedResult(s.Method(), err.Error())
	}
	return r
}

// exhausted builds the terminal result when no manual strategy is configured.
func (e *Engine) exhausted(in *strategy.Input, prior []model.AttemptSummary) model.ParseResult {
	r := model.FailedResult(model.MethodManualCorrection, "all strategies failed; manual correction required")
	r.Terminal = true
	r.ManualCorrection = &model.ManualCorrectionPayload{
		Excerpt:     normalize.Excerpt(in.Text(), e.config.ExcerptChars),
		Attempts:    prior,
		Suggestions: strategy.Suggestions(in),
		Institution: in.Detection.Name,
		TotalChars:  len([]rune(in.Text())),
	}
	return r
}

func (e *Engine) setStatus(ctx context.Context, id string, status model.DocumentStatus) {
	if err := e.store.UpdateDocumentStatus(context.WithoutCancel(ctx), id, status); err != nil {
		e.logger.Warn("Failed to update document status", "document_id", id, "status", status, "error", err)
	}
}

func (e *Engine) notify(ownerID string) {
	if e.notifier != nil {
		e.notifier.Notify(ownerID, model.DayStart(e.now()))
	}
}
