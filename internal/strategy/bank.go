package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/normalize"
	"github.com/Veraticus/statement-flow/internal/service"
)

// BankSpecific recognizes the issuing institution and applies its line
// patterns.
type BankSpecific struct {
	patterns PatternSource
	cache    *common.RegexCache
	logger   *slog.Logger
}

// NewBankSpecific creates the matcher. patterns may be nil, in which case
// only the catalog's own line patterns are used.
func NewBankSpecific(patterns PatternSource, logger *slog.Logger) *BankSpecific {
	return &BankSpecific{
		patterns: patterns,
		cache:    common.NewRegexCache(),
		logger:   common.LoggerOrDefault(logger),
	}
}

// Method implements Strategy.
func (b *BankSpecific) Method() model.Method { return model.MethodBankSpecific }

// Supports implements Strategy.
func (b *BankSpecific) Supports(ft model.FileType) bool {
	return supportsAny(ft, model.FileTypePDF, model.FileTypeText)
}

// BankConfidence scores a bank-specific extraction of count transactions
// from a recognized institution. Detection strength does not change the
// score; it is only reported.
func BankConfidence(count int) float64 {
	if count <= 0 {
		return 0
	}
	scaled := float64(min(count, 100)) / 100
	return min(0.95, 0.7+scaled*0.25)
}

// Attempt implements Strategy.
func (b *BankSpecific) Attempt(ctx context.Context, in *Input) (model.ParseResult, error) {
	det := in.Detection
	if !det.Found() {
		return model.FailedResult(b.Method(), "no institution recognized"), nil
	}

	patterns, err := b.loadPatterns(ctx, in)
	if err != nil {
		return model.ParseResult{}, err
	}
	if len(patterns) == 0 {
		return model.FailedResult(b.Method(), fmt.Sprintf("no line patterns known for %s", det.Name)), nil
	}

	text := in.Text()
	lines := normalize.Lines(text)
	lc := lineContext{
		method:  b.Method(),
		order:   in.DateOrder(),
		ordinal: in.Ordinal,
		year:    statementYear(text),
	}

	var (
		best     patternOutcome
		bestName string
		warnings []string
	)
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return model.ParseResult{}, err
		}

		re, err := b.cache.Compile(p.Pattern)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("pattern %s is invalid: %v", p.Name, err))
			b.record(ctx, in, p, false)
			continue
		}

		out := applyPattern(re, p, lines, lc)
		b.record(ctx, in, p, out.matched > 0)
		if len(out.transactions) > len(best.transactions) {
			best, bestName = out, p.Name
		}
	}

	if len(best.transactions) == 0 {
		r := model.FailedResult(b.Method(), fmt.Sprintf("no %s statement lines matched", det.Name))
		r.Institution = det.Name
		r.Warnings = warnings
		return r, nil
	}

	confidence := BankConfidence(len(best.transactions))
	b.logger.Debug("Bank-specific extraction",
		"institution", det.Name,
		"strength", det.Strength,
		"pattern", bestName,
		"transactions", len(best.transactions),
		"confidence", confidence)

	return model.ParseResult{
		Method:       b.Method(),
		Success:      true,
		Confidence:   confidence,
		Institution:  det.Name,
		PatternName:  bestName,
		Transactions: withConfidence(best.transactions, confidence),
		Warnings:     warnings,
	}, nil
}

// loadPatterns prefers the rule store's patterns for the institution and
// falls back to the catalog's in-memory ones.
func (b *BankSpecific) loadPatterns(ctx context.Context, in *Input) ([]model.RegexPattern, error) {
	det := in.Detection
	var patterns []model.RegexPattern
	if b.patterns != nil {
		stored, err := b.patterns.ListPatterns(ctx, service.PatternFilter{
			FileType:    in.Document.FileType,
			Institution: det.Name,
			OwnerID:     in.Document.OwnerID,
			ActiveOnly:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load patterns for %s: %w", det.Name, err)
		}
		for _, p := range stored {
			if p.Institution == det.Name {
				patterns = append(patterns, p)
			}
		}
	}
	if len(patterns) == 0 {
		patterns = det.Institution.RegexPatterns(in.Document.FileType)
	}
	model.SortPatterns(patterns, det.Name)
	return patterns, nil
}

// record updates a stored pattern's counters. Catalog patterns have no ID
// and are not tracked.
func (b *BankSpecific) record(ctx context.Context, in *Input, p model.RegexPattern, matched bool) {
	if b.patterns == nil {
		return
	}
	recordOutcome(ctx, b.patterns, b.logger, in, p, matched)
}

func recordOutcome(ctx context.Context, store PatternSource, logger *slog.Logger, in *Input, p model.RegexPattern, matched bool) {
	if p.ID == 0 || !in.Counted.Claim(p.ID) {
		return
	}
	var err error
	if matched {
		err = store.RecordPatternSuccess(ctx, p.ID)
	} else {
		err = store.RecordPatternFailure(ctx, p.ID)
	}
	if err != nil {
		logger.Warn("Failed to record pattern outcome",
			"pattern_id", p.ID,
			"pattern", p.Name,
			"matched", matched,
			"error", err)
	}
}
