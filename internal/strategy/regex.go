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

// MatchRatioBounds are the matched-line ratios outside which a pattern's
// score is penalized. Above Over the pattern is over-matching; below Under
// it found too little of the document.
type MatchRatioBounds struct {
	Under float64
	Over  float64
}

// Penalty factors applied outside the match ratio bounds.
const (
	OverMatchFactor  = 0.6
	UnderMatchFactor = 0.9
)

// DefaultMatchRatioBounds are the starting thresholds.
var DefaultMatchRatioBounds = MatchRatioBounds{Under: 0.1, Over: 0.5}

// Factor returns the penalty multiplier for a match ratio.
func (b MatchRatioBounds) Factor(ratio float64) float64 {
	switch {
	case ratio > b.Over:
		return OverMatchFactor
	case ratio < b.Under:
		return UnderMatchFactor
	}
	return 1
}

// RegexPatterns tries every active stored pattern for the document's file
// type and keeps the best-scoring one's transactions.
type RegexPatterns struct {
	patterns PatternSource
	bounds   MatchRatioBounds
	cache    *common.RegexCache
	logger   *slog.Logger
}

// NewRegexPatterns creates the matcher.
func NewRegexPatterns(patterns PatternSource, bounds MatchRatioBounds, logger *slog.Logger) *RegexPatterns {
	return &RegexPatterns{
		patterns: patterns,
		bounds:   bounds,
		cache:    common.NewRegexCache(),
		logger:   common.LoggerOrDefault(logger),
	}
}

// Method implements Strategy.
func (r *RegexPatterns) Method() model.Method { return model.MethodRegexPatterns }

// Supports implements Strategy.
func (r *RegexPatterns) Supports(ft model.FileType) bool { return ft.IsValid() }

// Attempt implements Strategy.
func (r *RegexPatterns) Attempt(ctx context.Context, in *Input) (model.ParseResult, error) {
	if r.patterns == nil {
		return model.FailedResult(r.Method(), "no pattern store configured"), nil
	}

	stored, err := r.patterns.ListPatterns(ctx, service.PatternFilter{
		FileType:   in.Document.FileType,
		OwnerID:    in.Document.OwnerID,
		ActiveOnly: true,
	})
	if err != nil {
		return model.ParseResult{}, fmt.Errorf("failed to load regex patterns: %w", err)
	}

	institutionName := in.Detection.Name
	var patterns []model.RegexPattern
	for _, p := range stored {
		if p.Institution == "" || p.Institution == institutionName {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return model.FailedResult(r.Method(), fmt.Sprintf("no regex patterns apply to %s documents", in.Document.FileType)), nil
	}
	model.SortPatterns(patterns, institutionName)

	text := in.Text()
	lines := normalize.Lines(text)
	if len(lines) == 0 {
		return model.FailedResult(r.Method(), "document has no text lines"), nil
	}
	lc := lineContext{
		method:  r.Method(),
		order:   in.DateOrder(),
		ordinal: in.Ordinal,
		year:    statementYear(text),
	}

	var (
		best      patternOutcome
		bestScore float64
		bestName  string
		warnings  []string
	)
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return model.ParseResult{}, err
		}

		re, err := r.cache.Compile(p.Pattern)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("pattern %s is invalid: %v", p.Name, err))
			recordOutcome(ctx, r.patterns, r.logger, in, p, false)
			continue
		}

		out := applyPattern(re, p, lines, lc)
		recordOutcome(ctx, r.patterns, r.logger, in, p, out.matched > 0)
		if out.matched == 0 || len(out.transactions) == 0 {
			continue
		}

		score := r.Score(p, out.matched, len(out.transactions), len(lines))
		r.logger.Debug("Regex pattern scored",
			"pattern", p.Name,
			"matched", out.matched,
			"extracted", len(out.transactions),
			"lines", len(lines),
			"score", score)

		if score > bestScore {
			best, bestScore, bestName = out, score, p.Name
		}
	}

	if len(best.transactions) == 0 {
		res := model.FailedResult(r.Method(), "no regex pattern matched the document")
		res.Warnings = warnings
		return res, nil
	}

	return model.ParseResult{
		Method:       r.Method(),
		Success:      true,
		Confidence:   bestScore,
		Institution:  institutionName,
		PatternName:  bestName,
		Transactions: withConfidence(best.transactions, bestScore),
		Warnings:     warnings,
	}, nil
}

// Score is the pattern's derived confidence, penalized outside the match
// ratio bounds and scaled by how many matched lines yielded a transaction.
func (r *RegexPatterns) Score(p model.RegexPattern, matched, extracted, lines int) float64 {
	if matched == 0 || lines == 0 {
		return 0
	}
	ratio := float64(matched) / float64(lines)
	extraction := float64(extracted) / float64(matched)
	return model.PatternConfidence(p.SuccessCount, p.FailureCount) * r.bounds.Factor(ratio) * extraction
}
