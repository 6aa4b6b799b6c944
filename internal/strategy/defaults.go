package strategy

import (
	"log/slog"

	"github.com/Veraticus/statement-flow/internal/service"
)

// Stores is the persistence the default strategies read and write.
type Stores interface {
	PatternSource
	MappingSource
	DocumentTracker
}

var _ Stores = (service.Storage)(nil)

// Defaults returns the strategies in priority order: bank-specific, tabular
// columns, regex patterns, the heuristic pipeline, then manual correction.
// enhancer may be nil.
func Defaults(stores Stores, bounds MatchRatioBounds, enhancer Enhancer, logger *slog.Logger) []Strategy {
	heuristicOpts := []HeuristicOption{WithHeuristicLogger(logger)}
	if enhancer != nil {
		heuristicOpts = append(heuristicOpts, WithEnhancer(enhancer))
	}
	return []Strategy{
		NewBankSpecific(stores, logger),
		NewTabularColumns(stores, logger),
		NewRegexPatterns(stores, bounds, logger),
		NewHeuristic(heuristicOpts...),
		NewManualCorrection(stores, logger),
	}
}
