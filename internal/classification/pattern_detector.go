// Package classification assigns a coarse income, expense or transfer type to
// statement descriptions using prioritized keyword patterns.
package classification

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/statement-flow/internal/model"
)

// Pattern represents a transaction classification pattern.
type Pattern struct {
	Name       string
	Type       model.TransactionType
	Regex      string
	Priority   int     // Higher priority patterns are checked first
	Confidence float64 // Base confidence when pattern matches (0.0-1.0)
}

// CompiledPattern holds a compiled regex pattern with metadata.
type CompiledPattern struct {
	compiledRegex *regexp.Regexp
	Pattern
}

// PatternDetector classifies descriptions against an ordered pattern list.
type PatternDetector struct {
	patterns []CompiledPattern
	mu       sync.RWMutex
}

// Match represents a pattern match result.
type Match struct {
	PatternName string
	Type        model.TransactionType
	Confidence  float64
}

// NewPatternDetector creates a new pattern detector with the given patterns.
func NewPatternDetector(patterns []Pattern) (*PatternDetector, error) {
	compiled, err := compile(patterns)
	if err != nil {
		return nil, err
	}
	return &PatternDetector{patterns: compiled}, nil
}

// Classify returns the first matching pattern, or nil when nothing matches.
func (pd *PatternDetector) Classify(description string) *Match {
	pd.mu.RLock()
	defer pd.mu.RUnlock()

	text := strings.ToUpper(description)
	for _, p := range pd.patterns {
		if p.compiledRegex.MatchString(text) {
			return &Match{
				PatternName: p.Name,
				Type:        p.Type,
				Confidence:  p.Confidence,
			}
		}
	}
	return nil
}

// ClassifyType resolves a type for a description. Without a keyword match
// the direction decides: credits are income, everything else an expense.
func (pd *PatternDetector) ClassifyType(description string, direction model.Direction) model.TransactionType {
	if m := pd.Classify(description); m != nil {
		return m.Type
	}
	if direction == model.DirectionCredit {
		return model.TypeIncome
	}
	return model.TypeExpense
}

// UpdatePatterns replaces the detector's patterns.
func (pd *PatternDetector) UpdatePatterns(patterns []Pattern) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	pd.mu.Lock()
	pd.patterns = compiled
	pd.mu.Unlock()
	return nil
}

// GetPatternCount returns the number of loaded patterns.
func (pd *PatternDetector) GetPatternCount() int {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return len(pd.patterns)
}

func compile(patterns []Pattern) ([]CompiledPattern, error) {
	compiled := make([]CompiledPattern, 0, len(patterns))
	for _, p := range patterns {
		regexStr := p.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr
		}

		regex, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, CompiledPattern{
			Pattern:       p,
			compiledRegex: regex,
		})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return compiled, nil
}

var (
	defaultDetector *PatternDetector
	defaultOnce     sync.Once
)

// Default returns a shared detector loaded with DefaultPatterns.
func Default() *PatternDetector {
	defaultOnce.Do(func() {
		d, err := NewPatternDetector(DefaultPatterns())
		if err != nil {
			panic(fmt.Sprintf("classification: default patterns do not compile: %v", err))
		}
		defaultDetector = d
	})
	return defaultDetector
}

// ClassifyType classifies with the default detector.
func ClassifyType(description string, direction model.Direction) model.TransactionType {
	return Default().ClassifyType(description, direction)
}
