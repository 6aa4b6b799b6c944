package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/tabular"
	"github.com/shopspring/decimal"
)

// Per-line confidence cues.
const (
	lineBaseConfidence      = 0.5
	fullYearBonus           = 0.2
	currencyFormatBonus     = 0.2
	fieldCountBonus         = 0.1
	minFieldsForBonus       = 3
	lowConfidenceThreshold  = 0.6
	earliestPlausibleYear   = 1990
	futureDateToleranceDays = 1
)

// Heuristic is the five-stage pipeline for text without a known structure:
// cleanup, structuring, extraction, validation and usage preparation.
type Heuristic struct {
	enhancer Enhancer
	logger   *slog.Logger
	now      func() time.Time
}

// HeuristicOption configures the pipeline.
type HeuristicOption func(*Heuristic)

// WithEnhancer plugs in the optional AI capability.
func WithEnhancer(e Enhancer) HeuristicOption {
	return func(h *Heuristic) { h.enhancer = e }
}

// WithHeuristicLogger sets the logger.
func WithHeuristicLogger(l *slog.Logger) HeuristicOption {
	return func(h *Heuristic) { h.logger = l }
}

// NewHeuristic creates the pipeline.
func NewHeuristic(opts ...HeuristicOption) *Heuristic {
	h := &Heuristic{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = common.LoggerOrDefault(h.logger)
	return h
}

// Method implements Strategy.
func (h *Heuristic) Method() model.Method { return model.MethodHeuristic }

// Supports implements Strategy.
func (h *Heuristic) Supports(ft model.FileType) bool { return ft.IsValid() }

// Attempt implements Strategy.
func (h *Heuristic) Attempt(ctx context.Context, in *Input) (model.ParseResult, error) {
	// Stage 1: cleanup.
	text := in.Text()

	// Stage 2: structuring.
	candidates := tabular.CandidateLines(text, in.DateOrder())

	// Stage 3: extraction.
	txs, amountErrors := h.extract(candidates, in.Ordinal)

	result := model.ParseResult{Method: h.Method(), Institution: in.Detection.Name}
	if len(txs) > 0 {
		result.Success = true
		result.Confidence = meanConfidence(txs)
		result.Transactions = txs
	} else {
		result.Error = fmt.Sprintf("no transaction lines found among %d candidates", len(candidates))
	}

	if h.enhancer != nil {
		result = h.enhance(ctx, text, result, in.Ordinal)
	}

	// Stages 4 and 5 run on whatever extraction produced.
	if result.Success {
		report, kept := h.validate(result.Transactions, amountErrors, in.Options.DropDuplicates)
		result.Validation = &report
		result.Transactions = kept
		summary := Summarize(kept)
		result.Summary = &summary
		if report.DuplicateCount > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%d possible duplicate transactions", report.DuplicateCount))
		}
	}

	h.logger.Debug("Heuristic pipeline finished",
		"candidates", len(candidates),
		"transactions", len(result.Transactions),
		"confidence", result.Confidence)
	return result, nil
}

// LineConfidence scores one candidate line from its structural cues.
func LineConfidence(fullYear, currencyFormatted bool, fieldCount int) float64 {
	c := lineBaseConfidence
	if fullYear {
		c += fullYearBonus
	}
	if currencyFormatted {
		c += currencyFormatBonus
	}
	if fieldCount >= minFieldsForBonus {
		c += fieldCountBonus
	}
	return min(1, c)
}

func (h *Heuristic) extract(candidates []tabular.Candidate, ordinal int) ([]model.ParsedTransaction, int) {
	var (
		txs          []model.ParsedTransaction
		amountErrors int
	)
	for _, c := range candidates {
		amt, ok := fields.LargestAmount(c.Amounts)
		if !ok || amt.Amount.Value.IsZero() {
			amountErrors++
			continue
		}

		spans := [][2]int{{c.Date.Start, c.Date.End}}
		for _, a := range c.Amounts {
			spans = append(spans, [2]int{a.Start, a.End})
		}
		description := fields.RemoveSpans(c.Text, spans...)

		confidence := LineConfidence(c.Date.FullYear, amt.Amount.CurrencyFormatted, len(strings.Fields(c.Text)))
		dir := inferDirection(amt.Amount, nil, nil, description)
		tx := newTransaction(c.Date.Value, amt.Amount.Magnitude(), dir, description, model.Provenance{
			Method:  h.Method(),
			Ordinal: ordinal,
			Line:    c.Line,
			Raw:     c.Text,
		}, confidence)
		txs = append(txs, tx)
	}
	return txs, amountErrors
}

// enhance lets the AI capability improve on the basic result. Any failure
// keeps the basic result.
func (h *Heuristic) enhance(ctx context.Context, text string, basic model.ParseResult, ordinal int) model.ParseResult {
	enhanced, err := h.enhancer.Enhance(ctx, text, basic)
	if err != nil {
		h.logger.Warn("Enhancer unavailable, keeping heuristic result", "error", err)
		basic.Warnings = append(basic.Warnings, "AI enhancement unavailable: "+err.Error())
		return basic
	}
	if !enhanced.Success || len(enhanced.Transactions) == 0 || enhanced.Confidence <= basic.Confidence {
		return basic
	}

	for i := range enhanced.Transactions {
		enhanced.Transactions[i].Provenance.Method = h.Method()
		enhanced.Transactions[i].Provenance.Ordinal = ordinal
	}
	enhanced.Method = h.Method()
	enhanced.Institution = basic.Institution
	enhanced.Warnings = append(basic.Warnings, "result refined by AI enhancement")
	return enhanced
}

// validate reports duplicates and integrity counts. Duplicates are kept
// unless drop is set.
func (h *Heuristic) validate(txs []model.ParsedTransaction, amountErrors int, drop bool) (model.ValidationReport, []model.ParsedTransaction) {
	report := model.ValidationReport{AmountErrors: amountErrors}

	groups := make(map[string][]int)
	var order []string
	for i, tx := range txs {
		key := tx.DuplicateKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	dropped := make(map[int]bool)
	for _, key := range order {
		idx := groups[key]
		if len(idx) < 2 {
			continue
		}
		report.Duplicates = append(report.Duplicates, idx)
		report.DuplicateCount += len(idx) - 1
		if drop {
			for _, i := range idx[1:] {
				dropped[i] = true
			}
		}
	}

	latest := h.now().AddDate(0, 0, futureDateToleranceDays)
	sum := 0.0
	for _, tx := range txs {
		if tx.Date.Year() < earliestPlausibleYear || tx.Date.After(latest) {
			report.DateErrors++
		}
		if tx.Confidence < lowConfidenceThreshold {
			report.LowConfidenceCount++
		}
		sum += tx.Confidence
	}
	if len(txs) > 0 {
		report.AverageConfidence = sum / float64(len(txs))
	}

	if len(dropped) == 0 {
		return report, txs
	}
	kept := make([]model.ParsedTransaction, 0, len(txs)-len(dropped))
	for i, tx := range txs {
		if !dropped[i] {
			kept = append(kept, tx)
		}
	}
	report.DuplicatesDropped = len(dropped)
	return report, kept
}

// Summarize computes totals by type, the date span and the average size.
func Summarize(txs []model.ParsedTransaction) model.UsageSummary {
	s := model.UsageSummary{
		TotalsByType: make(map[model.TransactionType]decimal.Decimal),
		CountsByType: make(map[model.TransactionType]int),
		Count:        len(txs),
	}
	if len(txs) == 0 {
		return s
	}

	total := decimal.Zero
	for i, tx := range txs {
		amount := decimal.NewFromFloat(tx.Amount).Round(2)
		s.TotalsByType[tx.Type] = s.TotalsByType[tx.Type].Add(amount)
		s.CountsByType[tx.Type]++
		total = total.Add(amount)

		if i == 0 || tx.Date.Before(s.EarliestDate) {
			s.EarliestDate = tx.Date
		}
		if i == 0 || tx.Date.After(s.LatestDate) {
			s.LatestDate = tx.Date
		}
	}
	s.AverageTransaction = total.Div(decimal.NewFromInt(int64(len(txs)))).Round(2)
	s.SpanDays = int(s.LatestDate.Sub(s.EarliestDate).Hours() / 24)
	return s
}

func meanConfidence(txs []model.ParsedTransaction) float64 {
	if len(txs) == 0 {
		return 0
	}
	sum := 0.0
	for _, tx := range txs {
		sum += tx.Confidence
	}
	return sum / float64(len(txs))
}
