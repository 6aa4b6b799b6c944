package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/tabular"
)

// ReasonRequiredColumns is the failure reason when no date and amount
// columns could be mapped.
const ReasonRequiredColumns = "required columns not found"

// TabularColumns maps table columns to fields and extracts row by row.
type TabularColumns struct {
	mappings MappingSource
	logger   *slog.Logger
}

// NewTabularColumns creates the extractor. mappings may be nil.
func NewTabularColumns(mappings MappingSource, logger *slog.Logger) *TabularColumns {
	return &TabularColumns{mappings: mappings, logger: common.LoggerOrDefault(logger)}
}

// Method implements Strategy.
func (t *TabularColumns) Method() model.Method { return model.MethodTabularColumns }

// Supports implements Strategy.
func (t *TabularColumns) Supports(ft model.FileType) bool { return ft.IsTabular() }

// TabularConfidence combines the row parse rate with the mapping confidence.
func TabularConfidence(rowParseRate, mappingConfidence float64, hasDescription bool) float64 {
	c := 0.5*rowParseRate + 0.4*mappingConfidence
	if hasDescription {
		c += 0.05
	}
	return min(0.95, c)
}

// Attempt implements Strategy.
func (t *TabularColumns) Attempt(ctx context.Context, in *Input) (model.ParseResult, error) {
	if !in.Content.HasTable() {
		return model.FailedResult(t.Method(), "document has no table"), nil
	}
	table := in.Content.Table

	mapping := t.mapping(ctx, in, table)
	if !mapping.HasRequired() {
		r := model.FailedResult(t.Method(), ReasonRequiredColumns)
		r.ColumnMapping = mapping.ToModel(in.Document.OwnerID, in.Document.FileType)
		return r, nil
	}

	year := statementYear(in.Content.Text)
	signed := t.signedAmounts(table, mapping)

	var (
		txs         []model.ParsedTransaction
		failed      int
		prevBalance *float64
	)
	for i := range table.Rows {
		if err := ctx.Err(); err != nil {
			return model.ParseResult{}, err
		}
		tx, ok := t.row(table, i, mapping, in, year, signed, prevBalance)
		if !ok {
			failed++
			continue
		}
		if tx.Balance != nil {
			prevBalance = tx.Balance
		}
		txs = append(txs, tx)
	}

	total := len(table.Rows)
	if len(txs) == 0 {
		r := model.FailedResult(t.Method(), fmt.Sprintf("none of %d rows could be parsed", total))
		r.ColumnMapping = mapping.ToModel(in.Document.OwnerID, in.Document.FileType)
		return r, nil
	}
	rate := float64(len(txs)) / float64(total)
	confidence := TabularConfidence(rate, mapping.Confidence(), mapping.Has(model.FieldDescription))

	var warnings []string
	if failed > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d rows could not be parsed", failed, total))
	}
	if mapping.Learned {
		warnings = append(warnings, "column mapping reused from a previous document with the same headers")
	}

	t.logger.Debug("Tabular extraction",
		"rows", total,
		"parsed", len(txs),
		"mapping_confidence", mapping.Confidence(),
		"learned", mapping.Learned,
		"confidence", confidence)

	return model.ParseResult{
		Method:        t.Method(),
		Success:       true,
		Confidence:    confidence,
		Institution:   in.Detection.Name,
		Transactions:  withConfidence(txs, confidence),
		ColumnMapping: mapping.ToModel(in.Document.OwnerID, in.Document.FileType),
		Warnings:      warnings,
	}, nil
}

// mapping prefers a learned mapping for the same header signature.
func (t *TabularColumns) mapping(ctx context.Context, in *Input, table *tabular.Table) tabular.Mapping {
	if t.mappings != nil {
		signature := model.HeaderSignature(table.Headers)
		learned, err := t.mappings.FindColumnMappings(ctx, in.Document.OwnerID, in.Document.FileType, signature)
		if err != nil {
			t.logger.Warn("Failed to load learned column mappings", "signature", signature, "error", err)
		} else if m, ok := tabular.ApplyLearned(table, learned); ok {
			return m
		}
	}
	return tabular.DetectColumns(table)
}

// signedAmounts reports whether the unified amount column carries negative
// values, in which case unsigned values are credits.
func (t *TabularColumns) signedAmounts(table *tabular.Table, m tabular.Mapping) bool {
	col, ok := m.Columns[model.FieldAmount]
	if !ok {
		return false
	}
	for i := range table.Rows {
		if a, err := fields.ParseAmount(table.Cell(i, col.Index)); err == nil && a.Negative() {
			return true
		}
	}
	return false
}

func (t *TabularColumns) row(table *tabular.Table, i int, m tabular.Mapping, in *Input, year int, signed bool, prevBalance *float64) (model.ParsedTransaction, bool) {
	cell := func(f model.Field) string {
		c, ok := m.Columns[f]
		if !ok {
			return ""
		}
		return table.Cell(i, c.Index)
	}

	date, err := parseStatementDate(cell(model.FieldDate), in.DateOrder(), year)
	if err != nil {
		return model.ParsedTransaction{}, false
	}

	description := cell(model.FieldDescription)
	if description == "" {
		description = cell(model.FieldMerchant)
	}

	var balance *float64
	if b, err := fields.ParseAmount(cell(model.FieldBalance)); err == nil {
		v := b.Float()
		balance = &v
	}

	var (
		amount fields.Amount
		dir    model.Direction
		found  bool
	)
	if raw := cell(model.FieldAmount); raw != "" {
		if a, err := fields.ParseAmount(raw); err == nil {
			amount, found = a, true
			switch {
			case a.Negative():
				dir = model.DirectionDebit
			case signed:
				dir = model.DirectionCredit
			default:
				dir = inferDirection(a, balance, prevBalance, description)
			}
		}
	}
	if !found {
		if a, err := fields.ParseAmount(cell(model.FieldDebit)); err == nil && !a.Value.IsZero() {
			amount, dir, found = a, model.DirectionDebit, true
		} else if a, err := fields.ParseAmount(cell(model.FieldCredit)); err == nil && !a.Value.IsZero() {
			amount, dir, found = a, model.DirectionCredit, true
		}
	}
	if !found || amount.Value.IsZero() {
		return model.ParsedTransaction{}, false
	}

	tx := newTransaction(date, amount.Magnitude(), dir, description, model.Provenance{
		Method:  t.Method(),
		Ordinal: in.Ordinal,
		Line:    i + 1,
	}, 0)
	tx.Balance = balance
	tx.Reference = cell(model.FieldReference)
	if c := cell(model.FieldCategory); c != "" {
		tx.Category = c
	}
	if merchant := cell(model.FieldMerchant); merchant != "" {
		tx.Merchant = merchant
	}
	return tx, true
}
