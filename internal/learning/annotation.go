package learning

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/statement-flow/internal/classification"
	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
)

// annotatedTransaction is one reviewer-entered row. Amounts are signed
// unless direction says otherwise.
type annotatedTransaction struct {
	Date        string `yaml:"date"`
	Amount      string `yaml:"amount"`
	Description string `yaml:"description"`
	Direction   string `yaml:"direction"`
	Merchant    string `yaml:"merchant"`
	Category    string `yaml:"category"`
	Reference   string `yaml:"reference"`
}

type annotationFile struct {
	Transactions []annotatedTransaction `yaml:"transactions"`
}

// ParseAnnotation reads a reviewer's expected transactions. The input is
// YAML or JSON, either a bare list or an object with a transactions key.
func ParseAnnotation(data []byte) ([]model.ParsedTransaction, error) {
	var rows []annotatedTransaction
	if err := yaml.Unmarshal(data, &rows); err != nil {
		var file annotationFile
		if err2 := yaml.Unmarshal(data, &file); err2 != nil {
			return nil, fmt.Errorf("failed to parse annotation: %w", err2)
		}
		rows = file.Transactions
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("annotation contains no transactions")
	}

	out := make([]model.ParsedTransaction, 0, len(rows))
	for i, row := range rows {
		date, err := fields.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: invalid date %q: %w", i+1, row.Date, err)
		}
		amount, err := fields.ParseAmount(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: invalid amount %q: %w", i+1, row.Amount, err)
		}

		dir := model.DirectionCredit
		switch strings.ToLower(strings.TrimSpace(row.Direction)) {
		case string(model.DirectionDebit):
			dir = model.DirectionDebit
		case string(model.DirectionCredit):
		case "":
			if amount.Negative() {
				dir = model.DirectionDebit
			}
		default:
			return nil, fmt.Errorf("transaction %d: unknown direction %q", i+1, row.Direction)
		}

		description := fields.CleanDescription(row.Description)
		if description == "" {
			return nil, fmt.Errorf("transaction %d: description is required", i+1)
		}
		merchant := row.Merchant
		if merchant == "" {
			merchant = fields.MerchantFromDescription(description)
		}

		out = append(out, model.ParsedTransaction{
			Date:        date,
			Amount:      amount.Magnitude(),
			Direction:   dir,
			Description: description,
			Merchant:    merchant,
			Category:    row.Category,
			Reference:   row.Reference,
			Type:        classification.ClassifyType(description, dir),
			Confidence:  1,
			Provenance:  model.Provenance{Method: model.MethodManualCorrection, Line: i + 1},
		})
	}
	return out, nil
}
