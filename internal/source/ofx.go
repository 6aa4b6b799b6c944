package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/tabular"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// Column headers of the table built from OFX statements.
var ofxHeaders = []string{"Date", "Amount", "Description", "Reference", "Type", "Account"}

var (
	ofxSeverity = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	ofxOpenTag  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes formatting issues banks commonly ship in SGML OFX.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n\ufeff")
	content = ofxSeverity.ReplaceAllStringFunc(content, strings.ToUpper)
	return ofxOpenTag.ReplaceAllString(content, "$1>")
}

// loadOFX flattens bank and credit card statements into one table with
// signed amounts, so the tabular strategy reads OFX like any CSV export.
func loadOFX(ctx context.Context, raw []byte) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse OFX: %v", common.ErrContentUnavailable, err)
	}

	table := &tabular.Table{Headers: ofxHeaders}
	var warnings []string

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		if stmt.BankTranList == nil {
			warnings = append(warnings, fmt.Sprintf("bank statement %s has no transaction list", stmt.BankAcctFrom.AcctID))
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			table.Rows = append(table.Rows, ofxRow(tx, string(stmt.BankAcctFrom.AcctID)))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		if stmt.BankTranList == nil {
			warnings = append(warnings, fmt.Sprintf("card statement %s has no transaction list", stmt.CCAcctFrom.AcctID))
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			table.Rows = append(table.Rows, ofxRow(tx, string(stmt.CCAcctFrom.AcctID)))
		}
	}

	return &Content{Table: table, Text: renderTable(table), Warnings: warnings}, nil
}

func ofxRow(tx ofxgo.Transaction, account string) []string {
	amount, _ := tx.TrnAmt.Float64()

	ref := string(tx.FiTID)
	if tx.CheckNum != "" {
		ref = "CHECK " + string(tx.CheckNum)
	}

	return []string{
		tx.DtPosted.Time.Format("2006-01-02"),
		decimal.NewFromFloat(amount).StringFixed(2),
		ofxDescription(tx),
		ref,
		fmt.Sprintf("%v", tx.TrnType),
		account,
	}
}

// ofxDescription prefers PAYEE, then NAME, then MEMO when NAME is generic.
func ofxDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}
	name := string(tx.Name)
	if tx.Memo != "" && fields.IsGenericDescription(name) {
		name = string(tx.Memo)
	}
	return fields.CleanDescription(name)
}
