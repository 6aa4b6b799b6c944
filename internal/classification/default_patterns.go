package classification

import "github.com/Veraticus/statement-flow/internal/model"

// DefaultPatterns returns the default set of transaction classification patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Transfers that would otherwise look like income
		{
			Name:       "Credit Card Payment",
			Type:       model.TypeTransfer,
			Regex:      `\b(CC\s*PAYMENT|CREDIT\s*CARD\s*PAY(MENT)?|CARD\s*PAYMENT|PMT\s*TO)\b`,
			Priority:   110,
			Confidence: 0.80,
		},
		{
			Name:       "Wire Transfer",
			Type:       model.TypeTransfer,
			Regex:      `\b(WIRE\s*IN|WIRE\s*OUT|WIRE\s*TRANSFER|WIRE\s*XFER|NEFT|RTGS|IMPS|SWIFT\s*TRF)\b`,
			Priority:   105,
			Confidence: 0.90,
		},

		// Income
		{
			Name:       "Direct Deposit",
			Type:       model.TypeIncome,
			Regex:      `\b(DIRECTDEP|DIRECT\s*DEP(OSIT)?|DIR\s*DEP|PAYROLL|SALARY|WAGES)\b`,
			Priority:   100,
			Confidence: 0.95,
		},
		{
			Name:       "Tax Refund",
			Type:       model.TypeIncome,
			Regex:      `\b(TAX\s*REF(UND)?|IRS\s*TREAS|HMRC\s*REFUND)\b`,
			Priority:   95,
			Confidence: 0.95,
		},
		{
			Name:       "Interest Income",
			Type:       model.TypeIncome,
			Regex:      `\b(INTEREST\s*(PAID|EARNED|CREDIT)|INT\s*EARNED|DIVIDEND)\b`,
			Priority:   95,
			Confidence: 0.90,
		},
		{
			Name:       "Refund",
			Type:       model.TypeIncome,
			Regex:      `\b(REFUND|REIMB(URSEMENT)?|CASH\s*BACK|CASHBACK)\b`,
			Priority:   90,
			Confidence: 0.85,
		},
		{
			Name:       "Benefits",
			Type:       model.TypeIncome,
			Regex:      `\b(SOC\s*SEC|SOCIAL\s*SECURITY|SSA\s*TREAS|PENSION|ANNUITY)\b`,
			Priority:   90,
			Confidence: 0.90,
		},
		{
			Name:       "Client Payment",
			Type:       model.TypeIncome,
			Regex:      `\b(PAYMENT\s*FROM|INVOICE|CUSTOMER\s*PAY)\b`,
			Priority:   85,
			Confidence: 0.80,
		},

		// Transfers
		{
			Name:       "Account Transfer",
			Type:       model.TypeTransfer,
			Regex:      `\b(TRANSFER|XFER|TFR|MOVE\s*MONEY|ACCOUNT\s*TO\s*ACCOUNT|STANDING\s*ORDER)\b`,
			Priority:   80,
			Confidence: 0.85,
		},
		{
			Name:       "Savings Transfer",
			Type:       model.TypeTransfer,
			Regex:      `\b(TO\s*SAVINGS|FROM\s*SAVINGS|SAVINGS\s*TRANSFER)\b`,
			Priority:   75,
			Confidence: 0.80,
		},
		{
			Name:       "Loan Payment",
			Type:       model.TypeTransfer,
			Regex:      `\b(LOAN\s*PMT|MORTGAGE\s*PMT|STUDENT\s*LOAN\s*PMT)\b`,
			Priority:   70,
			Confidence: 0.75,
		},

		// Expenses
		{
			Name:       "ATM Withdrawal",
			Type:       model.TypeExpense,
			Regex:      `\b(ATM|CASH\s*WITHDRAWAL|WITHDRAW(AL)?)\b`,
			Priority:   50,
			Confidence: 0.80,
		},
		{
			Name:       "Fee",
			Type:       model.TypeExpense,
			Regex:      `\b(FEE|SERVICE\s*CHG|PENALTY|OVERDRAFT)\b`,
			Priority:   45,
			Confidence: 0.75,
		},
		{
			Name:       "Bill Payment",
			Type:       model.TypeExpense,
			Regex:      `\b(BILL\s*PAY|AUTOPAY|SUBSCRIPTION|DIRECT\s*DEBIT)\b`,
			Priority:   45,
			Confidence: 0.70,
		},
		{
			Name:       "Purchase",
			Type:       model.TypeExpense,
			Regex:      `\b(PURCHASE|POS|CARD\s*PURCHASE)\b`,
			Priority:   40,
			Confidence: 0.70,
		},
	}
}
