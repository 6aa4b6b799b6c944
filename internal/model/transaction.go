package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Direction says whether money left or entered the account.
type Direction string

// Direction constants.
const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// TransactionType is the coarse classification of a transaction.
type TransactionType string

// Transaction type constants.
const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

// Provenance records which attempt and input line produced a transaction.
type Provenance struct {
	Method  Method `json:"method"`
	Raw     string `json:"raw,omitempty"`
	Ordinal int    `json:"ordinal,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ParsedTransaction is a candidate transaction produced by a strategy. It only
// lives inside a ParseResult until the caller persists it.
type ParsedTransaction struct {
	Date        time.Time       `json:"date"`
	Balance     *float64        `json:"balance,omitempty"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant,omitempty"`
	Category    string          `json:"category,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Direction   Direction       `json:"direction"`
	Type        TransactionType `json:"type"`
	Provenance  Provenance      `json:"provenance"`
	Amount      float64         `json:"amount"` // Magnitude, always >= 0
	Confidence  float64         `json:"confidence"`
}

// SignedAmount returns the amount negated for debits.
func (t ParsedTransaction) SignedAmount() float64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// DuplicateKey is the composite key used to spot duplicate candidates:
// date, amount and the first 20 characters of the description.
func (t ParsedTransaction) DuplicateKey() string {
	desc := strings.ToLower(strings.TrimSpace(t.Description))
	if r := []rune(desc); len(r) > 20 {
		desc = string(r[:20])
	}
	return fmt.Sprintf("%s|%.2f|%s", t.Date.Format("2006-01-02"), t.Amount, desc)
}

// Hash creates a stable fingerprint for downstream deduplication.
func (t ParsedTransaction) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.SignedAmount(),
		strings.ToLower(t.Description),
		t.Reference)))
	return fmt.Sprintf("%x", sum)
}
