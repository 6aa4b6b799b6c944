package model

import (
	"sort"
	"strings"
	"time"
)

// Field is the semantic meaning of a source column or regex group.
type Field string

// Semantic field constants.
const (
	FieldDate          Field = "date"
	FieldAmount        Field = "amount"
	FieldDebit         Field = "debit"
	FieldCredit        Field = "credit"
	FieldDescription   Field = "description"
	FieldBalance       Field = "balance"
	FieldCategory      Field = "category"
	FieldMerchant      Field = "merchant"
	FieldReference     Field = "reference"
	FieldAccountNumber Field = "account_number"
)

// AllFields lists every semantic field.
var AllFields = []Field{
	FieldDate, FieldAmount, FieldDebit, FieldCredit, FieldDescription,
	FieldBalance, FieldCategory, FieldMerchant, FieldReference, FieldAccountNumber,
}

// IsValid reports whether f is a known field.
func (f Field) IsValid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// ColumnMapping maps one source column to a semantic field.
type ColumnMapping struct {
	CreatedAt       time.Time `json:"created_at,omitempty"`
	OwnerID         string    `json:"owner_id,omitempty"`
	FileType        FileType  `json:"file_type,omitempty"`
	SourceColumn    string    `json:"source_column"`
	Field           Field     `json:"field"`
	HeaderSignature string    `json:"header_signature,omitempty"`
	ID              int64     `json:"id,omitempty"`
	AttemptID       int64     `json:"attempt_id,omitempty"`
	SourceIndex     int       `json:"source_index"`
	Confidence      float64   `json:"confidence"`
	UserConfirmed   bool      `json:"user_confirmed"`
}

// HeaderSignature normalizes a header row into a stable lookup key.
func HeaderSignature(headers []string) string {
	parts := make([]string, 0, len(headers))
	for _, h := range headers {
		parts = append(parts, strings.Join(strings.Fields(strings.ToLower(h)), " "))
	}
	return strings.Join(parts, "|")
}

// RankMappings orders learned mappings so user-confirmed ones come first,
// then by confidence, then newest first.
func RankMappings(mappings []ColumnMapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		a, b := mappings[i], mappings[j]
		if a.UserConfirmed != b.UserConfirmed {
			return a.UserConfirmed
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
