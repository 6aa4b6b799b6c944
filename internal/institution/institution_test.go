package institution

import (
	"testing"

	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := Default()
	require.NotEmpty(t, c.Institutions)

	inst, ok := c.Lookup("hsbc")
	require.True(t, ok)
	assert.Equal(t, "HSBC", inst.Name)
	assert.NotEmpty(t, inst.Patterns)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     string
		strength Strength
	}{
		{
			name:     "keyword and domain",
			text:     "HSBC UK Bank plc\nVisit hsbc.co.uk for help",
			want:     "HSBC",
			strength: StrengthStrong,
		},
		{
			name:     "code alone is strong",
			text:     "IFSC: HDFC0001234\nStatement of account",
			want:     "HDFC Bank",
			strength: StrengthStrong,
		},
		{
			name:     "single keyword is weak",
			text:     "Your Barclays statement",
			want:     "Barclays",
			strength: StrengthWeak,
		},
		{
			name:     "purchase does not mean chase",
			text:     "01/15/2024 POS PURCHASE STARBUCKS 4.50",
			strength: StrengthNone,
		},
		{
			name:     "nothing",
			text:     "01/15/2024 STARBUCKS 4.50",
			strength: StrengthNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Default().Detect(tt.text)
			assert.Equal(t, tt.strength, d.Strength)
			assert.Equal(t, tt.want, d.Name)
			assert.Equal(t, tt.want != "", d.Found())
		})
	}
}

func TestBuiltinPatterns(t *testing.T) {
	patterns := Default().BuiltinPatterns()
	require.NotEmpty(t, patterns)

	for _, p := range patterns {
		assert.True(t, p.IsBuiltin)
		assert.True(t, p.IsActive)
		assert.NotEmpty(t, p.Institution, "built-in patterns are institution scoped")
		assert.Contains(t, []model.FileType{model.FileTypePDF, model.FileTypeText}, p.FileType)
	}
}

func TestLoad_InvalidCode(t *testing.T) {
	_, err := Load([]byte("institutions:\n  - name: Broken\n    codes: ['(']\n"))
	assert.Error(t, err)
}
