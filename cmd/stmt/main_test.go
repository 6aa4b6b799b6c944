package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
)

func TestParseFieldSpecs(t *testing.T) {
	got, err := parseFieldSpecs([]string{"1=date", "3=Amount"})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Field{"1": model.FieldDate, "3": model.FieldAmount}, got)

	_, err = parseFieldSpecs([]string{"1"})
	require.Error(t, err)
	_, err = parseFieldSpecs([]string{"1=colour"})
	require.Error(t, err)

	got, err = parseFieldSpecs(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseMappingSpecs(t *testing.T) {
	got, err := parseMappingSpecs([]string{"2=description", "4=balance:Running Balance"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ColumnMapping{SourceIndex: 2, Field: model.FieldDescription, SourceColumn: "column 3"}, got[0])
	assert.Equal(t, model.ColumnMapping{SourceIndex: 4, Field: model.FieldBalance, SourceColumn: "Running Balance"}, got[1])

	for _, bad := range []string{"description", "x=date", "-1=date", "1=colour"} {
		_, err := parseMappingSpecs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(common.NewPreconditionError("d", common.ErrEmptyDocument)))
	assert.Equal(t, 2, exitCode(common.ErrInvalidConfig))
	assert.Equal(t, 1, exitCode(errors.New("disk full")))
}

func TestParseCommand_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	statement := filepath.Join(dir, "jan.csv")
	require.NoError(t, os.WriteFile(statement, []byte(
		"Date,Amount,Description\n2024-01-02,-4.50,STARBUCKS\n2024-01-03,2500.00,PAYROLL ACME\n2024-01-04,-60.00,GROCERY MART\n"), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"parse", statement, "--db", filepath.Join(dir, "stmt.db"), "--owner", "tester", "--json", "--log-level", "error"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var outputs []parseOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &outputs))
	require.Len(t, outputs, 1)
	assert.Empty(t, outputs[0].Error)
	assert.NotEmpty(t, outputs[0].DocumentID)
	require.NotNil(t, outputs[0].Result)
	assert.Equal(t, model.MethodTabularColumns, outputs[0].Result.Method)
	assert.Len(t, outputs[0].Result.Transactions, 3)
}
