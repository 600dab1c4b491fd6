package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customersCSV = "Name,Phone,Email\n" +
	"Alice,012-345 6789,alice@example.com\n" +
	"Bob,013-222 3333,bob@example.com\n"

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, "customers.csv", customersCSV)

	out, err := run(t, "validate", "--target", "customers", path)
	require.NoError(t, err)

	var got struct {
		Command string `json:"command"`
		Result  struct {
			IsValid   bool `json:"isValid"`
			TotalRows int  `json:"totalRows"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "validate", got.Command)
	assert.True(t, got.Result.IsValid)
	assert.Equal(t, 2, got.Result.TotalRows)
}

func TestValidateCommand_InvalidRows(t *testing.T) {
	path := writeFile(t, "customers.csv", customersCSV+"Eve,12,\n")

	out, err := run(t, "validate", "-t", "customers", path)
	require.ErrorIs(t, err, errInvalidFile)
	assert.Contains(t, out, `"isValid": false`)
}

func TestValidateCommand_FormatOverride(t *testing.T) {
	path := writeFile(t, "customers.txt", strings.ReplaceAll(customersCSV, ",", "\t"))

	_, err := run(t, "validate", "-t", "customers", path)
	require.Error(t, err)

	_, err = run(t, "validate", "-t", "customers", "--format", "tsv", path)
	assert.NoError(t, err)
}

func TestExecuteCommand_DryRun(t *testing.T) {
	path := writeFile(t, "customers.csv", customersCSV+"Carol,014-555 6666,\n")

	out, err := run(t, "execute", "-t", "customers", "--dry-run", "--batch-size", "1", path)
	require.NoError(t, err)

	var got struct {
		DryRun bool `json:"dryRun"`
		Result struct {
			SuccessfulInserts int `json:"successfulInserts"`
			DuplicatesSkipped int `json:"duplicatesSkipped"`
			Batches           int `json:"batches"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.True(t, got.DryRun)
	assert.Equal(t, 3, got.Result.SuccessfulInserts)
	assert.Zero(t, got.Result.DuplicatesSkipped)
	assert.Equal(t, 3, got.Result.Batches)
}

func TestExecuteCommand_NeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	path := writeFile(t, "customers.csv", customersCSV)

	_, err := run(t, "execute", "-t", "customers", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dry-run")
}

func TestTemplateCommand(t *testing.T) {
	out, err := run(t, "template", "-t", "orders", "--format", "tsv")
	require.NoError(t, err)
	assert.Contains(t, out, "order_date\t")

	path := filepath.Join(t.TempDir(), "shipments.xlsx")
	_, err = run(t, "template", "-t", "shipments", "-f", "xlsx", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	_, err = run(t, "template", "-t", "invoices")
	assert.Error(t, err)
}
