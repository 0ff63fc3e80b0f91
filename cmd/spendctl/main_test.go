package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

const trainingCSV = `date,description,amount,merchant,category
2025-01-01,Grab ride home,25000,Grab,Transport
2025-01-02,Grab to office,18000,Grab,Transport
2025-01-03,Gojek ride,15000,Gojek,Transport
2025-01-04,Taxi airport,120000,Bluebird,Transport
2025-01-05,Grab airport,95000,Grab,Transport
2025-01-06,Gojek mall,22000,Gojek,Transport
2025-01-07,Coffee latte,45000,Starbucks,Food
2025-01-08,Lunch rice,20000,Warteg,Food
2025-01-09,Fried chicken,38000,KFC,Food
2025-01-10,Latte again,45000,Starbucks,Food
2025-01-11,Dinner noodles,30000,Bakmi,Food
2025-01-12,Coffee beans,90000,Starbucks,Food
2025-01-13,Grab ride to dinner,21000,Grab,
2025-01-14,Another latte,45000,Starbucks,
`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "spendwise.db"))
	t.Setenv("MODEL_STORE", "file")
	t.Setenv("MODEL_DIR", filepath.Join(dir, "model"))
	t.Setenv("MODEL_CACHE_TTL", "0s")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSpendctlWorkflow(t *testing.T) {
	dir := setupEnv(t)
	csvPath := filepath.Join(dir, "transactions.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(trainingCSV), 0o644))

	out, err := run(t, "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, `"has_model": false`)

	out, err = run(t, "retrain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot train yet")

	out, err = run(t, "import", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 14 of 14 rows (12 labeled)")
	assert.Contains(t, out, `Created category "Transport"`)

	out, err = run(t, "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "Transport")
	assert.Contains(t, out, "6")

	out, err = run(t, "retrain")
	require.NoError(t, err)
	assert.Contains(t, out, "Trained on 12 rows, 2 classes")

	out, err = run(t, "predict", "--description", "Grab ride", "--merchant", "Grab")
	require.NoError(t, err)
	var pred core.Prediction
	require.NoError(t, json.Unmarshal([]byte(out), &pred))
	require.NotNil(t, pred.CategoryName)
	assert.Equal(t, "Transport", *pred.CategoryName)

	out, err = run(t, "predict-unlabeled", "--limit", "10")
	require.NoError(t, err)
	assert.Equal(t, "Annotated 2 transactions\n", out)
}

func TestSpendctlSeedCategories(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "seed-categories")
	require.NoError(t, err)
	assert.Equal(t, "Seeded 6 categories\n", out)

	out, err = run(t, "seed-categories")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing seeded")
}

func importTrainingCSV(t *testing.T, dir string) {
	t.Helper()
	csvPath := filepath.Join(dir, "transactions.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(trainingCSV), 0o644))
	_, err := run(t, "import", csvPath)
	require.NoError(t, err)
}

// firstID returns the id column of the first data row of a table.
func firstID(t *testing.T, table string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(table), "\n")
	require.GreaterOrEqual(t, len(lines), 2, "table has no rows: %q", table)
	return strings.Fields(lines[1])[0]
}

func TestSpendctlSeedAfterImport(t *testing.T) {
	importTrainingCSV(t, setupEnv(t))

	out, err := run(t, "seed-categories")
	require.NoError(t, err)
	assert.Equal(t, "Seeded 4 categories\n", out)

	out, err = run(t, "categories")
	require.NoError(t, err)
	for _, name := range []string{"Bills", "Entertainment", "Groceries", "Other"} {
		assert.Contains(t, out, name)
	}

	preds, err := run(t, "predict", "--description", "PLN token")
	require.NoError(t, err)
	var pred core.Prediction
	require.NoError(t, json.Unmarshal([]byte(preds), &pred))
	assert.NotNil(t, pred.CategoryID, "Bills exists after seeding")
}

func TestSpendctlLabeling(t *testing.T) {
	importTrainingCSV(t, setupEnv(t))

	out, err := run(t, "unlabeled")
	require.NoError(t, err)
	assert.Contains(t, out, "Grab ride to dinner")
	assert.Contains(t, out, "Another latte")

	out, err = run(t, "unlabeled", "--q", "LATTE")
	require.NoError(t, err)
	assert.NotContains(t, out, "Grab ride to dinner")
	latte := firstID(t, out)

	out, err = run(t, "label", latte, "food")
	require.NoError(t, err)
	assert.Equal(t, "Labeled "+latte+" as Food\n", out)

	out, err = run(t, "unlabeled", "--q", "latte")
	require.NoError(t, err)
	assert.Equal(t, "No unlabeled transactions\n", out)

	out, err = run(t, "categories")
	require.NoError(t, err)
	assert.Regexp(t, `Food\s+7`, out)

	out, err = run(t, "label", latte, "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "as (none)")

	_, err = run(t, "label", latte, "Travel")
	assert.ErrorContains(t, err, `unknown category "Travel"`)
	_, err = run(t, "label", "missing-id", "Food")
	assert.ErrorContains(t, err, "not found")
}

func TestSpendctlTransactions(t *testing.T) {
	importTrainingCSV(t, setupEnv(t))

	out, err := run(t, "transactions", "list", "--category", "Transport", "--limit", "2", "--sort", "date")
	require.NoError(t, err)
	assert.Contains(t, out, "Page 1, 2 of 6 transactions, more with --page 2")
	assert.Contains(t, out, "Grab ride home")

	out, err = run(t, "transactions", "list", "--from", "2025-01-07", "--to", "2025-01-08")
	require.NoError(t, err)
	assert.Contains(t, out, "Page 1, 2 of 2 transactions\n")

	out, err = run(t, "transactions", "list", "--q", "grab")
	require.NoError(t, err)
	assert.Contains(t, out, "4 of 4 transactions")

	out, err = run(t, "transactions", "list", "--q", "Taxi airport")
	require.NoError(t, err)
	taxi := firstID(t, out)

	out, err = run(t, "transactions", "delete", taxi)
	require.NoError(t, err)
	assert.Equal(t, "Deleted transaction "+taxi+"\n", out)
	_, err = run(t, "transactions", "delete", taxi)
	assert.ErrorContains(t, err, "not found")
}

func TestSpendctlDeleteCategory(t *testing.T) {
	importTrainingCSV(t, setupEnv(t))

	_, err := run(t, "categories", "delete", "food")
	assert.ErrorContains(t, err, "--force")

	out, err := run(t, "categories", "delete", "food", "--force")
	require.NoError(t, err)
	assert.Equal(t, "Deleted category \"Food\" (6 transactions unlabeled)\n", out)

	out, err = run(t, "unlabeled", "--limit", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "Coffee beans")

	_, err = run(t, "categories", "delete", "food")
	assert.ErrorContains(t, err, "unknown category")
}

func TestSpendctlArgumentErrors(t *testing.T) {
	dir := setupEnv(t)
	csvPath := filepath.Join(dir, "t.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("date,description,amount\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "import needs a file", args: []string{"import"}, want: "accepts 1 arg"},
		{name: "missing file", args: []string{"import", filepath.Join(dir, "nope.csv")}, want: "open CSV"},
		{name: "publish without broker", args: []string{"import", "--publish", csvPath}, want: "AMQP_URL"},
		{name: "bad delimiter", args: []string{"import", "--delimiter", ";;", csvPath}, want: "single character"},
		{name: "predict needs description", args: []string{"predict"}, want: "description"},
		{name: "non-positive limit", args: []string{"predict-unlabeled", "--limit", "0"}, want: "--limit"},
		{name: "label needs a category or --clear", args: []string{"label", "some-id"}, want: "either a category or --clear"},
		{name: "label with both", args: []string{"label", "some-id", "Food", "--clear"}, want: "either a category or --clear"},
		{name: "bad date filter", args: []string{"transactions", "list", "--from", "07/01/2025"}, want: "--from must be YYYY-MM-DD"},
		{name: "page size too large", args: []string{"transactions", "list", "--limit", "500"}, want: "--limit"},
		{name: "unlabeled limit too large", args: []string{"unlabeled", "--limit", "201"}, want: "--limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestSpendctlInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("DATA_BACKEND", "sheets")

	_, err := run(t, "metrics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid data backend")
}
