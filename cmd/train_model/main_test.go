package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricelab/apps"
	"pricelab/db"
)

// writeWorkspace lays out a config pointing every path into a temp dir.
func writeWorkspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pricelab.db")
	cfg := fmt.Sprintf("database:\n  path: %s\nmodels:\n  dir: %s\ndataset:\n  dir: %s\nlog:\n  level: error\n",
		dbPath, filepath.Join(dir, "models"), filepath.Join(dir, "dataset"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dataset"), 0o755))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return dir, path
}

func stockRows(n int) string {
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Volume\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 200 + float64(i)
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%d\n", start.AddDate(0, 0, i).Format("2006-01-02"), c-1, c+2, c-2, c, 5000+(i*37)%11)
	}
	return b.String()
}

func TestRunTrainsStock(t *testing.T) {
	dir, configPath := writeWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset", "tata_stock.csv"), []byte(stockRows(25)), 0o600))

	var out bytes.Buffer
	err := run(context.Background(), trainFlags{app: "stock", configPath: configPath}, &out)
	require.NoError(t, err, out.String())

	assert.Contains(t, out.String(), "stock: linear, chronological split, 24 rows")
	assert.Contains(t, out.String(), "Model R2 Score:")
	assert.FileExists(t, apps.ModelPath(filepath.Join(dir, "models"), "stock"))
	assert.FileExists(t, apps.SchemaPath(filepath.Join(dir, "models"), "stock"))

	store, err := db.Open(filepath.Join(dir, "pricelab.db"))
	require.NoError(t, err)
	defer store.Close()
	logs, err := store.LoadTrainingLog("stock", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 24, logs[0].DataPoints)
	assert.Equal(t, 5, logs[0].FeatureCount)

	issues, err := store.QualityIssues("stock", 10)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.NotContains(t, out.String(), "Rejected rows")
}

func TestRunMissingDataset(t *testing.T) {
	_, configPath := writeWorkspace(t)

	var out bytes.Buffer
	err := run(context.Background(), trainFlags{app: "all", configPath: configPath}, &out)
	require.Error(t, err)
	for _, name := range apps.Names() {
		assert.Contains(t, out.String(), name+": dataset not found")
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	_, configPath := writeWorkspace(t)

	err := run(context.Background(), trainFlags{app: "boat", configPath: configPath}, &bytes.Buffer{})
	assert.ErrorIs(t, err, apps.ErrUnknownApp)

	err = run(context.Background(), trainFlags{app: "all", configPath: configPath, dataset: "x.csv"}, &bytes.Buffer{})
	assert.Error(t, err)
}
