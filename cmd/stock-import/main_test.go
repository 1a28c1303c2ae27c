package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/measure"
	"github.com/xenking/recycle-market/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func writeExport(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseMovement(t *testing.T) {
	m, err := parseMovement([]byte(`{"receipt":"r-1","item_id":"paper","delta":"2.5","depot":"giza"}`))
	require.NoError(t, err)
	assert.Equal(t, "r-1", m.Receipt)
	assert.Equal(t, "paper", m.ItemID)
	assert.True(t, m.Delta.Equal(dec("2.5")))

	m, err = parseMovement([]byte(`{"receipt":"r-2","item_id":"can","delta":-4}`))
	require.NoError(t, err)
	assert.True(t, m.Delta.Equal(dec("-4")))

	for _, bad := range []string{
		`{"item_id":"can","delta":1}`,
		`{"receipt":"r","delta":1}`,
		`{"receipt":"r","item_id":"can","delta":0}`,
		`{"receipt":"r","item_id":"can","delta":true}`,
		`{"receipt":"r","item_id":"can","delta":"lots"}`,
		`not json`,
	} {
		_, err := parseMovement([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestSharedReceiptsCountOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := []string{
		writeExport(t, dir, "a.ndjson.gz",
			`{"receipt":"r-1","item_id":"paper","delta":"10"}`,
			`{"receipt":"r-2","item_id":"can","delta":"5"}`,
			``,
		),
		writeExport(t, dir, "b.ndjson.gz",
			`{"receipt":"r-2","item_id":"can","delta":"5"}`,
			`{"receipt":"r-3","item_id":"paper","delta":"-2.5"}`,
		),
		writeExport(t, dir, "c.ndjson.gz",
			`{"receipt":"r-2","item_id":"can","delta":"5"}`,
		),
	}

	depots, err := readDepots(ctx, files)
	require.NoError(t, err)
	require.Len(t, depots, 3)
	assert.Len(t, depots[0].movements, 2)

	shared := findShared(ctx, depots)
	assert.Equal(t, map[string]struct{}{"r-2": {}}, shared)

	deltas := aggregate(depots, shared)
	require.Len(t, deltas, 2)
	assert.True(t, deltas["paper"].Equal(dec("7.5")), "paper %s", deltas["paper"])
	assert.True(t, deltas["can"].Equal(dec("5")), "can %s", deltas["can"])
}

func TestReadDepotRejectsBadLine(t *testing.T) {
	dir := t.TempDir()
	path := writeExport(t, dir, "bad.ndjson.gz",
		`{"receipt":"r-1","item_id":"paper","delta":"1"}`,
		`{"receipt":"r-2"}`,
	)
	_, err := readDepots(context.Background(), []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.ndjson.gz:2")
}

func TestApplyDeltas(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutItem(catalog.Item{ID: "paper", Unit: measure.Weight, Price: dec("10"), Stock: dec("3")})
	store.PutItem(catalog.Item{ID: "can", Unit: measure.Count, Price: dec("3"), Stock: dec("1")})

	err := applyDeltas(ctx, store.Stock(), map[string]decimal.Decimal{
		"paper":   dec("7.5"),
		"can":     dec("-4"),
		"missing": dec("1"),
	})
	require.NoError(t, err)

	paper, err := store.Stock().Available(ctx, "paper")
	require.NoError(t, err)
	assert.True(t, paper.Equal(dec("10.5")))

	can, err := store.Stock().Available(ctx, "can")
	require.NoError(t, err)
	assert.True(t, can.Equal(dec("1")), "rejected adjustment must not change stock")
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "a.ndjson.gz", `{"receipt":"r-1","item_id":"paper","delta":"1"}`)
	require.NoError(t, run(context.Background(), filepath.Join(dir, "*.ndjson.gz"), "", true))
	require.NoError(t, run(context.Background(), filepath.Join(dir, "*.csv"), "", true))
}
