package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/crmimport/internal/config"
	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/core/targets"
)

func TestImportUUID(t *testing.T) {
	assert.False(t, importUUID(context.Background()).Valid)
	assert.False(t, importUUID(core.ContextWithImportID(context.Background(), "not-a-uuid")).Valid)

	id := uuid.New()
	got := importUUID(core.ContextWithImportID(context.Background(), id.String()))
	require.True(t, got.Valid)
	assert.Equal(t, [16]byte(id), got.Bytes)
}

func TestSchemaCoversCopyColumns(t *testing.T) {
	for _, def := range targets.Definitions() {
		table := "CREATE TABLE IF NOT EXISTS " + def.Info.Table + " ("
		start := strings.Index(schemaSQL, table)
		require.GreaterOrEqual(t, start, 0, "table %s missing from schema", def.Info.Table)
		body := schemaSQL[start:]
		body = body[:strings.Index(body, ");")]

		for _, col := range append(def.CopyColumns, bookkeepingColumns...) {
			assert.Contains(t, body, "\n    "+col+" ", "column %s.%s", def.Info.Table, col)
		}
	}
}

// newTestStore connects to TEST_DATABASE_URL or skips the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, config.DatabaseConfig{
		URL:             url,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool, targets.NewRegistry())
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE customers, orders, shipments, import_runs")
	require.NoError(t, err)
	return s
}

func TestStore_InsertAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := core.ContextWithImportID(context.Background(), uuid.NewString())

	recs := []core.Record{
		targets.Customer{Name: "Alice", Phone: "60111111111", State: "Selangor"},
		targets.Customer{Name: "Bob", Phone: "60122222222"},
	}
	outcomes, err := s.InsertBatch(ctx, core.TargetCustomers, recs)
	require.NoError(t, err)
	assert.Nil(t, outcomes)

	found, err := s.Exists(ctx, core.TargetCustomers, []core.Key{"phone:60111111111", "phone:60199999999"})
	require.NoError(t, err)
	assert.Equal(t, map[core.Key]bool{"phone:60111111111": true}, found)
}

func TestStore_BatchIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The second order violates NOT NULL on name, failing the whole COPY.
	recs := []core.Record{
		targets.Order{OrderRef: "A-1", Name: "Alice", Phone: "60111111111", Status: "pending", Quantity: 1},
		targets.Order{OrderRef: "A-2", Phone: "60122222222", Status: "pending", Quantity: 1},
	}
	_, err := s.InsertBatch(ctx, core.TargetOrders, recs)
	require.Error(t, err)

	found, err := s.Exists(ctx, core.TargetOrders, []core.Key{"ref:a-1"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestStore_Runs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := core.ImportRun{ID: uuid.NewString(), Target: core.TargetOrders, FileName: "a.csv", Format: core.FormatCSV,
		StartedAt: time.Now().Add(-time.Hour), Duration: 1500 * time.Millisecond, TotalProcessed: 3, SuccessfulInserts: 3}
	newer := core.ImportRun{ID: uuid.NewString(), Target: core.TargetOrders, FileName: "b.xlsx", Format: core.FormatXLSX,
		StartedAt: time.Now(), Cancelled: true, Error: "import cancelled"}
	require.NoError(t, s.RecordRun(ctx, older))
	require.NoError(t, s.RecordRun(ctx, newer))

	runs, err := s.ListRuns(ctx, core.TargetOrders, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.True(t, runs[0].Cancelled)
	assert.Equal(t, "import cancelled", runs[0].Error)
	assert.Equal(t, 1500*time.Millisecond, runs[1].Duration)

	err = s.RecordRun(ctx, core.ImportRun{ID: "bad"})
	assert.Error(t, err)
}

func TestStore_UnknownTarget(t *testing.T) {
	s := New(nil, targets.NewRegistry())
	_, err := s.Exists(context.Background(), core.Target("invoices"), []core.Key{"x"})
	assert.True(t, errors.Is(err, core.ErrUnknownTarget))
}
