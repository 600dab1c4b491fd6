package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/crmimport/internal/config"
	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/core/targets"
	"github.com/JonMunkholm/crmimport/internal/store/memory"
)

func importConfig() config.ImportConfig {
	return config.ImportConfig{
		MaxFileSize:       1 << 20,
		MaxConcurrent:     2,
		MaxWaitTime:       time.Second,
		Timeout:           time.Minute,
		DefaultBatchSize:  25,
		MaxBatchSize:      500,
		PreviewLimit:      10,
		CommitConcurrency: 2,
		StoreTimeout:      5 * time.Second,
		DateOrder:         "dmy",
		CountryCode:       "60",
	}
}

func newService(t *testing.T, store *memory.Store, cfg config.ImportConfig) *core.Service {
	t.Helper()
	svc, err := core.NewService(targets.NewRegistry(), store, store, cfg)
	require.NoError(t, err)
	return svc
}

func TestNewService_RejectsDateOrder(t *testing.T) {
	cfg := importConfig()
	cfg.DateOrder = "YMD"

	_, err := core.NewService(targets.NewRegistry(), memory.New(), nil, cfg)
	assert.Error(t, err)
}

func TestService_Queries(t *testing.T) {
	svc := newService(t, memory.New(), importConfig())

	infos := svc.Targets()
	require.Len(t, infos, 3)
	assert.Equal(t, core.TargetCustomers, infos[0].Key)
	assert.Equal(t, core.TargetShipments, infos[2].Key)

	def, err := svc.Target(" Orders ")
	require.NoError(t, err)
	assert.Equal(t, core.TargetOrders, def.Info.Key)

	_, err = svc.Target("invoices")
	assert.ErrorIs(t, err, core.ErrUnknownTarget)

	assert.Equal(t, 25, svc.DefaultOptions().BatchSize)
	assert.True(t, svc.DefaultOptions().SkipDuplicates)
	assert.Equal(t, int64(1<<20), svc.MaxFileSize())

	data, err := svc.Template("customers", core.FormatTSV)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name\tphone")
}

func TestService_ValidateDoesNotRecordHistory(t *testing.T) {
	store := memory.New()
	svc := newService(t, store, importConfig())

	res, err := svc.Validate(context.Background(), "customers", csvFile(customerCSV(15, 2)))
	require.NoError(t, err)
	assert.Equal(t, 14, res.ValidRows)
	assert.Len(t, res.Preview, 10)

	runs, err := svc.History(context.Background(), "customers", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_ExecuteRecordsHistory(t *testing.T) {
	store := memory.New()
	svc := newService(t, store, importConfig())

	ctx := core.ContextWithIPAddress(context.Background(), "203.0.113.7")
	ctx = core.ContextWithUserAgent(ctx, "importctl/1.0")

	res, err := svc.Execute(ctx, "customers", csvFile(customerCSV(60, 9)), svc.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 59, res.SuccessfulInserts)
	assert.Equal(t, 3, res.Batches)

	_, err = svc.Execute(ctx, "customers", csvFile(customerCSV(5)), svc.DefaultOptions())
	require.NoError(t, err)

	runs, err := svc.History(context.Background(), "customers", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	latest, first := runs[0], runs[1]
	assert.Equal(t, 5, latest.DuplicatesSkipped)
	assert.Equal(t, 59, first.SuccessfulInserts)
	assert.Equal(t, 1, first.FailedInserts)
	assert.Equal(t, 60, first.TotalProcessed)
	assert.Equal(t, "upload.csv", first.FileName)
	assert.Equal(t, core.FormatCSV, first.Format)
	assert.Equal(t, "203.0.113.7", first.IPAddress)
	assert.Equal(t, "importctl/1.0", first.UserAgent)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, latest.ID)
	assert.Empty(t, first.Error)

	other, err := svc.History(context.Background(), "orders", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestService_ExecuteStampsImportID(t *testing.T) {
	store := memory.New()
	svc := newService(t, store, importConfig())

	var seen []string
	store.BeforeInsert(func(ctx context.Context, _ core.Target, _ []core.Record) error {
		seen = append(seen, core.GetImportIDFromContext(ctx))
		return nil
	})

	_, err := svc.Execute(context.Background(), "customers", csvFile(customerCSV(3)), svc.DefaultOptions())
	require.NoError(t, err)

	runs, err := svc.History(context.Background(), "customers", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{runs[0].ID}, seen)
}

func TestService_ExecuteRejectsOversizedBatch(t *testing.T) {
	store := memory.New()
	svc := newService(t, store, importConfig())

	_, err := svc.Execute(context.Background(), "customers", csvFile(customerCSV(3)), opts(501, true))
	assert.ErrorIs(t, err, core.ErrInvalidOptions)

	_, inserts := store.Calls()
	assert.Zero(t, inserts)
	assert.Zero(t, svc.LimiterStatus().Active)
}

func TestService_ExecuteRejectsWhenBusy(t *testing.T) {
	cfg := importConfig()
	cfg.MaxConcurrent = 1
	cfg.MaxWaitTime = 50 * time.Millisecond

	store := memory.New()
	svc := newService(t, store, cfg)

	entered := make(chan struct{})
	release := make(chan struct{})
	store.BeforeInsert(func(ctx context.Context, _ core.Target, _ []core.Record) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Execute(context.Background(), "customers", csvFile(customerCSV(1)), svc.DefaultOptions())
		done <- err
	}()
	<-entered

	assert.Equal(t, 1, svc.LimiterStatus().Active)
	_, err := svc.Execute(context.Background(), "customers", csvFile(customerCSV(2)), svc.DefaultOptions())
	assert.ErrorIs(t, err, core.ErrTooManyImports)

	close(release)
	require.NoError(t, <-done)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.WaitForImports(ctx))
	assert.Zero(t, svc.LimiterStatus().Active)
}
