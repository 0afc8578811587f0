package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/config"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/memstore"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/service"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Analytics: config.AnalyticsConfig{QueryTimeout: time.Second},
		Cache:     config.CacheConfig{Type: "memory", MaxEntries: 8, MetricsTTL: time.Minute},
		RunLog:    config.RunLogConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "runs.db")},
	}
}

func TestBuildInMemoryRecordsRuns(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Build(ctx, testConfig(t), logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	_, ok := a.Store.(*memstore.Store)
	assert.True(t, ok)
	require.NotNil(t, a.RunLog)

	_, err = a.Service.CreateParty(ctx, service.PartyInput{ID: "A", Name: "A", Phone: "555-0100"})
	require.NoError(t, err)
	_, err = a.Service.CreateParty(ctx, service.PartyInput{ID: "B", Name: "B", Phone: "(555) 0100"})
	require.NoError(t, err)

	run, err := a.Service.RunInference(ctx)
	require.NoError(t, err)

	runs, err := a.Service.InferenceRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
	assert.Equal(t, 2, runs[0].Created())

	m, err := a.Service.GraphMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.RelationshipCount)
}

func TestBuildWithoutOptionalBackends(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Cache.Type = "none"
	cfg.RunLog.Driver = "none"

	a, err := Build(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.Cache)
	assert.Nil(t, a.RunLog)

	_, err = a.Service.RunInference(ctx)
	require.NoError(t, err)
	runs, err := a.Service.InferenceRuns(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBuildRejectsUnknownCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Type = "memcached"

	_, err := Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
