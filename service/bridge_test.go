package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemabounce/waterfall-bridge/artifacts"
	"github.com/schemabounce/waterfall-bridge/config"
	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/importer"
	"github.com/schemabounce/waterfall-bridge/internal/waterfalltest"
	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

const (
	sourceProject = "5d1f0e2c-8a7b-4c6d-9e0f-a1b2c3d4e5f6"
	targetProject = "e6f5d4c3-b2a1-4f0e-9d8c-7b6a5f4e3d2c"
)

func newBridge(t *testing.T, store artifacts.Store) *Bridge {
	t.Helper()
	cfg := waterfall.DefaultClientConfig()
	cfg.Timeout = 2 * time.Second
	return New(Options{Client: waterfall.NewClient(cfg), Store: store})
}

func TestBridge_ExportThenImportThroughStore(t *testing.T) {
	source := waterfalltest.NewService(t, waterfalltest.Fixture{Collections: map[string]types.Collection{
		"tasks": {
			{"id": "p", "name": "Plan", "parent_id": nil, "project_id": sourceProject},
			{"id": "c", "name": "Build", "parent_id": "p", "project_id": sourceProject},
		},
		"projects": {{"id": sourceProject, "name": "Apollo"}},
	}})
	target := waterfalltest.NewService(t, waterfalltest.Fixture{Collections: map[string]types.Collection{
		"tasks":    {},
		"projects": {{"id": targetProject, "name": "Apollo"}},
	}})

	bridge := newBridge(t, artifacts.NewMemoryStore())
	ctx := context.Background()

	exportOpts := exporter.DefaultOptions()
	exportOpts.URL = source.CollectionURL("tasks")
	exportOpts.Tree = true
	exportOpts.Destination = "exports/tasks_export.json"
	exported, err := bridge.Export(ctx, exportOpts)
	require.NoError(t, err)
	require.NotNil(t, exported.Artifact)

	importOpts := importer.DefaultOptions()
	importOpts.URL = target.CollectionURL("tasks")
	result, err := bridge.ImportArtifact(ctx, importOpts, "exports/tasks_export.json")
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, result.StatusCode())
	assert.Equal(t, 2, result.Resolution.Resolved)

	creates := target.Creates("tasks")
	require.Len(t, creates, 2)
	assert.Equal(t, "Plan", creates[0]["name"])
	assert.Equal(t, targetProject, creates[0]["project_id"])
	assert.Equal(t, "Build", creates[1]["name"])
	assert.Equal(t, "tasks-1", creates[1]["parent_id"])
	assert.Equal(t, targetProject, creates[1]["project_id"])
}

func TestBridge_ImportArtifactErrors(t *testing.T) {
	opts := importer.DefaultOptions()
	opts.URL = "http://target.invalid/api/tasks"

	t.Run("no store", func(t *testing.T) {
		_, err := newBridge(t, nil).ImportArtifact(context.Background(), opts, "a.json")
		var inputErr *importer.InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Contains(t, err.Error(), "artifact source is not configured")
	})

	t.Run("not found", func(t *testing.T) {
		_, err := newBridge(t, artifacts.NewMemoryStore()).ImportArtifact(context.Background(), opts, "missing.json")
		var inputErr *importer.InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Contains(t, err.Error(), `artifact "missing.json" not found`)
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := newBridge(t, artifacts.NewMemoryStore()).ImportArtifact(context.Background(), opts, "/etc/passwd")
		var inputErr *importer.InputError
		require.True(t, errors.As(err, &inputErr))
	})

	t.Run("extension mismatch", func(t *testing.T) {
		store := artifacts.NewMemoryStore()
		_, err := store.Put(context.Background(), "tasks.csv", []byte("id\n1\n"), "text/csv")
		require.NoError(t, err)

		_, err = newBridge(t, store).ImportArtifact(context.Background(), opts, "tasks.csv")
		var inputErr *importer.InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Contains(t, err.Error(), "does not match declared format")
	})
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Artifacts.Type = "memory"

	bridge, err := FromConfig(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &artifacts.MemoryStore{}, bridge.Store())
	assert.NoError(t, bridge.Close())

	cfg.Artifacts.Type = "local"
	cfg.Artifacts.Local.Path = t.TempDir()
	bridge, err = FromConfig(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &artifacts.LocalStore{}, bridge.Store())

	cfg.Artifacts.Type = "s3"
	cfg.Artifacts.S3 = artifacts.S3Config{}
	_, err = FromConfig(context.Background(), cfg, nil, nil)
	require.Error(t, err, "s3 without a bucket")
}
