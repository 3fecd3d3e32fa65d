// Package service assembles the export and import pipelines into one bridge
// shared by the HTTP surface, the plugin surface and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/hashicorp/go-hclog"

	"github.com/schemabounce/waterfall-bridge/artifacts"
	"github.com/schemabounce/waterfall-bridge/config"
	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/formats"
	"github.com/schemabounce/waterfall-bridge/importer"
	"github.com/schemabounce/waterfall-bridge/metrics"
	"github.com/schemabounce/waterfall-bridge/references"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// Client is the service client both pipelines talk through.
type Client interface {
	exporter.Source
	importer.Service
}

// Options wires a Bridge.
type Options struct {
	Client  Client
	Table   *references.LookupTable
	Codecs  *formats.Registry
	Store   artifacts.Store
	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Bridge runs exports and imports. It is safe for concurrent use.
type Bridge struct {
	exporter *exporter.Exporter
	importer *importer.Importer
	store    artifacts.Store
	logger   hclog.Logger
}

// New creates a Bridge from explicit components.
func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Codecs == nil {
		opts.Codecs = formats.DefaultRegistry()
	}
	return &Bridge{
		exporter: exporter.New(exporter.Config{
			Source:  opts.Client,
			Table:   opts.Table,
			Codecs:  opts.Codecs,
			Store:   opts.Store,
			Logger:  opts.Logger.Named("export"),
			Metrics: opts.Metrics,
		}),
		importer: importer.New(opts.Client, opts.Codecs, opts.Logger.Named("import"), opts.Metrics),
		store:    opts.Store,
		logger:   opts.Logger,
	}
}

// FromConfig builds the client, lookup table and artifact store described
// by cfg.
func FromConfig(ctx context.Context, cfg *config.Config, logger hclog.Logger, m *metrics.Metrics) (*Bridge, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	store, err := artifacts.Open(ctx, cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	if store != nil {
		logger.Info("artifact store ready", "backend", cfg.Artifacts.Type)
	}

	return New(Options{
		Client:  waterfall.NewClient(cfg.ClientConfig(logger.Named("waterfall"))),
		Table:   cfg.LookupTable(),
		Store:   store,
		Logger:  logger,
		Metrics: m,
	}), nil
}

// Export runs one export.
func (b *Bridge) Export(ctx context.Context, opts exporter.Options) (*exporter.Result, error) {
	return b.exporter.Run(ctx, opts)
}

// Import runs one import of an uploaded payload.
func (b *Bridge) Import(ctx context.Context, opts importer.Options, payload []byte) (*importer.Result, error) {
	return b.importer.Import(ctx, opts, payload)
}

// ImportArtifact runs one import whose payload is read from the artifact
// store under key. The key doubles as the file name when opts carries none.
func (b *Bridge) ImportArtifact(ctx context.Context, opts importer.Options, key string) (*importer.Result, error) {
	if b.store == nil {
		return nil, &importer.InputError{Err: errors.New("artifact source is not configured")}
	}
	if err := artifacts.ValidateKey(key); err != nil {
		return nil, &importer.InputError{Err: err}
	}

	artifact, err := b.store.Get(ctx, key)
	switch {
	case errors.Is(err, artifacts.ErrNotFound):
		return nil, &importer.InputError{Err: fmt.Errorf("artifact %q not found", key)}
	case err != nil:
		return nil, fmt.Errorf("read artifact %q: %w", key, err)
	}

	if opts.Filename == "" {
		opts.Filename = path.Base(key)
	}
	b.logger.Debug("importing from artifact", "key", key, "size", artifact.Size)
	return b.importer.Import(ctx, opts, artifact.Data)
}

// Store is the configured artifact store, or nil.
func (b *Bridge) Store() artifacts.Store {
	return b.store
}

// Close releases the artifact store.
func (b *Bridge) Close() error {
	if c, ok := b.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
