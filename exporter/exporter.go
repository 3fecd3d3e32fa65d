// Package exporter reads a collection from a Waterfall instance and encodes
// it as a portable export file.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"

	"github.com/schemabounce/waterfall-bridge/artifacts"
	"github.com/schemabounce/waterfall-bridge/formats"
	"github.com/schemabounce/waterfall-bridge/helpers/logging"
	"github.com/schemabounce/waterfall-bridge/helpers/telemetry"
	"github.com/schemabounce/waterfall-bridge/hierarchy"
	"github.com/schemabounce/waterfall-bridge/metrics"
	"github.com/schemabounce/waterfall-bridge/references"
	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

var optionsValidate *validator.Validate

func init() {
	optionsValidate = validator.New()
	_ = optionsValidate.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return waterfall.ValidateURL(fl.Field().String()) == nil
	})
}

// Options parameterizes one export.
type Options struct {
	URL    string `json:"url" validate:"required,httpurl"`
	Format string `json:"type" validate:"required,oneof=json csv mermaid"`

	// Tree nests records under their parents. JSON only.
	Tree bool `json:"tree"`

	// Enrich attaches _references metadata to foreign keys.
	Enrich bool `json:"enrich"`

	// LookupConfig is the raw lookup_config parameter, a JSON object of
	// resource type to lookup field(s).
	LookupConfig string `json:"lookup_config,omitempty"`

	DiagramType string `json:"diagram_type,omitempty" validate:"omitempty,oneof=flowchart graph mindmap"`

	// Destination, when set, is the artifact key the file is stored under.
	Destination string `json:"destination,omitempty"`
}

// DefaultOptions exports flat JSON with enrichment.
func DefaultOptions() Options {
	return Options{Format: "json", Enrich: true}
}

// Result is an encoded export.
type Result struct {
	Data        []byte              `json:"-"`
	ContentType string              `json:"content_type"`
	Filename    string              `json:"filename"`
	Count       int                 `json:"count"`
	Enriched    int                 `json:"enriched"`
	ParentField string              `json:"parent_field,omitempty"`
	Artifact    *artifacts.Artifact `json:"artifact,omitempty"`
}

// Source is the part of the source service an export reads from.
type Source interface {
	GetCollection(ctx context.Context, collectionURL string) (types.Collection, error)
	references.RecordGetter
}

// Config wires an Exporter.
type Config struct {
	Source Source
	// Table is the default lookup table (default: references.DefaultLookupTable).
	Table  *references.LookupTable
	Codecs *formats.Registry
	// Store receives exports that name a Destination. Optional.
	Store   artifacts.Store
	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Exporter runs exports. It holds no per-run state.
type Exporter struct {
	source   Source
	codecs   *formats.Registry
	enricher *references.Enricher
	store    artifacts.Store
	logger   hclog.Logger
	metrics  *metrics.Metrics
}

// New creates an Exporter from cfg.
func New(cfg Config) *Exporter {
	if cfg.Codecs == nil {
		cfg.Codecs = formats.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Exporter{
		source:   cfg.Source,
		codecs:   cfg.Codecs,
		enricher: references.NewEnricher(cfg.Table, cfg.Source, cfg.Logger.Named("enricher")),
		store:    cfg.Store,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Run fetches, prepares and encodes the collection at opts.URL.
func (ex *Exporter) Run(ctx context.Context, opts Options) (*Result, error) {
	opts.Format = strings.ToLower(strings.TrimSpace(opts.Format))
	opts.DiagramType = strings.ToLower(strings.TrimSpace(opts.DiagramType))

	result, err := ex.run(ctx, opts)
	ex.metrics.Export(opts.Format, err)
	if err != nil {
		ex.logger.Error("export failed", "url", logging.SanitizeEndpoint(opts.URL), "error", err)
	}
	return result, err
}

func (ex *Exporter) run(ctx context.Context, opts Options) (*Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, &InputError{Err: err}
	}
	lookup, err := references.ParseLookupConfig(opts.LookupConfig)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	codec, err := ex.codecs.Lookup(opts.Format)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	if opts.Destination != "" {
		if ex.store == nil {
			return nil, &InputError{Err: errors.New("artifact delivery is not configured")}
		}
		if err := artifacts.ValidateKey(opts.Destination); err != nil {
			return nil, &InputError{Err: err}
		}
	}

	base, resource := waterfall.SplitCollectionURL(opts.URL)
	logger := ex.logger.With("resource", resource, "format", codec.Name())

	var records types.Collection
	if err := telemetry.TrackOperation(ctx, logger, ex.metrics, "export.fetch", func(ctx context.Context) error {
		var err error
		records, err = ex.source.GetCollection(ctx, opts.URL)
		return err
	}); err != nil {
		return nil, &FetchError{URL: opts.URL, Err: err}
	}
	logger.Info("fetched collection", "records", len(records))

	records = stampOriginalIDs(records)
	parentField := hierarchy.DetectParentField(records)
	result := &Result{Count: len(records), ParentField: parentField}

	if opts.Enrich {
		_ = telemetry.TrackOperation(ctx, logger, ex.metrics, "export.enrich", func(ctx context.Context) error {
			records, result.Enriched = ex.enricher.EnrichCollection(ctx, records, references.EnrichOptions{
				Lookup:      lookup,
				ParentField: parentField,
				BaseURL:     base,
			})
			return nil
		})
		logger.Debug("enriched records", "with_references", result.Enriched)
	}

	if opts.Tree && parentField != "" {
		switch {
		case codec.Name() != "json":
			logger.Debug("tree mode applies to json exports only")
		default:
			if cycle := hierarchy.DetectCycle(records, parentField); cycle != nil {
				logger.Warn("parent cycle in source data, exporting flat", "cycle", strings.Join(cycle, " -> "))
			} else {
				records = hierarchy.BuildTree(records, parentField)
			}
		}
	}

	var data []byte
	if err := telemetry.TrackOperation(ctx, logger, ex.metrics, "export.encode", func(context.Context) error {
		var err error
		data, err = codec.Encode(records, formats.EncodeOptions{
			ResourceType: resource,
			ServiceURL:   waterfall.JoinURL(base, resource),
			ParentField:  parentField,
			DiagramType:  opts.DiagramType,
			Now:          time.Now,
		})
		return err
	}); err != nil {
		return nil, fmt.Errorf("encode %s export: %w", codec.Name(), err)
	}

	result.Data = data
	result.ContentType = codec.ContentType()
	result.Filename = formats.ExportFilename(codec, resource)

	if opts.Destination != "" {
		artifact, err := ex.store.Put(ctx, opts.Destination, data, result.ContentType)
		if err != nil {
			return nil, &DeliveryError{Key: opts.Destination, Err: err}
		}
		result.Artifact = artifact
		logger.Info("export delivered", "key", artifact.Key, "size", artifact.Size)
	}

	logger.Info("export completed", "records", result.Count, "bytes", len(data))
	return result, nil
}

func validateOptions(opts Options) error {
	err := optionsValidate.Struct(opts)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	switch fe.Field() {
	case "URL":
		if fe.Tag() == "required" {
			return errors.New("missing required parameter: url")
		}
		return fmt.Errorf("invalid url %q: must be an absolute http(s) URL", fe.Value())
	case "Format":
		return fmt.Errorf("unsupported export type %q: allowed values are json, csv, mermaid", fe.Value())
	case "DiagramType":
		return fmt.Errorf("invalid diagram_type %q: allowed values are %s", fe.Value(), strings.Join(formats.DiagramTypes, ", "))
	default:
		return err
	}
}

// stampOriginalIDs copies id into _original_id on records that do not carry
// one yet. Stamped records are copies.
func stampOriginalIDs(records types.Collection) types.Collection {
	out := make(types.Collection, len(records))
	for i, record := range records {
		if record.Has(types.FieldID) && !record.Has(types.FieldOriginalID) {
			record = record.Clone()
			record[types.FieldOriginalID] = record[types.FieldID]
		}
		out[i] = record
	}
	return out
}
