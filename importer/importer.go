// Package importer recreates an exported collection on a target Waterfall
// instance.
//
// An import runs PARSE, PREPARE, RESOLVE and CREATE in that order and ends
// with a report. PARSE and PREPARE failures, and fail-policy breaches during
// RESOLVE, reject the whole operation before the first record is created.
// Everything after that point is per record: a failed create is counted and
// reported while the remaining records are still attempted.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/schemabounce/waterfall-bridge/formats"
	"github.com/schemabounce/waterfall-bridge/helpers/telemetry"
	"github.com/schemabounce/waterfall-bridge/hierarchy"
	"github.com/schemabounce/waterfall-bridge/metrics"
	"github.com/schemabounce/waterfall-bridge/references"
	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// Service is the part of the target service an import talks to.
type Service interface {
	references.Lister
	CreateRecord(ctx context.Context, collectionURL string, record types.Record) (types.Record, error)
}

// serverOwnedFields are stripped from every record before it is posted.
var serverOwnedFields = []string{
	types.FieldID,
	types.FieldCreatedAt,
	types.FieldUpdatedAt,
	types.FieldOriginalID,
	types.FieldReferences,
	types.FieldChildren,
}

// Result is the outcome of an import that ran its create phase.
type Result struct {
	Import      *types.ImportReport     `json:"import_report"`
	Resolution  *types.ResolutionReport `json:"resolution_report,omitempty"`
	ParentField string                  `json:"parent_field,omitempty"`
}

// StatusCode is 201 when every record was created, 207 on partial success
// and 400 when every record failed.
func (r *Result) StatusCode() int {
	return r.Import.StatusCode()
}

// Importer drives import operations. It holds no per-run state and may be
// shared.
type Importer struct {
	service  Service
	codecs   *formats.Registry
	resolver *references.Resolver
	logger   hclog.Logger
	metrics  *metrics.Metrics
}

// New creates an importer. codecs defaults to formats.DefaultRegistry;
// logger and m may be nil.
func New(service Service, codecs *formats.Registry, logger hclog.Logger, m *metrics.Metrics) *Importer {
	if codecs == nil {
		codecs = formats.DefaultRegistry()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Importer{
		service:  service,
		codecs:   codecs,
		resolver: references.NewResolver(service, logger.Named("resolver")),
		logger:   logger,
		metrics:  m,
	}
}

// Import decodes payload with the codec named by opts.Format and runs the
// import.
func (im *Importer) Import(ctx context.Context, opts Options, payload []byte) (*Result, error) {
	start := time.Now()
	opts = opts.normalize()

	var result *Result
	err := func() error {
		if err := opts.validate(); err != nil {
			return &InputError{Err: err}
		}
		codec, err := im.codecs.Lookup(opts.Format)
		if err != nil {
			return &InputError{Err: err}
		}
		if err := formats.CheckFilename(codec, opts.Filename); err != nil {
			return &InputError{Err: err}
		}

		var records types.Collection
		if err := telemetry.TrackOperation(ctx, im.logger, im.metrics, "import.parse", func(context.Context) error {
			var err error
			records, err = codec.Decode(payload)
			return err
		}); err != nil {
			return &InputError{Err: err}
		}
		im.logger.Info("parsed import file", "format", codec.Name(), "records", len(records))

		result, err = im.run(ctx, opts, records)
		return err
	}()

	im.finish(result, err, time.Since(start))
	return result, err
}

// Run imports an already decoded collection. opts.Format is ignored.
func (im *Importer) Run(ctx context.Context, opts Options, records types.Collection) (*Result, error) {
	start := time.Now()
	opts = opts.normalize()

	var result *Result
	err := opts.validate("Format")
	if err != nil {
		err = &InputError{Err: err}
	} else {
		result, err = im.run(ctx, opts, records)
	}

	im.finish(result, err, time.Since(start))
	return result, err
}

func (im *Importer) finish(result *Result, err error, elapsed time.Duration) {
	if err != nil {
		im.logger.Error("import rejected", "error", err)
		im.metrics.Import(nil, elapsed)
		return
	}
	im.metrics.Import(result.Import, elapsed)
}

// plan is one record prepared for the create phase.
type plan struct {
	record types.Record
	refs   types.References
	// settled lists foreign keys fixed during resolution; the id mapping
	// must not touch them again.
	settled map[string]bool
}

func (im *Importer) run(ctx context.Context, opts Options, records types.Collection) (*Result, error) {
	base, resource := waterfall.SplitCollectionURL(opts.URL)
	logger := im.logger.With("url", waterfall.JoinURL(base, resource))

	var (
		plans       []*plan
		parentField string
	)
	if err := telemetry.TrackOperation(ctx, logger, im.metrics, "import.prepare", func(context.Context) error {
		var err error
		plans, parentField, err = prepare(logger, records)
		return err
	}); err != nil {
		return nil, err
	}

	result := &Result{ParentField: parentField}

	if opts.ResolveRefs {
		if err := telemetry.TrackOperation(ctx, logger, im.metrics, "import.resolve", func(ctx context.Context) error {
			var err error
			result.Resolution, err = im.resolve(ctx, logger, opts, base, plans)
			return err
		}); err != nil {
			return nil, err
		}
	}

	_ = telemetry.TrackOperation(ctx, logger, im.metrics, "import.create", func(ctx context.Context) error {
		result.Import = im.create(ctx, logger, opts.URL, resource, parentField, plans)
		return nil
	})

	logger.Info("import completed",
		"total", result.Import.Total,
		"success", result.Import.Success,
		"failed", result.Import.Failed)
	return result, nil
}

// prepare flattens nested input, orders records parent-first and extracts
// reference metadata. Records are copied; the input is not modified.
func prepare(logger hclog.Logger, records types.Collection) ([]*plan, string, error) {
	var parentField string
	if hierarchy.IsNested(records) {
		parentField = types.FieldParentID
		logger.Info("flattening nested input")
		records = hierarchy.Flatten(records, parentField)
	} else {
		parentField = hierarchy.DetectParentField(records)
	}

	if parentField != "" {
		sorted, err := hierarchy.TopologicalSort(records, parentField)
		if err != nil {
			return nil, "", &PrepareError{Err: err}
		}
		records = sorted
		logger.Debug("sorted records by parent", "parent_field", parentField)
	}

	if n := hierarchy.Unidentified(records); n > 0 {
		logger.Warn("records without an identity cannot be referenced by other records", "count", n)
	}

	plans := make([]*plan, 0, len(records))
	for i, record := range records {
		refs, _, err := types.ReferencesOf(record)
		if err != nil {
			return nil, "", &InputError{Err: fmt.Errorf("record %d: %w", i, err)}
		}
		plans = append(plans, &plan{
			record:  record.Clone(),
			refs:    refs,
			settled: make(map[string]bool),
		})
	}
	return plans, parentField, nil
}

// resolve looks up every described reference on the target and applies the
// policies. All references are resolved before a breach is reported so the
// report is complete.
func (im *Importer) resolve(ctx context.Context, logger hclog.Logger, opts Options, base string, plans []*plan) (*types.ResolutionReport, error) {
	report := types.NewResolutionReport()

	for _, p := range plans {
		for _, field := range p.refs.Fields() {
			desc := p.refs[field]
			res := im.resolver.Resolve(ctx, desc, base)
			im.metrics.Reference(res.Status)

			switch res.Status {
			case types.StatusResolved:
				report.Resolved++
			case types.StatusAmbiguous:
				report.Ambiguous++
			case types.StatusMissing:
				report.Missing++
			default:
				report.Errors++
			}
			if res.Status != types.StatusResolved {
				report.Details = append(report.Details, types.ResolutionDetail{
					RecordID:    p.record.Identity(),
					Field:       field,
					Status:      res.Status,
					LookupValue: desc.LookupValue,
					Candidates:  len(res.Candidates),
					Error:       res.Error,
				})
			}

			switch references.Decide(res, opts.OnAmbiguous, opts.OnMissing) {
			case references.ActionRewrite:
				p.record[field] = res.ResolvedID
				p.settled[field] = true
			case references.ActionNull:
				logger.Warn("unresolved reference set to null", "field", field, "status", res.Status, "lookup_value", desc.LookupValue)
				p.record[field] = nil
				p.settled[field] = true
			case references.ActionKeep:
				logger.Warn("reference resolution failed, keeping original identifier", "field", field, "error", res.Error)
			case references.ActionAbort:
				// Reported below once every reference has been looked at.
			}
		}
	}

	switch {
	case opts.OnAmbiguous == types.PolicyFail && report.Ambiguous > 0:
		return report, &AbortError{Reason: "import failed due to ambiguous references", Resolution: report}
	case opts.OnMissing == types.PolicyFail && report.Missing > 0:
		return report, &AbortError{Reason: "import failed due to missing references", Resolution: report}
	}

	if report.Ambiguous > 0 || report.Missing > 0 {
		logger.Warn("reference resolution issues", "ambiguous", report.Ambiguous, "missing", report.Missing)
	}
	return report, nil
}

// create posts every record in order and builds the report. It never fails.
func (im *Importer) create(ctx context.Context, logger hclog.Logger, collectionURL, resource, parentField string, plans []*plan) *types.ImportReport {
	report := types.NewImportReport(len(plans))

	for _, p := range plans {
		originalID := p.record.Identity()
		body := p.record.Without(serverOwnedFields...)

		if parentField != "" {
			if parent := p.record.Ref(parentField); parent != "" {
				if newID, ok := report.IDMapping[parent]; ok {
					body[parentField] = newID
				} else {
					logger.Warn("parent not created in this run, clearing reference", "record", originalID, "parent", parent)
					body[parentField] = nil
				}
			}
		}
		for _, field := range references.DetectForeignKeys(body) {
			if field == parentField || p.settled[field] {
				continue
			}
			if newID, ok := report.IDMapping[types.IDString(body[field])]; ok {
				body[field] = newID
			}
		}

		created, err := im.service.CreateRecord(ctx, collectionURL, body)
		if err == nil && types.IDString(created[types.FieldID]) == "" {
			err = errors.New("created record carries no id")
		}
		if err != nil {
			report.Failed++
			report.Records = append(report.Records, types.RecordOutcome{OriginalID: originalID})
			report.Errors = append(report.Errors, recordError(originalID, err))
			im.metrics.RecordFailed(resource)
			logger.Error("failed to import record", "record", originalID, "error", err)
			continue
		}

		newID := types.IDString(created[types.FieldID])
		report.Success++
		report.Records = append(report.Records, types.RecordOutcome{OriginalID: originalID, NewID: newID, Success: true})
		if originalID != "" {
			if _, seen := report.IDMapping[originalID]; !seen {
				report.IDMapping[originalID] = newID
			}
		}
		im.metrics.RecordCreated(resource)
		logger.Debug("imported record", "record", originalID, "new_id", newID)
	}

	return report
}

func recordError(originalID string, err error) types.RecordError {
	var httpErr *waterfall.HTTPError
	if errors.As(err, &httpErr) {
		return types.RecordError{OriginalID: originalID, StatusCode: httpErr.StatusCode, Error: httpErr.Body}
	}
	return types.RecordError{OriginalID: originalID, Error: err.Error()}
}
