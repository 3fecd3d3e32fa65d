package references

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/schemabounce/waterfall-bridge/types"
)

// RecordGetter fetches a single record of a resource type from the service
// rooted at baseURL.
type RecordGetter interface {
	GetRecord(ctx context.Context, baseURL, resource, id string) (types.Record, error)
}

// EnrichOptions parameterizes one enrichment pass.
type EnrichOptions struct {
	// Lookup overrides the table's lookup field per resource type.
	Lookup LookupConfig
	// ParentField is excluded from enrichment; hierarchy is carried
	// structurally.
	ParentField string
	// BaseURL enables fetching lookup values from the source service. When
	// empty, descriptors carry a nil lookup value.
	BaseURL string
}

// Enricher attaches _references metadata to records at export time.
type Enricher struct {
	table  *LookupTable
	getter RecordGetter
	logger hclog.Logger
}

// NewEnricher creates an Enricher. getter may be nil, in which case lookup
// values are never fetched.
func NewEnricher(table *LookupTable, getter RecordGetter, logger hclog.Logger) *Enricher {
	if table == nil {
		table = DefaultLookupTable()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Enricher{table: table, getter: getter, logger: logger}
}

// BuildMetadata builds a descriptor for every listed field whose value is
// not empty. A failed lookup-value fetch leaves the value nil and never fails
// the record.
func (e *Enricher) BuildMetadata(ctx context.Context, record types.Record, fkFields []string, opts EnrichOptions) types.References {
	refs := make(types.References, len(fkFields))
	for _, field := range fkFields {
		value := record[field]
		if types.IsEmpty(value) {
			continue
		}
		originalID := types.IDString(value)

		resourceType := e.table.ResourceType(field)
		desc := types.ReferenceDescriptor{
			ResourceType: resourceType,
			OriginalID:   originalID,
			LookupField:  e.table.LookupField(resourceType, opts.Lookup),
		}
		desc.LookupValue = e.fetchLookupValue(ctx, opts.BaseURL, desc)
		refs[field] = desc
	}
	return refs
}

func (e *Enricher) fetchLookupValue(ctx context.Context, baseURL string, desc types.ReferenceDescriptor) any {
	if baseURL == "" || e.getter == nil || desc.OriginalID == "" {
		return nil
	}

	referenced, err := e.getter.GetRecord(ctx, baseURL, desc.ResourceType, desc.OriginalID)
	if err != nil {
		e.logger.Warn("lookup value fetch failed",
			"resource_type", desc.ResourceType,
			"original_id", desc.OriginalID,
			"error", err)
		return nil
	}

	value, ok := referenced[desc.LookupField]
	if !ok {
		e.logger.Debug("referenced record has no lookup field",
			"resource_type", desc.ResourceType,
			"lookup_field", desc.LookupField)
		return nil
	}
	return value
}

// EnrichRecord returns record with _references attached for each foreign
// key other than the parent field. A record without qualifying fields is
// returned as-is; otherwise a shallow copy is returned.
func (e *Enricher) EnrichRecord(ctx context.Context, record types.Record, opts EnrichOptions) types.Record {
	var fkFields []string
	for _, field := range DetectForeignKeys(record) {
		if field == opts.ParentField {
			continue
		}
		fkFields = append(fkFields, field)
	}
	if len(fkFields) == 0 {
		return record
	}

	enriched := record.Clone()
	enriched[types.FieldReferences] = e.BuildMetadata(ctx, record, fkFields, opts)
	return enriched
}

// EnrichCollection enriches every record in order.
func (e *Enricher) EnrichCollection(ctx context.Context, records types.Collection, opts EnrichOptions) (types.Collection, int) {
	out := make(types.Collection, len(records))
	enriched := 0
	for i, record := range records {
		out[i] = e.EnrichRecord(ctx, record, opts)
		if out[i].Has(types.FieldReferences) {
			enriched++
		}
	}
	return out, enriched
}
