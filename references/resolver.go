package references

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"github.com/schemabounce/waterfall-bridge/types"
)

// Lister fetches the full collection of a resource type from the service
// rooted at baseURL.
type Lister interface {
	ListCollection(ctx context.Context, baseURL, resource string) (types.Collection, error)
}

// Resolver re-identifies referenced records on a target service by their
// lookup field.
type Resolver struct {
	lister Lister
	logger hclog.Logger
}

// NewResolver creates a Resolver backed by lister.
func NewResolver(lister Lister, logger hclog.Logger) *Resolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Resolver{lister: lister, logger: logger}
}

// Resolve looks desc up on the target service rooted at baseURL. The whole
// collection of desc.ResourceType is fetched and filtered locally on exact
// equality of the lookup field, so the outcome does not depend on the
// service's query support.
//
// A descriptor lacking its resource type, lookup field or lookup value
// resolves to StatusError without any network call. Transport and service
// failures also yield StatusError, never StatusMissing.
func (r *Resolver) Resolve(ctx context.Context, desc types.ReferenceDescriptor, baseURL string) types.Resolution {
	if desc.ResourceType == "" || desc.LookupField == "" || types.IsEmpty(desc.LookupValue) {
		return types.Resolution{Status: types.StatusError, Error: "missing reference metadata fields"}
	}

	collection, err := r.lister.ListCollection(ctx, baseURL, desc.ResourceType)
	if err != nil {
		r.logger.Debug("reference lookup failed", "resource_type", desc.ResourceType, "error", err)
		return types.Resolution{Status: types.StatusError, Error: err.Error()}
	}

	var matches types.Collection
	for _, candidate := range collection {
		value, ok := candidate[desc.LookupField]
		if ok && sameValue(value, desc.LookupValue) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return types.Resolution{
			Status: types.StatusMissing,
			Error:  fmt.Sprintf("no %s found with %s=%v", desc.ResourceType, desc.LookupField, desc.LookupValue),
		}
	case 1:
		id := types.IDString(matches[0][types.FieldID])
		if id == "" {
			return types.Resolution{
				Status: types.StatusError,
				Error:  fmt.Sprintf("matching %s record has no id", desc.ResourceType),
			}
		}
		return types.Resolution{Status: types.StatusResolved, ResolvedID: id}
	default:
		return types.Resolution{
			Status:     types.StatusAmbiguous,
			Candidates: matches,
			Error:      fmt.Sprintf("multiple %s found with %s=%v", desc.ResourceType, desc.LookupField, desc.LookupValue),
		}
	}
}

// sameValue compares decoded JSON values exactly. Numbers compare by their
// canonical text so that a float64 and a json.Number holding the same value
// match.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if isNumber(a) && isNumber(b) {
		return types.IDString(a) == types.IDString(b)
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint64:
		return true
	default:
		_, ok := v.(interface{ Float64() (float64, error) })
		return ok
	}
}
