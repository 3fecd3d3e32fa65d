package references

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemabounce/waterfall-bridge/types"
)

type fakeLister struct {
	collections map[string]types.Collection
	err         error
	calls       int
}

func (f *fakeLister) ListCollection(_ context.Context, _ string, resource string) (types.Collection, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.collections[resource], nil
}

func TestResolve_Classification(t *testing.T) {
	lister := &fakeLister{collections: map[string]types.Collection{
		"projects": {
			{"id": "new-1", "name": "Apollo"},
			{"id": "new-2", "name": "Gemini"},
			{"id": "new-3", "name": "Gemini"},
		},
	}}
	resolver := NewResolver(lister, nil)
	ctx := context.Background()

	desc := func(value any) types.ReferenceDescriptor {
		return types.ReferenceDescriptor{ResourceType: "projects", LookupField: "name", LookupValue: value}
	}

	res := resolver.Resolve(ctx, desc("Apollo"), "http://target/api")
	assert.Equal(t, types.StatusResolved, res.Status)
	assert.Equal(t, "new-1", res.ResolvedID)
	assert.Empty(t, res.Candidates)

	res = resolver.Resolve(ctx, desc("Gemini"), "http://target/api")
	assert.Equal(t, types.StatusAmbiguous, res.Status)
	assert.Empty(t, res.ResolvedID)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "new-2", res.Candidates[0]["id"])
	assert.Equal(t, "new-3", res.Candidates[1]["id"])

	res = resolver.Resolve(ctx, desc("Mercury"), "http://target/api")
	assert.Equal(t, types.StatusMissing, res.Status)
	assert.Contains(t, res.Error, "Mercury")
}

func TestResolve_IncompleteDescriptorMakesNoCall(t *testing.T) {
	lister := &fakeLister{}
	resolver := NewResolver(lister, nil)

	for _, desc := range []types.ReferenceDescriptor{
		{LookupField: "name", LookupValue: "x"},
		{ResourceType: "projects", LookupValue: "x"},
		{ResourceType: "projects", LookupField: "name"},
		{ResourceType: "projects", LookupField: "name", LookupValue: ""},
	} {
		res := resolver.Resolve(context.Background(), desc, "http://target/api")
		assert.Equal(t, types.StatusError, res.Status)
	}
	assert.Zero(t, lister.calls)
}

func TestResolve_TransportFailureIsError(t *testing.T) {
	resolver := NewResolver(&fakeLister{err: errors.New("dial tcp: connection refused")}, nil)
	res := resolver.Resolve(context.Background(),
		types.ReferenceDescriptor{ResourceType: "projects", LookupField: "name", LookupValue: "Apollo"},
		"http://target/api")

	assert.Equal(t, types.StatusError, res.Status)
	assert.Contains(t, res.Error, "connection refused")
}

func TestResolve_NumericLookupValues(t *testing.T) {
	resolver := NewResolver(&fakeLister{collections: map[string]types.Collection{
		"tasks": {{"id": "t-new", "number": float64(12)}},
	}}, nil)

	res := resolver.Resolve(context.Background(),
		types.ReferenceDescriptor{ResourceType: "tasks", LookupField: "number", LookupValue: json.Number("12")},
		"http://target/api")
	assert.Equal(t, types.StatusResolved, res.Status)
	assert.Equal(t, "t-new", res.ResolvedID)
}

func TestDecide(t *testing.T) {
	resolved := types.Resolution{Status: types.StatusResolved}
	ambiguous := types.Resolution{Status: types.StatusAmbiguous}
	missing := types.Resolution{Status: types.StatusMissing}
	failed := types.Resolution{Status: types.StatusError}

	assert.Equal(t, ActionRewrite, Decide(resolved, types.PolicyFail, types.PolicyFail))
	assert.Equal(t, ActionNull, Decide(ambiguous, types.PolicySkip, types.PolicyFail))
	assert.Equal(t, ActionAbort, Decide(ambiguous, types.PolicyFail, types.PolicySkip))
	assert.Equal(t, ActionNull, Decide(missing, types.PolicyFail, types.PolicySkip))
	assert.Equal(t, ActionAbort, Decide(missing, types.PolicySkip, types.PolicyFail))
	assert.Equal(t, ActionKeep, Decide(failed, types.PolicyFail, types.PolicyFail))
}
