package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemabounce/waterfall-bridge/types"
)

func parentsByID(records types.Collection, parentField string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Identity()] = r.Ref(parentField)
	}
	return out
}

func TestDetectParentField(t *testing.T) {
	tests := []struct {
		name    string
		records types.Collection
		want    string
	}{
		{name: "empty", records: nil, want: ""},
		{name: "parent_id", records: types.Collection{{"id": "a", "parent_id": nil}}, want: "parent_id"},
		{name: "parent_uuid", records: types.Collection{{"id": "a", "parent_uuid": "b"}}, want: "parent_uuid"},
		{name: "parent_id wins", records: types.Collection{{"parent_uuid": "b", "parent_id": "c"}}, want: "parent_id"},
		{name: "flat", records: types.Collection{{"id": "a", "name": "x"}}, want: ""},
		{
			name:    "only first record is inspected",
			records: types.Collection{{"id": "a"}, {"id": "b", "parent_id": "a"}},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectParentField(tt.records))
		})
	}
}

func TestIsNested(t *testing.T) {
	assert.False(t, IsNested(types.Collection{{"id": "a"}}))
	assert.True(t, IsNested(types.Collection{{"id": "a"}, {"id": "b", "children": []any{}}}))
}

func TestFlatten_PreOrderAndParentPointers(t *testing.T) {
	nested := types.Collection{
		{
			"id": "root", "name": "Root",
			"children": []any{
				map[string]any{
					"id": "a",
					"children": []any{
						map[string]any{"id": "a1"},
					},
				},
				map[string]any{"id": "b"},
			},
		},
		{"id": "other"},
	}

	flat := Flatten(nested, "parent_id")

	ids := make([]string, len(flat))
	for i, r := range flat {
		ids[i] = r.Identity()
		assert.False(t, r.Has("children"), "children must be stripped from %s", ids[i])
	}
	require.Equal(t, []string{"root", "a", "a1", "b", "other"}, ids)

	assert.Equal(t, map[string]string{
		"root": "", "a": "root", "a1": "a", "b": "root", "other": "",
	}, parentsByID(flat, "parent_id"))

	assert.Nil(t, flat[0]["parent_id"])
	assert.True(t, flat[0].Has("parent_id"))
	assert.Equal(t, "Root", flat[0]["name"])
}

func TestFlatten_UsesOriginalIDForParent(t *testing.T) {
	nested := types.Collection{
		{"id": "new", "_original_id": "orig", "children": types.Collection{{"id": "c"}}},
	}
	flat := Flatten(nested, "parent_uuid")
	require.Len(t, flat, 2)
	assert.Equal(t, "orig", flat[1]["parent_uuid"])
}

func TestFlatten_DeepHierarchy(t *testing.T) {
	const depth = 10000
	root := types.Record{"id": "n0"}
	node := root
	for i := 1; i < depth; i++ {
		child := types.Record{"id": "n" + itoa(i)}
		node["children"] = types.Collection{child}
		node = child
	}

	flat := Flatten(types.Collection{root}, "parent_id")
	require.Len(t, flat, depth)
	assert.Equal(t, "n9998", flat[depth-1]["parent_id"])
}

func TestBuildTree(t *testing.T) {
	flat := types.Collection{
		{"id": "c1", "parent_id": "p"},
		{"id": "p", "parent_id": nil},
		{"id": "c2", "parent_id": "p"},
		{"id": "g", "parent_id": "c1"},
		{"id": "orphan", "parent_id": "missing"},
	}

	roots := BuildTree(flat, "parent_id")
	require.Len(t, roots, 2)
	assert.Equal(t, "p", roots[0].Identity())
	assert.Equal(t, "orphan", roots[1].Identity())

	kids := roots[0]["children"].(types.Collection)
	require.Len(t, kids, 2)
	assert.Equal(t, "c1", kids[0].Identity())
	assert.Equal(t, "c2", kids[1].Identity())

	grand := kids[0]["children"].(types.Collection)
	require.Len(t, grand, 1)
	assert.Equal(t, "g", grand[0].Identity())
	assert.Empty(t, roots[1]["children"])

	// Inputs are not mutated.
	assert.False(t, flat[1].Has("children"))
}

func TestBuildTree_SelfParentIsRoot(t *testing.T) {
	roots := BuildTree(types.Collection{{"id": "a", "parent_id": "a"}}, "parent_id")
	require.Len(t, roots, 1)
	assert.Empty(t, roots[0]["children"])
}

func TestBuildTreeFlattenInverse(t *testing.T) {
	collections := []types.Collection{
		{
			{"id": "p", "parent_id": nil},
			{"id": "c", "parent_id": "p"},
		},
		{
			{"id": "x3", "parent_id": "x2"},
			{"id": "x1", "parent_id": nil},
			{"id": "x2", "parent_id": "x1"},
			{"id": "y1", "parent_id": nil},
			{"id": "y2", "parent_id": "y1"},
			{"id": "y3", "parent_id": "y1"},
		},
		{
			{"_original_id": "o1", "id": "n1", "parent_uuid": nil},
			{"_original_id": "o2", "id": "n2", "parent_uuid": "o1"},
		},
	}

	for i, c := range collections {
		field := DetectParentField(c)
		require.NotEmpty(t, field, "collection %d", i)

		roundTrip := Flatten(BuildTree(c, field), field)
		require.Len(t, roundTrip, len(c), "collection %d", i)
		assert.Equal(t, parentsByID(c, field), parentsByID(roundTrip, field), "collection %d", i)
	}
}

func itoa(i int) string {
	return types.IDString(i)
}
