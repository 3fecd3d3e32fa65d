package waterfalltest

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemabounce/waterfall-bridge/types"
)

func TestLoadFixture(t *testing.T) {
	fx, err := LoadFixture(strings.NewReader(`{"collections": {"users": [{"id": "u1", "email": "a@x.io"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", fx.Collections["users"][0]["email"])

	_, err = LoadFixture(strings.NewReader(`{"collection": {}}`))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestService_ListCreateAndRecord(t *testing.T) {
	svc := NewService(t, Fixture{Collections: map[string]types.Collection{"users": {{"id": "u1"}}}})
	svc.NewID = func(resource string, body types.Record, seq int) string {
		return "new-" + body["name"].(string)
	}

	resp, err := http.Post(svc.CollectionURL("users"), "application/json", strings.NewReader(`{"name":"bo"}`))
	require.NoError(t, err)
	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "new-bo", created["id"])

	assert.Len(t, svc.Collection("users"), 2)
	assert.Len(t, svc.Creates("users"), 1)

	resp, err = http.Get(svc.CollectionURL("missing"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
