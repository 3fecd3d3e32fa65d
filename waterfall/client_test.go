package waterfall

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemabounce/waterfall-bridge/internal/waterfalltest"
	"github.com/schemabounce/waterfall-bridge/types"
)

func newTestClient(timeout time.Duration) *Client {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	return NewClient(cfg)
}

func TestClient_GetCollectionForwardsCredential(t *testing.T) {
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{Collections: map[string]types.Collection{
		"tasks": {{"id": "t1", "name": "Write"}},
	}})

	ctx := WithCredential(context.Background(), "tok-123")
	records, err := newTestClient(time.Second).GetCollection(ctx, svc.CollectionURL("tasks"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].Identity())

	reqs := svc.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer tok-123", reqs[0].Authorization)
	assert.Equal(t, "tok-123", reqs[0].Cookie)
}

func TestClient_NoCredential(t *testing.T) {
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{Collections: map[string]types.Collection{"tasks": {}}})

	_, err := newTestClient(time.Second).GetCollection(context.Background(), svc.CollectionURL("tasks"))
	require.NoError(t, err)
	assert.Empty(t, svc.Requests()[0].Authorization)
	assert.Empty(t, svc.Requests()[0].Cookie)
}

func TestClient_GetCollectionErrors(t *testing.T) {
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{})
	svc.Respond(http.MethodGet, "/object", waterfalltest.Response{Status: 200, Body: `{"id":"a"}`})
	svc.Respond(http.MethodGet, "/garbage", waterfalltest.Response{Status: 200, Body: `<html>`})
	svc.Respond(http.MethodGet, "/scalars", waterfalltest.Response{Status: 200, Body: `[1,2]`})
	svc.Respond(http.MethodGet, "/down", waterfalltest.Response{Status: 503, Body: "maintenance"})

	client := newTestClient(time.Second)
	ctx := context.Background()

	_, err := client.GetCollection(ctx, svc.CollectionURL("object"))
	assert.True(t, errors.Is(err, ErrNotArray))
	assert.Contains(t, err.Error(), "object")

	_, err = client.GetCollection(ctx, svc.CollectionURL("garbage"))
	assert.True(t, errors.Is(err, ErrInvalidJSON))

	_, err = client.GetCollection(ctx, svc.CollectionURL("scalars"))
	assert.True(t, errors.Is(err, ErrNotArray))

	_, err = client.GetCollection(ctx, svc.CollectionURL("down"))
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 503, httpErr.StatusCode)
	assert.Equal(t, "maintenance", httpErr.Body)
	assert.Equal(t, 503, StatusCodeOf(err))
	assert.False(t, IsTimeout(err))
}

func TestClient_KeepsLargeNumericIDs(t *testing.T) {
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{})
	svc.Respond(http.MethodGet, "/tasks", waterfalltest.Response{
		Status: 200,
		Body:   `[{"id": 9007199254740993}, {"id": 9007199254740992, "parent_id": 9007199254740993}]`,
	})

	records, err := newTestClient(time.Second).GetCollection(context.Background(), svc.CollectionURL("tasks"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "9007199254740993", records[0].Identity())
	assert.Equal(t, "9007199254740992", records[1].Identity())
	assert.Equal(t, "9007199254740993", records[1].Ref("parent_id"))
}

func TestClient_Timeout(t *testing.T) {
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{})
	svc.Respond(http.MethodGet, "/slow", waterfalltest.Response{Status: 200, Body: "[]", Delay: 2 * time.Second})

	_, err := newTestClient(50*time.Millisecond).GetCollection(context.Background(), svc.CollectionURL("slow"))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 0, StatusCodeOf(err))
}

func TestClient_GetRecordAndCreate(t *testing.T) {
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{Collections: map[string]types.Collection{
		"projects": {{"id": "p 1", "name": "Apollo"}},
	}})
	client := newTestClient(time.Second)
	ctx := context.Background()

	record, err := client.GetRecord(ctx, svc.BaseURL(), "projects", "p 1")
	require.NoError(t, err)
	assert.Equal(t, "Apollo", record["name"])

	_, err = client.GetRecord(ctx, svc.BaseURL(), "projects", "nope")
	assert.Equal(t, 404, StatusCodeOf(err))

	created, err := client.CreateRecord(ctx, svc.CollectionURL("projects"), types.Record{"name": "Gemini"})
	require.NoError(t, err)
	assert.Equal(t, "projects-1", created.Identity())
	assert.Equal(t, []types.Record{{"name": "Gemini"}}, svc.Creates("projects"))

	all, err := client.ListCollection(ctx, svc.BaseURL(), "projects")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClient_CreateRejectsNonObject(t *testing.T) {
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{})
	svc.Respond(http.MethodPost, "/tasks", waterfalltest.Response{Status: 201, Body: `[]`})

	_, err := newTestClient(time.Second).CreateRecord(context.Background(), svc.CollectionURL("tasks"), types.Record{"name": "x"})
	assert.True(t, errors.Is(err, ErrNotObject))
}

func TestClient_RateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	cfg := DefaultClientConfig()
	cfg.RateLimit = 0.001
	client := NewClient(cfg)

	_, err := client.GetCollection(context.Background(), srv.URL)
	require.NoError(t, err, "the burst allows the first call")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.GetCollection(ctx, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestCredentialFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, CredentialFromRequest(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", CredentialFromRequest(r))

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", CredentialFromRequest(r))

	_, ok := CredentialFrom(WithCredential(context.Background(), ""))
	assert.False(t, ok)
}

func TestSplitCollectionURL(t *testing.T) {
	cases := []struct {
		in, base, resource string
	}{
		{"http://host/api/tasks", "http://host/api", "tasks"},
		{"http://host/api/tasks/", "http://host/api", "tasks"},
		{"http://host/api/tasks?limit=5", "http://host/api", "tasks"},
		{"http://host/tasks", "http://host", "tasks"},
		{"http://host", "http://host", ""},
	}
	for _, tc := range cases {
		base, resource := SplitCollectionURL(tc.in)
		assert.Equal(t, tc.base, base, tc.in)
		assert.Equal(t, tc.resource, resource, tc.in)
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://host/api/users/a%20b", JoinURL("http://host/api/", "users", "a b"))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://host/api/tasks"))
	assert.Error(t, ValidateURL("ftp://host/x"))
	assert.Error(t, ValidateURL("/relative"))
	assert.Error(t, ValidateURL("http://"))
}
