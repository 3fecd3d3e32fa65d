package artifacts

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	stored, err := store.Put(ctx, "tasks/tasks_export.json", []byte(`[{"id":"a"}]`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "tasks/tasks_export.json", stored.Key)
	assert.EqualValues(t, 12, stored.Size)

	_, err = store.Put(ctx, "users_export.csv", []byte("id\n1\n"), "text/csv")
	require.NoError(t, err)

	got, err := store.Get(ctx, "tasks/tasks_export.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, string(got.Data))
	assert.Equal(t, "application/json", got.ContentType)

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/tasks_export.json", "users_export.csv"}, keys)

	keys, err = store.List(ctx, "tasks/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/tasks_export.json"}, keys)

	require.NoError(t, store.Delete(ctx, "users_export.csv"))
	_, err = store.Get(ctx, "users_export.csv")
	assert.True(t, errors.Is(err, ErrNotFound))

	var storeErr *StoreError
	assert.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "get", storeErr.Operation)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	data := []byte("abc")
	_, err := store.Put(ctx, "k", data, "text/plain")
	require.NoError(t, err)
	data[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got.Data))
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"a.json", "dir/a.csv"} {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", "  ", "/abs", "../escape", "a/../../b", "a//b"} {
		assert.Error(t, ValidateKey(key), key)
	}
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"":           TypeNone,
		"none":       TypeNone,
		"memory":     TypeMemory,
		"filesystem": TypeLocal,
		"PG":         TypePostgres,
		" s3 ":       TypeS3,
	}
	for input, want := range cases {
		got, err := ParseType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseType("gcs")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = Open(context.Background(), Config{Type: "local", Local: LocalConfig{Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = Open(context.Background(), Config{Type: "s3"})
	assert.Error(t, err, "bucket is required")
}

func TestPostgresConfig_ConnectionString(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Database: "bridge", Username: "svc", Password: "p@ss"}
	assert.Equal(t, "postgres://svc:p%40ss@db:5432/bridge?sslmode=prefer", cfg.ConnectionString())

	cfg.DSN = "postgres://other"
	assert.Equal(t, "postgres://other", cfg.ConnectionString())
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `tasks\_%`, likePrefix("tasks_"))
	assert.Equal(t, `100\%%`, likePrefix("100%"))
	assert.Equal(t, "%", likePrefix(""))
}

// fakeS3 serves the path-style subset of the S3 API the store uses.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	types   map[string]string
}

type listBucketResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string   `xml:"Name"`
	IsTruncated bool     `xml:"IsTruncated"`
	Contents    []struct {
		Key  string `xml:"Key"`
		Size int    `xml:"Size"`
	} `xml:"Contents"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+f.bucket), "/")

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		result := listBucketResult{Name: f.bucket}
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			result.Contents = append(result.Contents, struct {
				Key  string `xml:"Key"`
				Size int    `xml:"Size"`
			}{Key: k, Size: len(f.objects[k])})
		}
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(result)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		_, _ = w.Write(data)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{bucket: "bridge", objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store, err := NewS3Store(context.Background(), S3Config{
		Region:         "us-east-1",
		Bucket:         "bridge",
		KeyPrefix:      "exports/",
		AccessKey:      "test",
		SecretKey:      "test",
		Endpoint:       srv.URL,
		ForcePathStyle: true,
		MaxRetries:     1,
	})
	require.NoError(t, err)

	exerciseStore(t, store)

	fake.mu.Lock()
	_, stored := fake.objects["exports/tasks/tasks_export.json"]
	fake.mu.Unlock()
	assert.True(t, stored, "objects are written below the key prefix")
}
