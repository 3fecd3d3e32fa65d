// Package waterfalltest provides an in-process fake of the Waterfall data
// service for tests.
package waterfalltest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/schemabounce/waterfall-bridge/types"
)

// BasePath is the path prefix every collection is served under.
const BasePath = "/api"

// Fixture seeds a service with collections keyed by resource name.
type Fixture struct {
	Collections map[string]types.Collection `json:"collections"`
}

// LoadFixture reads a fixture from an io.Reader.
func LoadFixture(r io.Reader) (Fixture, error) {
	var fx Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return Fixture{}, fmt.Errorf("waterfalltest: decode fixture: %w", err)
	}
	return fx, nil
}

// LoadFixtureFile reads a fixture from disk.
func LoadFixtureFile(path string) (Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("waterfalltest: open fixture: %w", err)
	}
	defer f.Close()
	return LoadFixture(f)
}

// Request captures one call received by the service.
type Request struct {
	Method        string
	Path          string
	Authorization string
	Cookie        string
	Body          types.Record
}

// Response is a canned answer that replaces the normal handling of a route.
type Response struct {
	Status int
	Body   string
	Delay  time.Duration
}

// Service is a fake Waterfall instance. Collections live in memory; POST
// appends a record with an id chosen by NewID.
type Service struct {
	Server *httptest.Server

	// NewID picks the id of a created record. seq counts creates across
	// the service, starting at 1.
	NewID func(resource string, body types.Record, seq int) string

	// RejectCreate, when it returns a non-nil response, answers a POST
	// instead of creating the record.
	RejectCreate func(resource string, body types.Record) *Response

	mu          sync.Mutex
	collections map[string]types.Collection
	canned      map[string]Response
	requests    []Request
	seq         int
}

// NewService starts a service seeded with fx. The server is closed when the
// test ends.
func NewService(t interface{ Cleanup(func()) }, fx Fixture) *Service {
	s := &Service{
		collections: make(map[string]types.Collection),
		canned:      make(map[string]Response),
	}
	for resource, records := range fx.Collections {
		s.Seed(resource, records...)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Server.Close)
	return s
}

// BaseURL is the service base URL, e.g. http://127.0.0.1:1234/api.
func (s *Service) BaseURL() string {
	return s.Server.URL + BasePath
}

// CollectionURL is the collection URL of resource.
func (s *Service) CollectionURL(resource string) string {
	return s.BaseURL() + "/" + resource
}

// Seed appends records to the collection of resource, creating it when
// absent.
func (s *Service) Seed(resource string, records ...types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[resource]; !ok {
		s.collections[resource] = types.Collection{}
	}
	for _, r := range records {
		s.collections[resource] = append(s.collections[resource], r.Clone())
	}
}

// Respond installs a canned response for method on the path below
// BasePath, e.g. Respond("POST", "/tasks", Response{Status: 500}).
func (s *Service) Respond(method, path string, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned[method+" "+path] = resp
}

// Collection returns a snapshot of the records of resource.
func (s *Service) Collection(resource string) types.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(types.Collection, 0, len(s.collections[resource]))
	for _, r := range s.collections[resource] {
		out = append(out, r.Clone())
	}
	return out
}

// Requests returns a snapshot of recorded calls.
func (s *Service) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Request, len(s.requests))
	copy(cp, s.requests)
	return cp
}

// Creates returns the bodies posted to resource, in order.
func (s *Service) Creates(resource string) []types.Record {
	var out []types.Record
	for _, req := range s.Requests() {
		if req.Method == http.MethodPost && req.Path == "/"+resource {
			out = append(out, req.Body)
		}
	}
	return out
}

func (s *Service) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, BasePath+"/") {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, BasePath)

	req := Request{
		Method:        r.Method,
		Path:          path,
		Authorization: r.Header.Get("Authorization"),
	}
	if c, err := r.Cookie("access_token"); err == nil {
		req.Cookie = c.Value
	}
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			var body types.Record
			if err := json.Unmarshal(data, &body); err != nil {
				http.Error(w, "invalid JSON body", http.StatusBadRequest)
				return
			}
			req.Body = body
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	canned, hasCanned := s.canned[r.Method+" "+path]
	s.mu.Unlock()

	if hasCanned {
		if canned.Delay > 0 {
			select {
			case <-time.After(canned.Delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(canned.Status)
		_, _ = io.WriteString(w, canned.Body)
		return
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(segments) == 1:
		s.list(w, segments[0])
	case r.Method == http.MethodGet && len(segments) == 2:
		s.get(w, segments[0], segments[1])
	case r.Method == http.MethodPost && len(segments) == 1:
		s.create(w, segments[0], req.Body)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) list(w http.ResponseWriter, resource string) {
	s.mu.Lock()
	records, ok := s.collections[resource]
	s.mu.Unlock()
	if !ok {
		http.Error(w, fmt.Sprintf("unknown resource %q", resource), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Service) get(w http.ResponseWriter, resource, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.collections[resource] {
		if types.IDString(r[types.FieldID]) == id {
			writeJSON(w, http.StatusOK, r)
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Service) create(w http.ResponseWriter, resource string, body types.Record) {
	if body == nil {
		http.Error(w, "missing body", http.StatusBadRequest)
		return
	}

	if s.RejectCreate != nil {
		if resp := s.RejectCreate(resource, body); resp != nil {
			w.WriteHeader(resp.Status)
			_, _ = io.WriteString(w, resp.Body)
			return
		}
	}

	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("%s-%d", resource, s.seq)
	if s.NewID != nil {
		id = s.NewID(resource, body, s.seq)
	}
	created := body.Clone()
	created[types.FieldID] = id
	s.collections[resource] = append(s.collections[resource], created)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, created)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
