// Package formats encodes collections into export files and decodes import
// files back into collections.
package formats

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schemabounce/waterfall-bridge/types"
)

var (
	// ErrUnknownFormat is returned for a format name no codec is registered
	// under.
	ErrUnknownFormat = errors.New("unknown format")
	// ErrMalformed wraps every decode failure caused by the file content.
	ErrMalformed = errors.New("malformed input")
)

// EncodeOptions carries the context some encoders embed in their output.
type EncodeOptions struct {
	ResourceType string
	ServiceURL   string
	// ParentField is the detected parent field, if any.
	ParentField string
	// DiagramType selects the Mermaid diagram (flowchart, graph, mindmap).
	DiagramType string
	// Now stamps export dates; defaults to time.Now.
	Now func() time.Time
}

func (o EncodeOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Codec converts between a collection and one file format.
type Codec interface {
	Name() string
	ContentType() string
	Extension() string
	Encode(records types.Collection, opts EncodeOptions) ([]byte, error)
	Decode(data []byte) (types.Collection, error)
}

// Registry maps format names to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// DefaultRegistry returns a registry holding the json, csv and mermaid
// codecs.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(JSON{})
	r.MustRegister(CSV{})
	r.MustRegister(Mermaid{})
	return r
}

// Register adds a codec under its name.
func (r *Registry) Register(codec Codec) error {
	if codec == nil {
		return fmt.Errorf("codec cannot be nil")
	}
	name := strings.ToLower(codec.Name())
	if name == "" {
		return fmt.Errorf("codec name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codecs[name]; exists {
		return fmt.Errorf("format %q already registered", name)
	}
	r.codecs[name] = codec
	return nil
}

// MustRegister panics on registration error.
func (r *Registry) MustRegister(codec Codec) {
	if err := r.Register(codec); err != nil {
		panic(err)
	}
}

// Lookup returns the codec registered under name.
func (r *Registry) Lookup(name string) (Codec, error) {
	r.mu.RLock()
	codec, exists := r.codecs[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w %q: must be one of %s", ErrUnknownFormat, name, strings.Join(r.Names(), ", "))
	}
	return codec, nil
}

// Names returns the registered format names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckFilename verifies that filename carries the extension of codec.
// An empty filename passes.
func CheckFilename(codec Codec, filename string) error {
	if filename == "" {
		return nil
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if m, ok := codec.(interface{ AcceptsExtension(string) bool }); ok && m.AcceptsExtension(ext) {
		return nil
	}
	if ext != codec.Extension() {
		return fmt.Errorf("file %q does not match declared format %s (expected .%s)", filename, codec.Name(), codec.Extension())
	}
	return nil
}

// ExportFilename names the export file of a resource.
func ExportFilename(codec Codec, resource string) string {
	if resource == "" {
		resource = "data"
	}
	return fmt.Sprintf("%s_export.%s", resource, codec.Extension())
}

func malformed(format string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, format, err)
}
