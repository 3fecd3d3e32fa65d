// Package artifacts delivers export files to, and reads import files from,
// external storage. A store is an endpoint only; nothing written here is read
// back by the bridge within the same run.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for a key that holds no artifact.
var ErrNotFound = errors.New("artifact not found")

// Artifact is one stored file.
type Artifact struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updated_at"`
	Data        []byte    `json:"-"`
}

// Store is implemented by every artifact backend.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error)
	Get(ctx context.Context, key string) (*Artifact, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// StoreError wraps a backend failure with the operation and key involved.
type StoreError struct {
	Backend   Type
	Operation string
	Key       string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s artifact store: %s: %v", e.Backend, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s artifact store: %s %q: %v", e.Backend, e.Operation, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ValidateKey rejects keys that are empty, absolute or escape their prefix.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("artifact key cannot be empty")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("artifact key %q must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("artifact key %q must not contain '..'", key)
		}
	}
	if path.Clean(key) != key {
		return fmt.Errorf("artifact key %q is not in canonical form", key)
	}
	return nil
}
