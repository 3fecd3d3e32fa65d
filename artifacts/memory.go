package artifacts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps artifacts in process memory. Used by tests and one-shot
// CLI runs.
type MemoryStore struct {
	artifacts map[string]*Artifact
	mutex     sync.RWMutex
	now       func() time.Time
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]*Artifact),
		now:       time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	if err := ValidateKey(key); err != nil {
		return nil, &StoreError{Backend: TypeMemory, Operation: "put", Key: key, Err: err}
	}

	stored := &Artifact{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		UpdatedAt:   s.now().UTC(),
		Data:        append([]byte(nil), data...),
	}

	s.mutex.Lock()
	s.artifacts[key] = stored
	s.mutex.Unlock()

	return copyArtifact(stored, false), nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Artifact, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stored, exists := s.artifacts[key]
	if !exists {
		return nil, &StoreError{Backend: TypeMemory, Operation: "get", Key: key, Err: ErrNotFound}
	}
	return copyArtifact(stored, true), nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.artifacts))
	for key := range s.artifacts {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.artifacts, key)
	return nil
}

func copyArtifact(a *Artifact, withData bool) *Artifact {
	out := *a
	out.Data = nil
	if withData {
		out.Data = append([]byte(nil), a.Data...)
	}
	return &out
}
