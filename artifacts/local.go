package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalConfig configures the filesystem store.
type LocalConfig struct {
	Path        string `yaml:"path" json:"path"`
	Permissions int    `yaml:"permissions" json:"permissions"`
}

// LocalStore writes artifacts as files below a root directory.
type LocalStore struct {
	root string
	perm fs.FileMode
}

// NewLocalStore creates the root directory when missing.
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if cfg.Path == "" {
		cfg.Path = "artifacts"
	}
	if cfg.Permissions == 0 {
		cfg.Permissions = 0o644
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &LocalStore{root: cfg.Path, perm: fs.FileMode(cfg.Permissions)}, nil
}

func (s *LocalStore) filePath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	if err := ValidateKey(key); err != nil {
		return nil, &StoreError{Backend: TypeLocal, Operation: "put", Key: key, Err: err}
	}

	target := s.filePath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, &StoreError{Backend: TypeLocal, Operation: "put", Key: key, Err: err}
	}

	// Write to a temporary file first, then atomically replace.
	tempFile := target + ".tmp"
	if err := os.WriteFile(tempFile, data, s.perm); err != nil {
		return nil, &StoreError{Backend: TypeLocal, Operation: "put", Key: key, Err: err}
	}
	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return nil, &StoreError{Backend: TypeLocal, Operation: "put", Key: key, Err: err}
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, &StoreError{Backend: TypeLocal, Operation: "put", Key: key, Err: err}
	}
	return &Artifact{
		Key:         key,
		ContentType: contentType,
		Size:        info.Size(),
		UpdatedAt:   info.ModTime().UTC(),
	}, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (*Artifact, error) {
	if err := ValidateKey(key); err != nil {
		return nil, &StoreError{Backend: TypeLocal, Operation: "get", Key: key, Err: err}
	}

	target := s.filePath(key)
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotFound
		}
		return nil, &StoreError{Backend: TypeLocal, Operation: "get", Key: key, Err: err}
	}

	artifact := &Artifact{
		Key:         key,
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
		Size:        int64(len(data)),
		Data:        data,
	}
	if info, err := os.Stat(target); err == nil {
		artifact.UpdatedAt = info.ModTime().UTC()
	}
	return artifact, nil
}

// List walks the root directory. Temporary files are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, &StoreError{Backend: TypeLocal, Operation: "list", Err: err}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return &StoreError{Backend: TypeLocal, Operation: "delete", Key: key, Err: err}
	}
	if err := os.Remove(s.filePath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StoreError{Backend: TypeLocal, Operation: "delete", Key: key, Err: err}
	}
	return nil
}
