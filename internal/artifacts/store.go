// Package artifacts stores evidence files such as screenshots and reports.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gotrs-io/e2eprobe/internal/config"
)

// Store persists one artifact under key and returns a reference to it.
// Keys are slash separated and relative.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Open returns the store selected by the evidence configuration.
func Open(ctx context.Context, cfg config.EvidenceConfig) (Store, error) {
	switch cfg.Store {
	case "", config.StoreLocal:
		return NewLocalStore(cfg.OutputDir), nil
	case config.StoreS3:
		store, err := NewS3Store(ctx, S3Options{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			Prefix:       cfg.S3.Prefix,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("artifacts: unknown store %q", cfg.Store)
	}
}

// CleanKey validates key and returns it in canonical form.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("artifacts: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("artifacts: key %q must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("artifacts: key %q escapes the store", key)
		}
	}
	return path.Clean(key), nil
}

// LocalStore writes artifacts below a root directory. References are paths
// relative to the root.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = "."
	}
	return &LocalStore{root: root}
}

// Root returns the directory artifacts are written to.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create directory for %s: %w", key, err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("artifacts: write %s: %w", key, err)
	}
	return key, nil
}
